package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/codeforge/core"
	"pkt.systems/codeforge/internal/eventbus"
	"pkt.systems/codeforge/schema"
)

func TestReadFields(t *testing.T) {
	got, err := readFields([]string{"id:Long"}, strings.NewReader("ignored"))
	if err != nil || got != "id:Long" {
		t.Fatalf("expected argument fields, got %q (%v)", got, err)
	}
	got, err = readFields([]string{"-"}, strings.NewReader("name:String\n"))
	if err != nil || got != "name:String\n" {
		t.Fatalf("expected stdin fields, got %q (%v)", got, err)
	}
}

func TestPrintFiles(t *testing.T) {
	var buf bytes.Buffer
	err := printFiles(&buf, []schema.File{
		{Name: "Entity.java", Type: schema.FileTypeJava, Content: "class Entity {}"},
		{Name: "pom.xml", Type: schema.FileTypeXML, Content: "<project/>\n"},
	})
	if err != nil {
		t.Fatalf("printFiles: %v", err)
	}
	want := "==> Entity.java (java) <==\nclass Entity {}\n\n==> pom.xml (xml) <==\n<project/>\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}

func TestWriteFilesStaysInDir(t *testing.T) {
	dir := t.TempDir()
	err := writeFiles(dir, []schema.File{
		{Name: "../../escape.java", Content: "x"},
		{Name: "Entity.java", Content: "class Entity {}"},
	})
	if err != nil {
		t.Fatalf("writeFiles: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.java")); err != nil {
		t.Fatalf("expected escaped name reduced to base: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "Entity.java"))
	if err != nil || string(data) != "class Entity {}" {
		t.Fatalf("unexpected file content %q (%v)", data, err)
	}
}

func TestAwaitSettled(t *testing.T) {
	bus := eventbus.New(nil)
	events, unsubscribe := bus.Subscribe(cliWorkspace)
	defer unsubscribe()
	gen := &fixedGenerator{fragments: []schema.Fragment{schema.RawText("class Foo {"), schema.RawText("}")}}
	service, err := core.NewService(schema.ServiceConfig{}, core.ServiceDeps{Generator: gen, EventSink: bus})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	resp, err := service.Generate(context.Background(), schema.GenerateRequest{Workspace: cliWorkspace, Fields: "id:Long"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tab, err := awaitSettled(ctx, service, events, resp.Tab.ID)
	if err != nil {
		t.Fatalf("awaitSettled: %v", err)
	}
	if tab.Outcome != schema.TabOutcomeCompleted {
		t.Fatalf("expected completed outcome, got %q", tab.Outcome)
	}
	file, ok := tab.File("id:Long")
	if !ok || file.Content != "class Foo {}" {
		t.Fatalf("unexpected files %+v", tab.Files)
	}
}

func TestSampleStreamStopsAtLimit(t *testing.T) {
	fragments := make([]schema.Fragment, 25)
	for i := range fragments {
		fragments[i] = schema.RawText("x")
	}
	gen := &fixedGenerator{fragments: fragments}
	count, err := sampleStream(context.Background(), gen, "id:Long", doctorFragmentLimit)
	if err != nil {
		t.Fatalf("sampleStream: %v", err)
	}
	if count != doctorFragmentLimit {
		t.Fatalf("expected %d fragments, got %d", doctorFragmentLimit, count)
	}
	if !gen.closed {
		t.Fatalf("expected stream to be closed")
	}
}

func TestSampleStreamReportsFailure(t *testing.T) {
	failure := &schema.TransportError{Op: "generate", Interrupted: true, Err: io.ErrUnexpectedEOF}
	gen := &fixedGenerator{fragments: []schema.Fragment{schema.RawText("x")}, err: failure}
	count, err := sampleStream(context.Background(), gen, "id:Long", doctorFragmentLimit)
	if !errors.Is(err, io.ErrUnexpectedEOF) || count != 1 {
		t.Fatalf("expected partial failure after 1 fragment, got %d (%v)", count, err)
	}
}

type fixedGenerator struct {
	fragments []schema.Fragment
	err       error
	closed    bool
}

func (g *fixedGenerator) Generate(context.Context, core.GenerateRequest) (core.FragmentStream, error) {
	return &fixedStream{gen: g}, nil
}

type fixedStream struct {
	gen  *fixedGenerator
	next int
}

func (s *fixedStream) Next(ctx context.Context) (schema.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return schema.Fragment{}, err
	}
	if s.next >= len(s.gen.fragments) {
		if s.gen.err != nil {
			return schema.Fragment{}, s.gen.err
		}
		return schema.Fragment{}, io.EOF
	}
	frag := s.gen.fragments[s.next]
	s.next++
	return frag, nil
}

func (s *fixedStream) Close() error {
	s.gen.closed = true
	return nil
}
