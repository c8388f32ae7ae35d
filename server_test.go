package codeforge

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"pkt.systems/codeforge/core"
	"pkt.systems/codeforge/httpapi"
	"pkt.systems/codeforge/internal/eventbus"
	"pkt.systems/codeforge/schema"
)

func TestNewRequiresFrontEnd(t *testing.T) {
	if _, err := New(ServerConfig{}, ServerDeps{ServiceDeps: core.ServiceDeps{Generator: &blockingGenerator{}}}); err == nil {
		t.Fatalf("expected error without front ends")
	}
}

func TestNewRequiresGenerator(t *testing.T) {
	if _, err := New(ServerConfig{}, ServerDeps{}, WithHTTP()); err == nil {
		t.Fatalf("expected error without generator")
	}
}

func TestEventBusReceivesServiceEvents(t *testing.T) {
	bus := eventbus.New(nil)
	srv, err := New(ServerConfig{}, ServerDeps{ServiceDeps: core.ServiceDeps{Generator: &blockingGenerator{}}}, WithEventBus(bus))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events, unsubscribe := bus.Subscribe("local")
	defer unsubscribe()

	if _, err := srv.Service().OpenTab(context.Background(), schema.OpenTabRequest{Workspace: "local", Title: "demo"}); err != nil {
		t.Fatalf("OpenTab: %v", err)
	}
	select {
	case event := <-events:
		if event.Type != eventbus.EventTab || event.Tab.Type != schema.TabEventCreated {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for bus event")
	}
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	first := &countingSink{}
	second := &countingSink{}
	fanout := eventFanout{sinks: []core.EventSink{first, nil, second}}
	fanout.OnTabEvent(schema.TabEvent{Workspace: "local"})
	fanout.OnNotice(schema.NoticeEvent{Workspace: "local"})
	for i, sink := range []*countingSink{first, second} {
		if sink.tabs != 1 || sink.notices != 1 {
			t.Fatalf("sink %d: expected 1 tab and 1 notice, got %d and %d", i, sink.tabs, sink.notices)
		}
	}
}

func TestServerStopCancelsStreams(t *testing.T) {
	generator := &blockingGenerator{}
	srv, err := New(ServerConfig{HTTP: httpapi.Config{Addr: "127.0.0.1:0"}}, ServerDeps{ServiceDeps: core.ServiceDeps{Generator: generator}}, WithEventBus(eventbus.New(nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := srv.Service().Generate(context.Background(), schema.GenerateRequest{Workspace: "local", Fields: "id:Long"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := srv.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	got, err := srv.Service().GetTab(context.Background(), schema.GetTabRequest{Workspace: "local", TabID: resp.Tab.ID})
	if err != nil {
		t.Fatalf("GetTab: %v", err)
	}
	if got.Tab.Status != schema.TabStatusSettled || got.Tab.Outcome != schema.TabOutcomeCanceled {
		t.Fatalf("expected canceled tab, got %s/%s", got.Tab.Status, got.Tab.Outcome)
	}
}

func TestServerStartTwiceFails(t *testing.T) {
	srv, err := New(ServerConfig{}, ServerDeps{ServiceDeps: core.ServiceDeps{Generator: &blockingGenerator{}}}, WithEventBus(eventbus.New(nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Start(ctx); err == nil {
		t.Fatalf("expected second start to fail")
	}
	_ = srv.Stop(context.Background())
}

type countingSink struct {
	mu      sync.Mutex
	tabs    int
	notices int
}

func (s *countingSink) OnTabEvent(schema.TabEvent) {
	s.mu.Lock()
	s.tabs++
	s.mu.Unlock()
}

func (s *countingSink) OnNotice(schema.NoticeEvent) {
	s.mu.Lock()
	s.notices++
	s.mu.Unlock()
}

// blockingGenerator returns streams that block until their context ends.
type blockingGenerator struct{}

func (g *blockingGenerator) Generate(context.Context, core.GenerateRequest) (core.FragmentStream, error) {
	return &blockingStream{closed: make(chan struct{})}, nil
}

type blockingStream struct {
	once   sync.Once
	closed chan struct{}
}

func (s *blockingStream) Next(ctx context.Context) (schema.Fragment, error) {
	select {
	case <-ctx.Done():
		return schema.Fragment{}, ctx.Err()
	case <-s.closed:
		return schema.Fragment{}, io.EOF
	}
}

func (s *blockingStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
