package codegen

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pkt.systems/codeforge/schema"
)

func TestResolveFraming(t *testing.T) {
	cases := []struct {
		configured  Framing
		contentType string
		want        Framing
	}{
		{FramingAuto, "application/x-ndjson", FramingNDJSON},
		{FramingAuto, "application/jsonl; charset=utf-8", FramingNDJSON},
		{FramingAuto, "application/x-json-stream", FramingNDJSON},
		{FramingAuto, "text/plain;charset=UTF-8", FramingRaw},
		{FramingAuto, "", FramingRaw},
		{FramingNDJSON, "text/plain", FramingNDJSON},
		{FramingRaw, "application/x-ndjson", FramingRaw},
	}
	for _, tc := range cases {
		if got := resolveFraming(tc.configured, tc.contentType); got != tc.want {
			t.Fatalf("resolveFraming(%q, %q) = %q, want %q", tc.configured, tc.contentType, got, tc.want)
		}
	}
}

func TestParseFraming(t *testing.T) {
	if got, err := ParseFraming(" NDJSON "); err != nil || got != FramingNDJSON {
		t.Fatalf("ParseFraming: %q %v", got, err)
	}
	if got, err := ParseFraming(""); err != nil || got != FramingAuto {
		t.Fatalf("ParseFraming empty: %q %v", got, err)
	}
	if _, err := ParseFraming("xml"); err == nil {
		t.Fatalf("expected error for unknown framing")
	}
}

func TestNDJSONFramerAcrossChunks(t *testing.T) {
	f := &ndjsonFramer{}
	var got []schema.Fragment
	for _, chunk := range []string{
		`{"name":"Demo","type":"java","contentChunk":"public class Demo {\n"}` + "\n\n" + `{"name":"De`,
		`mo","type":"java","contentChunk":"}"}` + "\n" + `"trailing raw"`,
	} {
		frags, err := f.Feed(chunk)
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
		got = append(got, frags...)
	}
	tail, err := f.Flush()
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	got = append(got, tail...)
	want := []schema.Fragment{
		schema.Named("Demo", "java", "public class Demo {\n"),
		schema.Named("Demo", "java", "}"),
		schema.RawText("trailing raw"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected fragments (-want +got):\n%s", diff)
	}
}

func TestNDJSONFramerSkipsEmptyDeltas(t *testing.T) {
	f := &ndjsonFramer{}
	frags, err := f.Feed(`{"name":"A","contentChunk":""}` + "\n" + `""` + "\n")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(frags) != 0 {
		t.Fatalf("expected no fragments, got %+v", frags)
	}
}

func TestNDJSONFramerRejectsMalformedLine(t *testing.T) {
	f := &ndjsonFramer{}
	frags, err := f.Feed(`{"name":"A","contentChunk":"x"}` + "\n" + `{not json` + "\n")
	var decodeErr *schema.StreamDecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected StreamDecodeError, got %v", err)
	}
	if string(decodeErr.Line) != "{not json" {
		t.Fatalf("unexpected line: %q", decodeErr.Line)
	}
	if len(frags) != 1 || frags[0].Delta != "x" {
		t.Fatalf("expected the valid record before the error, got %+v", frags)
	}
}

func TestRawFramerKeepsWhitespace(t *testing.T) {
	frags, err := rawFramer{}.Feed("  \n")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(frags) != 1 || frags[0].Delta != "  \n" || frags[0].Kind != schema.FragmentRawText {
		t.Fatalf("unexpected fragments: %+v", frags)
	}
}
