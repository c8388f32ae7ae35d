package codegen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"pkt.systems/codeforge/schema"
)

// Framing selects how decoded text is split into fragments.
type Framing string

const (
	// FramingAuto picks NDJSON from the response content type, raw otherwise.
	FramingAuto Framing = "auto"
	// FramingRaw emits every decoded chunk as raw text.
	FramingRaw Framing = "raw"
	// FramingNDJSON parses one named record per line.
	FramingNDJSON Framing = "ndjson"
)

// ParseFraming validates a configured framing value.
func ParseFraming(value string) (Framing, error) {
	switch Framing(strings.ToLower(strings.TrimSpace(value))) {
	case "", FramingAuto:
		return FramingAuto, nil
	case FramingRaw:
		return FramingRaw, nil
	case FramingNDJSON, "jsonl":
		return FramingNDJSON, nil
	default:
		return "", fmt.Errorf("unknown framing %q", value)
	}
}

func resolveFraming(configured Framing, contentType string) Framing {
	if configured == FramingRaw || configured == FramingNDJSON {
		return configured
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return FramingRaw
	}
	switch {
	case strings.Contains(mediaType, "ndjson"),
		strings.Contains(mediaType, "jsonl"),
		strings.Contains(mediaType, "x-json-stream"):
		return FramingNDJSON
	default:
		return FramingRaw
	}
}

// framer converts decoded text into fragments.
type framer interface {
	Feed(text string) ([]schema.Fragment, error)
	Flush() ([]schema.Fragment, error)
}

type rawFramer struct{}

func (rawFramer) Feed(text string) ([]schema.Fragment, error) {
	if text == "" {
		return nil, nil
	}
	return []schema.Fragment{schema.RawText(text)}, nil
}

func (rawFramer) Flush() ([]schema.Fragment, error) { return nil, nil }

type ndjsonFramer struct {
	line strings.Builder
}

func (f *ndjsonFramer) Feed(text string) ([]schema.Fragment, error) {
	var out []schema.Fragment
	for text != "" {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			f.line.WriteString(text)
			break
		}
		f.line.WriteString(text[:idx])
		text = text[idx+1:]
		frag, ok, err := decodeRecord(f.line.String())
		f.line.Reset()
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, frag)
		}
	}
	return out, nil
}

func (f *ndjsonFramer) Flush() ([]schema.Fragment, error) {
	line := f.line.String()
	f.line.Reset()
	frag, ok, err := decodeRecord(line)
	if err != nil || !ok {
		return nil, err
	}
	return []schema.Fragment{frag}, nil
}

// decodeRecord parses one NDJSON line. Blank lines and empty deltas report ok=false.
func decodeRecord(line string) (schema.Fragment, bool, error) {
	trimmed := bytes.TrimSpace([]byte(line))
	if len(trimmed) == 0 {
		return schema.Fragment{}, false, nil
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return schema.Fragment{}, false, &schema.StreamDecodeError{Line: trimmed, Err: err}
		}
		return schema.RawText(text), text != "", nil
	}
	var record schema.FragmentRecord
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return schema.Fragment{}, false, &schema.StreamDecodeError{Line: trimmed, Err: err}
	}
	frag := record.Fragment()
	return frag, frag.Delta != "", nil
}
