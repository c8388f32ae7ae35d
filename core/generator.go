package core

import (
	"context"
	"io"

	"pkt.systems/codeforge/schema"
)

// Generator opens streaming generation requests against the backend.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (FragmentStream, error)
}

// GenerateRequest describes one backend generation call.
type GenerateRequest struct {
	EntityName string
	Fields     string
}

// FragmentStream yields decoded fragments in arrival order. Next returns
// io.EOF on a clean end of stream; any other error ends the stream early.
type FragmentStream interface {
	Next(ctx context.Context) (schema.Fragment, error)
	Close() error
}

// Uploader forwards a document to the backend.
type Uploader interface {
	Upload(ctx context.Context, name string, body io.Reader) (schema.UploadResult, error)
}
