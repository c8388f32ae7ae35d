package core

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"pkt.systems/codeforge/schema"
)

type streamItem struct {
	frag schema.Fragment
	err  error
}

// scriptedStream hands out fragments pushed by the test. When ignoreCtx is
// set, Next keeps waiting on items even after cancellation so tests can
// deliver fragments that arrive late.
type scriptedStream struct {
	items     chan streamItem
	ignoreCtx bool
	closeOnce sync.Once
	closed    chan struct{}
}

func newScriptedStream(items ...streamItem) *scriptedStream {
	s := &scriptedStream{items: make(chan streamItem, 64), closed: make(chan struct{})}
	for _, item := range items {
		s.items <- item
	}
	return s
}

func (s *scriptedStream) push(item streamItem) { s.items <- item }

func (s *scriptedStream) finish() { close(s.items) }

func (s *scriptedStream) Next(ctx context.Context) (schema.Fragment, error) {
	if s.ignoreCtx {
		item, ok := <-s.items
		if !ok {
			return schema.Fragment{}, io.EOF
		}
		return item.frag, item.err
	}
	select {
	case <-ctx.Done():
		return schema.Fragment{}, ctx.Err()
	case item, ok := <-s.items:
		if !ok {
			return schema.Fragment{}, io.EOF
		}
		return item.frag, item.err
	}
}

func (s *scriptedStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type scriptedGenerator struct {
	mu       sync.Mutex
	streams  []*scriptedStream
	err      error
	requests []GenerateRequest
	ctxs     []context.Context
}

func (g *scriptedGenerator) Generate(ctx context.Context, req GenerateRequest) (FragmentStream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	g.ctxs = append(g.ctxs, ctx)
	if g.err != nil {
		return nil, g.err
	}
	if len(g.streams) == 0 {
		return newScriptedStream(), nil
	}
	stream := g.streams[0]
	g.streams = g.streams[1:]
	return stream, nil
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type recordingSink struct {
	mu      sync.Mutex
	events  []schema.TabEvent
	notices []schema.NoticeEvent
}

func (r *recordingSink) OnTabEvent(event schema.TabEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recordingSink) OnNotice(event schema.NoticeEvent) {
	r.mu.Lock()
	r.notices = append(r.notices, event)
	r.mu.Unlock()
}

func (r *recordingSink) tabEvents(id schema.TabID) []schema.TabEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schema.TabEvent
	for _, event := range r.events {
		if event.Tab.ID == id {
			out = append(out, event)
		}
	}
	return out
}

func newTestService(t *testing.T, deps ServiceDeps) Service {
	t.Helper()
	svc, err := NewService(schema.ServiceConfig{}, deps)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func waitSettled(t *testing.T, svc Service, workspace schema.WorkspaceID, id schema.TabID) schema.TabSnapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		resp, err := svc.GetTab(context.Background(), schema.GetTabRequest{Workspace: workspace, TabID: id})
		if err != nil {
			t.Fatalf("get tab: %v", err)
		}
		if resp.Tab.Settled() {
			return resp.Tab
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for tab %s to settle", id)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for stream close")
	}
}
