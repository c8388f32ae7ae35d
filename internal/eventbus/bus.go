package eventbus

import (
	"context"
	"sync"

	"pkt.systems/codeforge/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventTab carries tab lifecycle and content updates.
	EventTab EventType = "tab"
	// EventNotice carries user-facing notices.
	EventNotice EventType = "notice"
)

// Event represents a UI-facing event emitted by the core service.
type Event struct {
	Type   EventType
	Tab    schema.TabEvent
	Notice schema.NoticeEvent
}

// Bus fanouts events to per-workspace subscribers. Every tab event carries
// a full snapshot, so a subscriber that falls behind loses intermediate
// states only.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.WorkspaceID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.WorkspaceID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the workspace and returns a channel + cancel.
func (b *Bus) Subscribe(workspace schema.WorkspaceID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	wsSubs := b.subs[workspace]
	if wsSubs == nil {
		wsSubs = make(map[chan Event]struct{})
		b.subs[workspace] = wsSubs
	}
	wsSubs[ch] = struct{}{}
	count := len(wsSubs)
	b.mu.Unlock()
	b.log.With("workspace", workspace).Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[workspace]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, workspace)
				}
			}
			b.mu.Unlock()
			close(ch)
			b.log.With("workspace", workspace).Debug("eventbus unsubscribe")
		})
	}
}

// OnTabEvent publishes a tab event.
func (b *Bus) OnTabEvent(event schema.TabEvent) {
	b.publish(event.Workspace, Event{Type: EventTab, Tab: event})
}

// OnNotice publishes a notice.
func (b *Bus) OnNotice(event schema.NoticeEvent) {
	b.publish(event.Workspace, Event{Type: EventNotice, Notice: event})
}

func (b *Bus) publish(workspace schema.WorkspaceID, event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	wsSubs := b.subs[workspace]
	if len(wsSubs) == 0 {
		return
	}
	dropped := 0
	for sub := range wsSubs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.With("workspace", workspace).Trace("eventbus dropped", "count", dropped)
	}
}
