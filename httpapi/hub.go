package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/codeforge/internal/logx"
	"pkt.systems/codeforge/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64              `json:"seq"`
	Type      string              `json:"type"`
	TabEvent  string              `json:"tab_event,omitempty"`
	Tab       *schema.TabSnapshot `json:"tab,omitempty"`
	ActiveTab schema.TabID        `json:"active_tab"`
	File      schema.FileName     `json:"file,omitempty"`
	Level     schema.NoticeLevel  `json:"level,omitempty"`
	Message   string              `json:"message,omitempty"`
	Snapshot  *SnapshotPayload    `json:"snapshot,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// SnapshotPayload seeds client state on connect.
type SnapshotPayload struct {
	Tabs      []schema.TabSnapshot `json:"tabs"`
	ActiveTab schema.TabID         `json:"active_tab"`
}

const subscriberBuffer = 256

const (
	streamEventSnapshot = "snapshot"
	streamEventTab      = "tab"
	streamEventNotice   = "notice"
)

// Hub broadcasts events per workspace and keeps a bounded history for
// Last-Event-ID replay. A subscriber that falls a full buffer behind is
// evicted: its channel is closed so the client reconnects and resyncs from a
// fresh snapshot instead of missing a lifecycle event.
type Hub struct {
	mu          sync.Mutex
	workspaces  map[schema.WorkspaceID]*workspaceHub
	historySize int
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 256
	}
	return &Hub{
		workspaces:  make(map[schema.WorkspaceID]*workspaceHub),
		historySize: historySize,
	}
}

// OnTabEvent implements core.EventSink.
func (h *Hub) OnTabEvent(event schema.TabEvent) {
	log := logx.WithWorkspaceTab(context.Background(), event.Workspace, event.Tab.ID)
	log.Trace("hub tab event", "type", event.Type, "active", event.ActiveTab, "file", event.File)
	tab := event.Tab
	h.publish(event.Workspace, StreamEvent{
		Type:      streamEventTab,
		TabEvent:  string(event.Type),
		Tab:       &tab,
		ActiveTab: event.ActiveTab,
		File:      event.File,
		Timestamp: time.Now(),
	})
}

// OnNotice implements core.EventSink.
func (h *Hub) OnNotice(event schema.NoticeEvent) {
	logx.WithWorkspace(context.Background(), event.Workspace).Trace("hub notice", "level", event.Level)
	h.publish(event.Workspace, StreamEvent{
		Type:      streamEventNotice,
		Level:     event.Level,
		Message:   event.Message,
		Timestamp: time.Now(),
	})
}

// Subscribe registers a subscriber for a workspace. The returned seq is the
// last sequence number published before the subscription; every later event
// arrives on the channel.
func (h *Hub) Subscribe(workspace schema.WorkspaceID) (<-chan StreamEvent, func(), uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	wh := h.getOrCreateWorkspaceHubLocked(workspace)
	ch := make(chan StreamEvent, subscriberBuffer)
	wh.subs[ch] = struct{}{}
	seq := wh.seq
	log := logx.WithWorkspace(context.Background(), workspace)
	log.Info("hub subscribe", "subs", len(wh.subs), "seq", seq)
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := wh.subs[ch]; ok {
				delete(wh.subs, ch)
				close(ch)
			}
			remaining := len(wh.subs)
			if remaining == 0 && len(wh.history) == 0 && h.workspaces[workspace] == wh {
				delete(h.workspaces, workspace)
			}
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, seq
}

// Replay returns retained events with after < seq <= upTo.
func (h *Hub) Replay(workspace schema.WorkspaceID, after, upTo uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	wh := h.workspaces[workspace]
	if wh == nil {
		return nil
	}
	events := make([]StreamEvent, 0, len(wh.history))
	for _, event := range wh.history {
		if event.Seq > after && event.Seq <= upTo {
			events = append(events, event)
		}
	}
	logx.WithWorkspace(context.Background(), workspace).Debug("hub replay", "after", after, "count", len(events))
	return events
}

func (h *Hub) publish(workspace schema.WorkspaceID, event StreamEvent) {
	h.mu.Lock()
	wh := h.getOrCreateWorkspaceHubLocked(workspace)
	wh.seq++
	event.Seq = wh.seq
	wh.history = append(wh.history, event)
	if len(wh.history) > h.historySize {
		wh.history = wh.history[len(wh.history)-h.historySize:]
	}
	evicted := 0
	for sub := range wh.subs {
		select {
		case sub <- event:
		default:
			delete(wh.subs, sub)
			close(sub)
			evicted++
		}
	}
	h.mu.Unlock()

	if evicted > 0 {
		logx.WithWorkspace(context.Background(), workspace).Warn("hub slow subscriber evicted", "type", event.Type, "evicted", evicted)
	}
}

// DropWorkspace closes every subscriber of a workspace and forgets its
// history.
func (h *Hub) DropWorkspace(workspace schema.WorkspaceID) {
	h.mu.Lock()
	wh := h.workspaces[workspace]
	delete(h.workspaces, workspace)
	subs := 0
	if wh != nil {
		for sub := range wh.subs {
			delete(wh.subs, sub)
			close(sub)
			subs++
		}
	}
	h.mu.Unlock()
	if wh != nil {
		logx.WithWorkspace(context.Background(), workspace).Info("hub workspace dropped", "subs", subs)
	}
}

func (h *Hub) getOrCreateWorkspaceHubLocked(workspace schema.WorkspaceID) *workspaceHub {
	wh := h.workspaces[workspace]
	if wh == nil {
		wh = &workspaceHub{
			subs: make(map[chan StreamEvent]struct{}),
		}
		h.workspaces[workspace] = wh
	}
	return wh
}

type workspaceHub struct {
	seq     uint64
	history []StreamEvent
	subs    map[chan StreamEvent]struct{}
}
