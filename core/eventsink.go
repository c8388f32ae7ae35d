package core

import "pkt.systems/codeforge/schema"

// EventSink receives tab and notice events from the core service.
type EventSink interface {
	OnTabEvent(event schema.TabEvent)
	OnNotice(event schema.NoticeEvent)
}
