package codeforge

import (
	"pkt.systems/codeforge/core"
	"pkt.systems/codeforge/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnTabEvent(event schema.TabEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnTabEvent(event)
	}
}

func (f eventFanout) OnNotice(event schema.NoticeEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnNotice(event)
	}
}
