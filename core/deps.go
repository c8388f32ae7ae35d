package core

import "pkt.systems/pslog"

// ServiceDeps captures optional dependencies for the core service.
type ServiceDeps struct {
	Generator Generator
	Uploader  Uploader
	EventSink EventSink
	Logger    pslog.Logger
}
