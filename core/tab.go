package core

import (
	"context"
	"strings"

	"pkt.systems/codeforge/schema"
)

// tab tracks the state of a single generation session.
type tab struct {
	ID         schema.TabID
	Title      schema.TabTitle
	Fields     string
	Status     schema.TabStatus
	Outcome    schema.TabOutcome
	Err        string
	files      []schema.File
	transcript strings.Builder
	fragments  int
	defaults   FileDefaults
	run        *streamRun
}

// streamRun identifies one stream feeding a tab. A consumer may only touch
// the tab while tab.run still points at its own run.
type streamRun struct {
	cancel context.CancelFunc
}

// Snapshot returns a transport-friendly view of the tab.
func (t *tab) Snapshot(active bool) schema.TabSnapshot {
	files := schema.CloneFiles(t.files)
	if files == nil {
		files = []schema.File{}
	}
	return schema.TabSnapshot{
		ID:         t.ID,
		Title:      t.Title,
		Status:     t.Status,
		Outcome:    t.Outcome,
		Error:      t.Err,
		Fields:     t.Fields,
		Files:      files,
		Transcript: t.transcript.String(),
		Fragments:  t.fragments,
		Active:     active,
	}
}

func (t *tab) settle(outcome schema.TabOutcome, err error) {
	t.Status = schema.TabStatusSettled
	t.Outcome = outcome
	if err != nil {
		t.Err = err.Error()
	}
	t.run = nil
}
