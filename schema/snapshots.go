package schema

// TabStatus describes the lifecycle state of a tab.
type TabStatus string

const (
	// TabStatusBuilding indicates the tab's stream is still in progress.
	TabStatusBuilding TabStatus = "building"
	// TabStatusSettled indicates the stream ended; files are frozen.
	TabStatusSettled TabStatus = "settled"
)

// TabOutcome records how a settled tab's stream ended.
type TabOutcome string

const (
	// TabOutcomeNone is reported while a tab is building.
	TabOutcomeNone TabOutcome = ""
	// TabOutcomeCompleted indicates a clean end of stream.
	TabOutcomeCompleted TabOutcome = "completed"
	// TabOutcomeFailed indicates a transport or decode failure.
	TabOutcomeFailed TabOutcome = "failed"
	// TabOutcomeCanceled indicates the stream was canceled.
	TabOutcomeCanceled TabOutcome = "canceled"
)

// TabSnapshot is a read-only view of tab state for transports.
type TabSnapshot struct {
	ID         TabID      `json:"id"`
	Title      TabTitle   `json:"title"`
	Status     TabStatus  `json:"status"`
	Outcome    TabOutcome `json:"outcome,omitempty"`
	Error      string     `json:"error,omitempty"`
	Fields     string     `json:"fields,omitempty"`
	Files      []File     `json:"files"`
	Transcript string     `json:"transcript"`
	Fragments  int        `json:"fragments"`
	Active     bool       `json:"active"`
}

// File returns the named file from the snapshot.
func (s TabSnapshot) File(name FileName) (File, bool) {
	for _, file := range s.Files {
		if file.Name == name {
			return file, true
		}
	}
	return File{}, false
}

// Settled reports whether the tab reached its terminal state.
func (s TabSnapshot) Settled() bool {
	return s.Status == TabStatusSettled
}
