package schema

// TabEventType describes tab lifecycle or state changes.
type TabEventType string

const (
	// TabEventCreated indicates a tab was opened.
	TabEventCreated TabEventType = "created"
	// TabEventClosed indicates a tab was closed.
	TabEventClosed TabEventType = "closed"
	// TabEventActivated indicates a tab became active.
	TabEventActivated TabEventType = "activated"
	// TabEventUpdated indicates a fragment was applied to a tab.
	TabEventUpdated TabEventType = "updated"
	// TabEventStatus indicates a tab status change.
	TabEventStatus TabEventType = "status"
)

// TabEvent represents a change to a tab or the tab list. Tab carries the
// full snapshot after the change, so observers never see a half-applied
// fragment.
type TabEvent struct {
	Workspace WorkspaceID
	Type      TabEventType
	Tab       TabSnapshot
	ActiveTab TabID
	File      FileName
}

// NoticeLevel classifies workspace notices.
type NoticeLevel string

const (
	// NoticeInfo is an informational notice.
	NoticeInfo NoticeLevel = "info"
	// NoticeError reports a failure to the user.
	NoticeError NoticeLevel = "error"
)

// NoticeEvent carries an inline message not tied to a tab (for example an
// upload result).
type NoticeEvent struct {
	Workspace WorkspaceID
	Level     NoticeLevel
	Message   string
}
