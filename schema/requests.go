package schema

import "io"

// Tab lifecycle.

// OpenTabRequest describes a request to open a tab.
type OpenTabRequest struct {
	Workspace WorkspaceID
	Title     TabTitle
	Files     []File
	Fields    string
}

// OpenTabResponse reports the opened tab.
type OpenTabResponse struct {
	Tab TabSnapshot `json:"tab"`
}

// CloseTabRequest describes a request to close a tab.
type CloseTabRequest struct {
	Workspace WorkspaceID
	TabID     TabID
}

// CloseTabResponse reports the closed tab and the new active tab.
type CloseTabResponse struct {
	Tab       TabSnapshot `json:"tab"`
	ActiveTab TabID       `json:"active_tab"`
}

// ListTabsRequest describes a request to list tabs.
type ListTabsRequest struct {
	Workspace WorkspaceID
}

// ListTabsResponse reports tabs in open order and the active tab.
type ListTabsResponse struct {
	Tabs      []TabSnapshot `json:"tabs"`
	ActiveTab TabID         `json:"active_tab"`
}

// ActivateTabRequest describes a request to activate a tab.
type ActivateTabRequest struct {
	Workspace WorkspaceID
	TabID     TabID
}

// ActivateTabResponse reports the active tab. Changed is false when the
// requested tab is not open.
type ActivateTabResponse struct {
	ActiveTab TabID `json:"active_tab"`
	Changed   bool  `json:"changed"`
}

// GetTabRequest describes a request for one tab.
type GetTabRequest struct {
	Workspace WorkspaceID
	TabID     TabID
}

// GetTabResponse reports one tab.
type GetTabResponse struct {
	Tab TabSnapshot `json:"tab"`
}

// Generation.

// GenerateRequest describes a generation submission.
type GenerateRequest struct {
	Workspace  WorkspaceID
	Fields     string
	EntityName string
}

// GenerateResponse reports the tab that receives the stream.
type GenerateResponse struct {
	Tab TabSnapshot `json:"tab"`
}

// ReleaseWorkspaceRequest drops a workspace once nobody can reach it.
type ReleaseWorkspaceRequest struct {
	Workspace WorkspaceID
}

// ReleaseWorkspaceResponse reports how many tabs were dropped.
type ReleaseWorkspaceResponse struct {
	Closed int `json:"closed"`
}

// Backend collaborators.

// UploadResult is the decoded backend answer to an upload.
type UploadResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// HealthReport describes the backend connection test.
type HealthReport struct {
	Status  int    `json:"status"`
	Details any    `json:"details,omitempty"`
	BaseURL string `json:"base_url"`
}

// UploadRequest describes a document forwarded to the backend.
type UploadRequest struct {
	Workspace WorkspaceID
	FileName  string
	Body      io.Reader
}

// UploadResponse reports the backend answer and the user-facing message.
type UploadResponse struct {
	Result  UploadResult `json:"result"`
	Message string       `json:"message"`
}
