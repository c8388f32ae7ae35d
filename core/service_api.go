package core

import (
	"context"

	"pkt.systems/codeforge/schema"
)

// Service is the transport-agnostic API for managing generation tabs.
type Service interface {
	OpenTab(ctx context.Context, req schema.OpenTabRequest) (schema.OpenTabResponse, error)
	Generate(ctx context.Context, req schema.GenerateRequest) (schema.GenerateResponse, error)
	ActivateTab(ctx context.Context, req schema.ActivateTabRequest) (schema.ActivateTabResponse, error)
	CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error)
	ListTabs(ctx context.Context, req schema.ListTabsRequest) (schema.ListTabsResponse, error)
	GetTab(ctx context.Context, req schema.GetTabRequest) (schema.GetTabResponse, error)
	Upload(ctx context.Context, req schema.UploadRequest) (schema.UploadResponse, error)
	ReleaseWorkspace(ctx context.Context, req schema.ReleaseWorkspaceRequest) (schema.ReleaseWorkspaceResponse, error)
	// CloseAll cancels every in-flight stream.
	CloseAll(ctx context.Context) error
}
