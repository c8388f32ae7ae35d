package logx

import (
	"context"

	"pkt.systems/codeforge/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	workspaceKey contextKey = iota
	tabKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithWorkspace annotates the logger with the workspace id if present.
func WithWorkspace(ctx context.Context, workspace schema.WorkspaceID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if workspace != "" {
		if current, ok := ctx.Value(workspaceKey).(schema.WorkspaceID); ok && current == workspace {
			return log
		}
		log = log.With("workspace", workspace)
	}
	return log
}

// WithWorkspaceTab annotates the logger with workspace and tab identifiers.
func WithWorkspaceTab(ctx context.Context, workspace schema.WorkspaceID, tabID schema.TabID) pslog.Logger {
	log := WithWorkspace(ctx, workspace)
	if tabID != "" {
		if current, ok := ctx.Value(tabKey).(schema.TabID); ok && current == tabID {
			return log
		}
		log = log.With("tab", tabID)
	}
	return log
}

// WithFile annotates the logger with a generated file name.
func WithFile(log pslog.Logger, name schema.FileName, fileType schema.FileType) pslog.Logger {
	if name != "" {
		log = log.With("file", name)
	}
	if fileType != "" {
		log = log.With("file_type", fileType)
	}
	return log
}

// ContextWithWorkspace stores the workspace marker on the context for log de-duplication.
func ContextWithWorkspace(ctx context.Context, workspace schema.WorkspaceID) context.Context {
	if ctx == nil || workspace == "" {
		return ctx
	}
	return context.WithValue(ctx, workspaceKey, workspace)
}

// ContextWithTab stores the tab marker on the context for log de-duplication.
func ContextWithTab(ctx context.Context, tabID schema.TabID) context.Context {
	if ctx == nil || tabID == "" {
		return ctx
	}
	return context.WithValue(ctx, tabKey, tabID)
}

// ContextWithWorkspaceTab attaches a logger carrying both ids and the
// matching markers to the context.
func ContextWithWorkspaceTab(ctx context.Context, workspace schema.WorkspaceID, tabID schema.TabID) context.Context {
	if ctx == nil {
		return ctx
	}
	log := WithWorkspaceTab(ctx, workspace, tabID)
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithTab(ContextWithWorkspace(ctx, workspace), tabID)
}

// ContextWithWorkspaceLogger attaches the logger and workspace marker to the context.
func ContextWithWorkspaceLogger(ctx context.Context, log pslog.Logger, workspace schema.WorkspaceID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithWorkspace(ctx, workspace)
}

// CopyContextFields copies workspace/tab markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if workspace, ok := src.Value(workspaceKey).(schema.WorkspaceID); ok && workspace != "" {
		dst = ContextWithWorkspace(dst, workspace)
	}
	if tab, ok := src.Value(tabKey).(schema.TabID); ok && tab != "" {
		dst = ContextWithTab(dst, tab)
	}
	return dst
}
