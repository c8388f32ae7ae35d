package core

import (
	"context"
	"errors"
	"testing"

	"pkt.systems/codeforge/schema"
)

func openTabs(t *testing.T, svc Service, workspace schema.WorkspaceID, titles ...schema.TabTitle) []schema.TabID {
	t.Helper()
	ids := make([]schema.TabID, 0, len(titles))
	for _, title := range titles {
		resp, err := svc.OpenTab(context.Background(), schema.OpenTabRequest{Workspace: workspace, Title: title})
		if err != nil {
			t.Fatalf("open tab %q: %v", title, err)
		}
		ids = append(ids, resp.Tab.ID)
	}
	return ids
}

func TestOpenTabBecomesActiveAndSettled(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, ServiceDeps{EventSink: sink})
	ws := schema.WorkspaceID("ws1")
	resp, err := svc.OpenTab(context.Background(), schema.OpenTabRequest{
		Workspace: ws,
		Title:     "Demo",
		Files:     []schema.File{{Name: "Demo", Type: "java", Content: "class Demo {}"}},
	})
	if err != nil {
		t.Fatalf("open tab: %v", err)
	}
	if !resp.Tab.Active || resp.Tab.Status != schema.TabStatusSettled || resp.Tab.Outcome != schema.TabOutcomeCompleted {
		t.Fatalf("expected active completed tab, got %+v", resp.Tab)
	}
	list, err := svc.ListTabs(context.Background(), schema.ListTabsRequest{Workspace: ws})
	if err != nil {
		t.Fatalf("list tabs: %v", err)
	}
	if list.ActiveTab != resp.Tab.ID || len(list.Tabs) != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}
	if file, ok := list.Tabs[0].File("Demo"); !ok || file.Content != "class Demo {}" {
		t.Fatalf("expected initial file, got %+v", list.Tabs[0].Files)
	}
	events := sink.tabEvents(resp.Tab.ID)
	if len(events) != 1 || events[0].Type != schema.TabEventCreated {
		t.Fatalf("expected created event, got %+v", events)
	}
}

func TestOpenTabMakesTitlesUnique(t *testing.T) {
	svc := newTestService(t, ServiceDeps{})
	ws := schema.WorkspaceID("ws1")
	ids := openTabs(t, svc, ws, "demo", "demo", "demo", "")
	seen := map[schema.TabID]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate tab id %s", id)
		}
		seen[id] = true
	}
	list, err := svc.ListTabs(context.Background(), schema.ListTabsRequest{Workspace: ws})
	if err != nil {
		t.Fatalf("list tabs: %v", err)
	}
	want := []schema.TabTitle{"demo", "demo_1", "demo_2", schema.DefaultFallbackTitle}
	for i, tab := range list.Tabs {
		if tab.Title != want[i] {
			t.Fatalf("tab %d: got title %q want %q", i, tab.Title, want[i])
		}
	}
}

func TestCloseActiveTabSelectsLastRemaining(t *testing.T) {
	svc := newTestService(t, ServiceDeps{})
	ws := schema.WorkspaceID("ws1")
	ids := openTabs(t, svc, ws, "T1", "T2", "T3")
	if _, err := svc.ActivateTab(context.Background(), schema.ActivateTabRequest{Workspace: ws, TabID: ids[1]}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	resp, err := svc.CloseTab(context.Background(), schema.CloseTabRequest{Workspace: ws, TabID: ids[1]})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if resp.ActiveTab != ids[2] {
		t.Fatalf("expected T3 active, got %s", resp.ActiveTab)
	}
	list, err := svc.ListTabs(context.Background(), schema.ListTabsRequest{Workspace: ws})
	if err != nil {
		t.Fatalf("list tabs: %v", err)
	}
	if len(list.Tabs) != 2 || list.Tabs[0].ID != ids[0] || list.Tabs[1].ID != ids[2] {
		t.Fatalf("unexpected remaining tabs: %+v", list.Tabs)
	}
	if !list.Tabs[1].Active || list.Tabs[0].Active {
		t.Fatalf("expected only T3 active: %+v", list.Tabs)
	}
}

func TestCloseInactiveTabKeepsActive(t *testing.T) {
	svc := newTestService(t, ServiceDeps{})
	ws := schema.WorkspaceID("ws1")
	ids := openTabs(t, svc, ws, "T1", "T2", "T3")
	if _, err := svc.ActivateTab(context.Background(), schema.ActivateTabRequest{Workspace: ws, TabID: ids[0]}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	resp, err := svc.CloseTab(context.Background(), schema.CloseTabRequest{Workspace: ws, TabID: ids[2]})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if resp.ActiveTab != ids[0] {
		t.Fatalf("expected T1 to stay active, got %s", resp.ActiveTab)
	}
}

func TestCloseOnlyTabClearsActive(t *testing.T) {
	svc := newTestService(t, ServiceDeps{})
	ws := schema.WorkspaceID("ws1")
	ids := openTabs(t, svc, ws, "only")
	resp, err := svc.CloseTab(context.Background(), schema.CloseTabRequest{Workspace: ws, TabID: ids[0]})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if resp.ActiveTab != "" {
		t.Fatalf("expected no active tab, got %s", resp.ActiveTab)
	}
	if _, err := svc.GetTab(context.Background(), schema.GetTabRequest{Workspace: ws}); !errors.Is(err, schema.ErrTabNotFound) {
		t.Fatalf("expected ErrTabNotFound for active lookup, got %v", err)
	}
}

func TestCloseUnknownTabReturnsNotFound(t *testing.T) {
	svc := newTestService(t, ServiceDeps{})
	_, err := svc.CloseTab(context.Background(), schema.CloseTabRequest{Workspace: "ws1", TabID: "missing"})
	if !errors.Is(err, schema.ErrTabNotFound) {
		t.Fatalf("expected ErrTabNotFound, got %v", err)
	}
}

func TestActivateUnknownTabIsNoop(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, ServiceDeps{EventSink: sink})
	ws := schema.WorkspaceID("ws1")
	ids := openTabs(t, svc, ws, "T1")
	resp, err := svc.ActivateTab(context.Background(), schema.ActivateTabRequest{Workspace: ws, TabID: "missing"})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if resp.Changed || resp.ActiveTab != ids[0] {
		t.Fatalf("unexpected activate response: %+v", resp)
	}
	sink.mu.Lock()
	count := len(sink.events)
	sink.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected only the created event, got %d events", count)
	}
}

func TestWorkspacesAreIsolated(t *testing.T) {
	svc := newTestService(t, ServiceDeps{})
	a := openTabs(t, svc, "alice", "demo")
	openTabs(t, svc, "bob", "demo")
	list, err := svc.ListTabs(context.Background(), schema.ListTabsRequest{Workspace: "bob"})
	if err != nil {
		t.Fatalf("list tabs: %v", err)
	}
	if len(list.Tabs) != 1 || list.Tabs[0].Title != "demo" {
		t.Fatalf("expected bob to see only their tab, got %+v", list.Tabs)
	}
	if _, err := svc.CloseTab(context.Background(), schema.CloseTabRequest{Workspace: "bob", TabID: a[0]}); !errors.Is(err, schema.ErrTabNotFound) {
		t.Fatalf("expected cross-workspace close to fail, got %v", err)
	}
}

func TestInvalidWorkspaceRejected(t *testing.T) {
	svc := newTestService(t, ServiceDeps{})
	if _, err := svc.OpenTab(context.Background(), schema.OpenTabRequest{Workspace: "bad id"}); !errors.Is(err, schema.ErrInvalidWorkspace) {
		t.Fatalf("expected ErrInvalidWorkspace, got %v", err)
	}
}

func workspaceCount(svc Service) int {
	impl := svc.(*service)
	impl.mu.Lock()
	defer impl.mu.Unlock()
	return len(impl.workspaces)
}

func TestReadPathsDoNotCreateWorkspaces(t *testing.T) {
	svc := newTestService(t, ServiceDeps{})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		ws := schema.WorkspaceID("ghost" + string(rune('a'+i)))
		list, err := svc.ListTabs(ctx, schema.ListTabsRequest{Workspace: ws})
		if err != nil || len(list.Tabs) != 0 || list.ActiveTab != "" {
			t.Fatalf("expected empty list, got %+v err=%v", list, err)
		}
		if _, err := svc.GetTab(ctx, schema.GetTabRequest{Workspace: ws}); !errors.Is(err, schema.ErrTabNotFound) {
			t.Fatalf("expected ErrTabNotFound, got %v", err)
		}
		act, err := svc.ActivateTab(ctx, schema.ActivateTabRequest{Workspace: ws, TabID: "x"})
		if err != nil || act.Changed {
			t.Fatalf("expected no-op activate, got %+v err=%v", act, err)
		}
		if _, err := svc.CloseTab(ctx, schema.CloseTabRequest{Workspace: ws, TabID: "x"}); !errors.Is(err, schema.ErrTabNotFound) {
			t.Fatalf("expected ErrTabNotFound, got %v", err)
		}
	}
	if got := workspaceCount(svc); got != 0 {
		t.Fatalf("expected no workspace state, got %d", got)
	}
}

func TestClosingLastTabDropsWorkspace(t *testing.T) {
	svc := newTestService(t, ServiceDeps{})
	ids := openTabs(t, svc, "ws1", "a", "b")
	for _, id := range ids {
		if _, err := svc.CloseTab(context.Background(), schema.CloseTabRequest{Workspace: "ws1", TabID: id}); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	if got := workspaceCount(svc); got != 0 {
		t.Fatalf("expected workspace state to be dropped, got %d", got)
	}
	openTabs(t, svc, "ws1", "c")
	list, err := svc.ListTabs(context.Background(), schema.ListTabsRequest{Workspace: "ws1"})
	if err != nil || len(list.Tabs) != 1 || list.ActiveTab != list.Tabs[0].ID {
		t.Fatalf("expected workspace to be usable again, got %+v err=%v", list, err)
	}
}
