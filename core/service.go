package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pkt.systems/codeforge/internal/logx"
	"pkt.systems/codeforge/schema"
	"pkt.systems/pslog"
)

// service implements the core service behavior.
type service struct {
	cfg        schema.ServiceConfig
	generator  Generator
	uploader   Uploader
	sink       EventSink
	logger     pslog.Logger
	mu         sync.Mutex
	emitMu     sync.Mutex
	workspaces map[schema.WorkspaceID]*workspaceState
	runs       sync.WaitGroup
}

type workspaceState struct {
	tabs   map[schema.TabID]*tab
	order  []schema.TabID
	active schema.TabID
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &service{
		cfg:        normalized,
		generator:  deps.Generator,
		uploader:   deps.Uploader,
		sink:       deps.EventSink,
		logger:     logger,
		workspaces: make(map[schema.WorkspaceID]*workspaceState),
	}, nil
}

func (s *service) OpenTab(ctx context.Context, req schema.OpenTabRequest) (schema.OpenTabResponse, error) {
	if ctx == nil {
		return schema.OpenTabResponse{}, errors.New("missing context")
	}
	workspace, err := normalizeWorkspace(req.Workspace)
	if err != nil {
		return schema.OpenTabResponse{}, err
	}
	snapshot := s.openTab(ctx, workspace, req.Title, req.Fields, req.Files, nil)
	return schema.OpenTabResponse{Tab: snapshot}, nil
}

func (s *service) openTab(ctx context.Context, workspace schema.WorkspaceID, title schema.TabTitle, fields string, files []schema.File, run *streamRun) schema.TabSnapshot {
	log := logx.WithWorkspace(ctx, workspace)
	if strings.TrimSpace(string(title)) == "" {
		title = s.cfg.FallbackTitle
	}

	s.mu.Lock()
	state := s.getOrCreateWorkspaceLocked(workspace)
	taken := make(map[schema.TabTitle]bool, len(state.tabs))
	for _, existing := range state.tabs {
		taken[existing.Title] = true
	}
	title = uniqueTitle(title, s.cfg.TitleSuffixSep, taken)
	t := &tab{
		ID:     schema.TabID(newID()),
		Title:  title,
		Fields: fields,
		Status: schema.TabStatusBuilding,
		files:  schema.CloneFiles(files),
		defaults: FileDefaults{
			Name: schema.FileName(title),
			Type: s.cfg.DefaultFileType,
		},
		run: run,
	}
	if run == nil {
		// Nothing feeds a stream-less tab; its files are final.
		t.settle(schema.TabOutcomeCompleted, nil)
	}
	state.tabs[t.ID] = t
	state.order = append(state.order, t.ID)
	state.active = t.ID
	snapshot := t.Snapshot(true)
	event := schema.TabEvent{
		Workspace: workspace,
		Type:      schema.TabEventCreated,
		Tab:       snapshot,
		ActiveTab: t.ID,
	}
	s.unlockAndEmit(event)
	log.Info("service tab opened", "tab", t.ID, "title", t.Title, "files", len(files))
	return snapshot
}

func (s *service) Generate(ctx context.Context, req schema.GenerateRequest) (schema.GenerateResponse, error) {
	if ctx == nil {
		return schema.GenerateResponse{}, errors.New("missing context")
	}
	workspace, err := normalizeWorkspace(req.Workspace)
	if err != nil {
		return schema.GenerateResponse{}, err
	}
	log := logx.WithWorkspace(ctx, workspace)
	fields := strings.TrimSpace(req.Fields)
	if fields == "" {
		log.Warn("service generate rejected", "err", schema.ErrEmptyFields)
		return schema.GenerateResponse{}, &schema.ValidationError{Field: "fields", Reason: schema.ErrEmptyFields}
	}
	if s.generator == nil {
		return schema.GenerateResponse{}, schema.ErrBackendUnavailable
	}
	entity := strings.TrimSpace(req.EntityName)
	if entity == "" {
		entity = s.cfg.DefaultEntityName
	}

	runCtx, cancel := detachRunContext(ctx)
	run := &streamRun{cancel: cancel}
	title := deriveTitle(req.Fields, s.cfg.TitleMaxRunes, s.cfg.FallbackTitle)
	snapshot := s.openTab(ctx, workspace, title, req.Fields, nil, run)
	runCtx = logx.ContextWithWorkspaceTab(runCtx, workspace, snapshot.ID)

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.consumeStream(runCtx, workspace, snapshot.ID, run, GenerateRequest{EntityName: entity, Fields: req.Fields})
	}()
	log.Info("service generate started", "tab", snapshot.ID, "entity", entity, "fields_len", len(req.Fields))
	return schema.GenerateResponse{Tab: snapshot}, nil
}

func (s *service) ActivateTab(ctx context.Context, req schema.ActivateTabRequest) (schema.ActivateTabResponse, error) {
	workspace, err := normalizeWorkspace(req.Workspace)
	if err != nil {
		return schema.ActivateTabResponse{}, err
	}
	log := logx.WithWorkspaceTab(ctx, workspace, req.TabID)

	s.mu.Lock()
	state := s.workspaces[workspace]
	var t *tab
	if state != nil {
		t = state.tabs[req.TabID]
	}
	if t == nil {
		var active schema.TabID
		if state != nil {
			active = state.active
		}
		s.mu.Unlock()
		log.Debug("service tab activate ignored", "reason", "unknown tab")
		return schema.ActivateTabResponse{ActiveTab: active}, nil
	}
	state.active = t.ID
	event := schema.TabEvent{
		Workspace: workspace,
		Type:      schema.TabEventActivated,
		Tab:       t.Snapshot(true),
		ActiveTab: t.ID,
	}
	s.unlockAndEmit(event)
	log.Info("service tab activated")
	return schema.ActivateTabResponse{ActiveTab: t.ID, Changed: true}, nil
}

func (s *service) CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error) {
	if ctx == nil {
		return schema.CloseTabResponse{}, errors.New("missing context")
	}
	workspace, err := normalizeWorkspace(req.Workspace)
	if err != nil {
		return schema.CloseTabResponse{}, err
	}
	log := logx.WithWorkspaceTab(ctx, workspace, req.TabID)

	s.mu.Lock()
	state := s.workspaces[workspace]
	var t *tab
	if state != nil {
		t = state.tabs[req.TabID]
	}
	if t == nil {
		s.mu.Unlock()
		log.Warn("service tab close failed", "err", schema.ErrTabNotFound)
		return schema.CloseTabResponse{}, schema.ErrTabNotFound
	}
	run := t.run
	t.run = nil
	delete(state.tabs, req.TabID)
	state.order = removeTabID(state.order, req.TabID)
	if state.active == req.TabID {
		state.active = lastTabID(state.order)
	}
	if len(state.tabs) == 0 {
		delete(s.workspaces, workspace)
	}
	snapshot := t.Snapshot(false)
	event := schema.TabEvent{
		Workspace: workspace,
		Type:      schema.TabEventClosed,
		Tab:       snapshot,
		ActiveTab: state.active,
	}
	active := state.active
	s.unlockAndEmit(event)
	if run != nil && run.cancel != nil {
		run.cancel()
		log.Debug("service tab stream canceled")
	}
	log.Info("service tab closed", "active", active, "building", snapshot.Status == schema.TabStatusBuilding)
	return schema.CloseTabResponse{Tab: snapshot, ActiveTab: active}, nil
}

func (s *service) ListTabs(ctx context.Context, req schema.ListTabsRequest) (schema.ListTabsResponse, error) {
	workspace, err := normalizeWorkspace(req.Workspace)
	if err != nil {
		return schema.ListTabsResponse{}, err
	}
	log := logx.WithWorkspace(ctx, workspace)

	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.workspaces[workspace]
	if state == nil {
		log.Trace("service tabs listed", "count", 0)
		return schema.ListTabsResponse{Tabs: []schema.TabSnapshot{}}, nil
	}
	tabs := make([]schema.TabSnapshot, 0, len(state.order))
	for _, id := range state.order {
		t := state.tabs[id]
		if t == nil {
			continue
		}
		tabs = append(tabs, t.Snapshot(id == state.active))
	}
	resp := schema.ListTabsResponse{Tabs: tabs, ActiveTab: state.active}
	log.Trace("service tabs listed", "count", len(tabs), "active", resp.ActiveTab)
	return resp, nil
}

func (s *service) GetTab(ctx context.Context, req schema.GetTabRequest) (schema.GetTabResponse, error) {
	workspace, err := normalizeWorkspace(req.Workspace)
	if err != nil {
		return schema.GetTabResponse{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.workspaces[workspace]
	if state == nil {
		return schema.GetTabResponse{}, schema.ErrTabNotFound
	}
	id := req.TabID
	if id == "" {
		id = state.active
	}
	t := state.tabs[id]
	if t == nil {
		return schema.GetTabResponse{}, schema.ErrTabNotFound
	}
	return schema.GetTabResponse{Tab: t.Snapshot(id == state.active)}, nil
}

func (s *service) Upload(ctx context.Context, req schema.UploadRequest) (schema.UploadResponse, error) {
	if ctx == nil {
		return schema.UploadResponse{}, errors.New("missing context")
	}
	workspace, err := normalizeWorkspace(req.Workspace)
	if err != nil {
		return schema.UploadResponse{}, err
	}
	log := logx.WithWorkspace(ctx, workspace).With("file", req.FileName)
	if strings.TrimSpace(req.FileName) == "" || req.Body == nil {
		return schema.UploadResponse{}, &schema.ValidationError{Field: "multipartFile", Reason: schema.ErrInvalidRequest}
	}
	if s.uploader == nil {
		return schema.UploadResponse{}, schema.ErrBackendUnavailable
	}
	result, err := s.uploader.Upload(ctx, req.FileName, req.Body)
	if err != nil {
		log.Warn("service upload failed", "err", err)
		s.emitNotice(schema.NoticeEvent{Workspace: workspace, Level: schema.NoticeError, Message: "upload failed: " + err.Error()})
		return schema.UploadResponse{Result: result}, err
	}
	message := "upload ok: " + req.FileName
	s.emitNotice(schema.NoticeEvent{Workspace: workspace, Level: schema.NoticeInfo, Message: message})
	log.Info("service upload ok", "code", result.Code)
	return schema.UploadResponse{Result: result, Message: message}, nil
}

// ReleaseWorkspace drops every tab of a workspace and cancels their streams.
// No events are emitted; the workspace has no audience left.
func (s *service) ReleaseWorkspace(ctx context.Context, req schema.ReleaseWorkspaceRequest) (schema.ReleaseWorkspaceResponse, error) {
	workspace, err := normalizeWorkspace(req.Workspace)
	if err != nil {
		return schema.ReleaseWorkspaceResponse{}, err
	}
	s.mu.Lock()
	state := s.workspaces[workspace]
	delete(s.workspaces, workspace)
	var runs []*streamRun
	if state != nil {
		for _, t := range state.tabs {
			if t.run != nil {
				runs = append(runs, t.run)
				t.run = nil
			}
		}
	}
	s.mu.Unlock()
	// Wait out any emit that read the workspace before it was dropped.
	s.emitMu.Lock()
	s.emitMu.Unlock()
	for _, run := range runs {
		if run.cancel != nil {
			run.cancel()
		}
	}
	closed := 0
	if state != nil {
		closed = len(state.tabs)
	}
	logx.WithWorkspace(ctx, workspace).Info("service workspace released", "tabs", closed, "canceled", len(runs))
	return schema.ReleaseWorkspaceResponse{Closed: closed}, nil
}

func (s *service) CloseAll(ctx context.Context) error {
	s.mu.Lock()
	var runs []*streamRun
	for _, state := range s.workspaces {
		for _, t := range state.tabs {
			if t.run != nil {
				runs = append(runs, t.run)
			}
		}
	}
	s.mu.Unlock()
	for _, run := range runs {
		if run.cancel != nil {
			run.cancel()
		}
	}
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-done:
		s.logger.Info("service streams closed", "canceled", len(runs))
		return nil
	case <-ctx.Done():
		s.logger.Warn("service streams close timed out", "err", ctx.Err())
		return ctx.Err()
	}
}

// unlockAndEmit releases s.mu and publishes events in lock order, so sinks
// never observe an update after the close of the same tab.
func (s *service) unlockAndEmit(events ...schema.TabEvent) {
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	for _, event := range events {
		s.emitTabEvent(event)
	}
}

func (s *service) emitTabEvent(event schema.TabEvent) {
	if s.sink == nil {
		return
	}
	s.sink.OnTabEvent(event)
}

func (s *service) emitNotice(event schema.NoticeEvent) {
	if s.sink == nil {
		return
	}
	s.sink.OnNotice(event)
}

func (s *service) getOrCreateWorkspaceLocked(workspace schema.WorkspaceID) *workspaceState {
	state := s.workspaces[workspace]
	if state == nil {
		state = &workspaceState{tabs: make(map[schema.TabID]*tab)}
		s.workspaces[workspace] = state
	}
	return state
}

func detachRunContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.Background()
	if ctx != nil {
		if logger := pslog.Ctx(ctx); logger != nil {
			base = logx.CopyContextFields(pslog.ContextWithLogger(base, logger), ctx)
		}
	}
	return context.WithCancel(base)
}

func normalizeWorkspace(workspace schema.WorkspaceID) (schema.WorkspaceID, error) {
	if err := schema.ValidateWorkspaceID(workspace); err != nil {
		return "", err
	}
	return workspace, nil
}

func removeTabID(order []schema.TabID, id schema.TabID) []schema.TabID {
	for i, current := range order {
		if current == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

func lastTabID(order []schema.TabID) schema.TabID {
	if len(order) == 0 {
		return ""
	}
	return order[len(order)-1]
}
