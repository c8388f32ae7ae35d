package core

import (
	"context"
	"errors"
	"io"
	"time"

	"pkt.systems/codeforge/internal/logx"
	"pkt.systems/codeforge/schema"
	"pkt.systems/pslog"
)

func (s *service) consumeStream(ctx context.Context, workspace schema.WorkspaceID, tabID schema.TabID, run *streamRun, req GenerateRequest) {
	log := logx.WithWorkspaceTab(ctx, workspace, tabID)
	defer func() {
		if run.cancel != nil {
			run.cancel()
		}
	}()
	started := time.Now()
	log.Info("service stream start", "entity", req.EntityName)

	stream, err := s.generator.Generate(ctx, req)
	if err != nil {
		log.Warn("service stream open failed", "err", err)
		s.settleTab(log, workspace, tabID, run, err)
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Debug("service stream close failed", "err", err)
		}
	}()

	count := 0
	var streamErr error
	for {
		frag, err := stream.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				streamErr = err
			}
			break
		}
		if !s.applyFragment(log, workspace, tabID, run, frag) {
			log.Debug("service stream detached", "fragments", count)
			return
		}
		count++
	}
	if streamErr != nil {
		log.Warn("service stream ended early", "err", streamErr, "fragments", count, "partial", schema.IsPartialFailure(streamErr))
	} else {
		log.Info("service stream finished", "fragments", count, "duration_ms", time.Since(started).Milliseconds())
	}
	s.settleTab(log, workspace, tabID, run, streamErr)
}

// applyFragment reports false once the tab is gone or no longer fed by run.
func (s *service) applyFragment(log pslog.Logger, workspace schema.WorkspaceID, tabID schema.TabID, run *streamRun, frag schema.Fragment) bool {
	s.mu.Lock()
	state := s.workspaces[workspace]
	if state == nil {
		s.mu.Unlock()
		return false
	}
	t := state.tabs[tabID]
	if t == nil || t.run != run || t.Status != schema.TabStatusBuilding {
		s.mu.Unlock()
		return false
	}
	if frag.Delta == "" {
		s.mu.Unlock()
		return true
	}
	t.files = ApplyFragment(t.files, frag, t.defaults)
	t.transcript.WriteString(frag.Delta)
	t.fragments++
	target := t.defaults.Name
	if frag.Kind == schema.FragmentNamed && frag.Name != "" {
		target = frag.Name
	}
	event := schema.TabEvent{
		Workspace: workspace,
		Type:      schema.TabEventUpdated,
		Tab:       t.Snapshot(tabID == state.active),
		ActiveTab: state.active,
		File:      target,
	}
	s.unlockAndEmit(event)
	log.Trace("service fragment applied", "kind", frag.Kind, "file", target, "delta_len", len(frag.Delta))
	return true
}

func (s *service) settleTab(log pslog.Logger, workspace schema.WorkspaceID, tabID schema.TabID, run *streamRun, err error) {
	outcome := schema.TabOutcomeCompleted
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		outcome = schema.TabOutcomeCanceled
	default:
		outcome = schema.TabOutcomeFailed
	}

	s.mu.Lock()
	state := s.workspaces[workspace]
	var events []schema.TabEvent
	if state != nil {
		t := state.tabs[tabID]
		if t != nil && t.run == run && t.Status == schema.TabStatusBuilding {
			t.settle(outcome, err)
			events = append(events, schema.TabEvent{
				Workspace: workspace,
				Type:      schema.TabEventStatus,
				Tab:       t.Snapshot(tabID == state.active),
				ActiveTab: state.active,
			})
		}
	}
	s.unlockAndEmit(events...)
	if len(events) > 0 {
		log.Info("service tab settled", "outcome", outcome, "files", len(events[0].Tab.Files))
	}
}
