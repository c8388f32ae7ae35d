package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"pkt.systems/codeforge/core"
	"pkt.systems/codeforge/internal/eventbus"
	"pkt.systems/pslog"
)

// Run starts the terminal UI and blocks until the user quits or ctx ends.
func Run(ctx context.Context, service core.Service, bus *eventbus.Bus, opts Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := pslog.Ctx(ctx)
	var events <-chan eventbus.Event
	if bus != nil {
		ch, unsubscribe := bus.Subscribe(workspaceOrDefault(opts.Workspace))
		defer unsubscribe()
		events = ch
	}
	model := New(ctx, service, events, opts)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	log.Info("tui start", "workspace", model.workspace)
	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			log.Info("tui stopped", "reason", ctx.Err())
			return nil
		}
		log.Error("tui failed", "err", err)
		return err
	}
	log.Info("tui exit")
	return nil
}
