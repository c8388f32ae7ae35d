package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/codeforge"
	"pkt.systems/codeforge/core"
	"pkt.systems/codeforge/internal/appconfig"
	"pkt.systems/codeforge/internal/eventbus"
	"pkt.systems/codeforge/internal/tui"
	"pkt.systems/codeforge/schema"
	"pkt.systems/pslog"
)

func newTUICmd() *cobra.Command {
	var cfgPath string
	var withHTTP bool
	var workspace string
	var logFile string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Start the terminal UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, closeLog, err := openTUILog(logFile)
			if err != nil {
				return err
			}
			defer closeLog()
			cmdCtx := pslog.ContextWithLogger(cmd.Context(), logger)
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if workspace != "" {
				cfg.TUI.Workspace = workspace
			}
			if err := schema.ValidateWorkspaceID(schema.WorkspaceID(cfg.TUI.Workspace)); err != nil {
				return err
			}
			client, err := newBackendClient(cfg)
			if err != nil {
				return err
			}
			bus := eventbus.New(logger)
			opts := []codeforge.ServerOption{codeforge.WithEventBus(bus)}
			if withHTTP {
				opts = append(opts, codeforge.WithHTTP())
			}
			server, err := codeforge.New(codeforge.ServerConfig{
				Service:    cfg.ServiceSettings(),
				HTTP:       toHTTPConfig(cfg.HTTP),
				HubHistory: cfg.HTTP.HubHistory,
			}, codeforge.ServerDeps{
				ServiceDeps: core.ServiceDeps{Generator: client, Uploader: client, Logger: logger},
				Health:      client,
			}, opts...)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmdCtx)
			defer cancel()
			if err := server.Start(ctx); err != nil {
				return err
			}
			waitErr := make(chan error, 1)
			go func() { waitErr <- server.Wait() }()

			runErr := tui.Run(ctx, server.Service(), bus, tui.Options{
				Workspace:  schema.WorkspaceID(cfg.TUI.Workspace),
				EntityName: cfg.Codegen.EntityName,
			})
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			stopErr := server.Stop(stopCtx)
			cancel()
			return errors.Join(runErr, stopErr, <-waitErr)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&withHTTP, "http", false, "also serve the web UI while the terminal UI runs")
	cmd.Flags().StringVar(&workspace, "workspace", "", "override tui.workspace")
	cmd.Flags().StringVar(&logFile, "log-file", "", "log destination while the terminal UI owns the screen (default ~/.codeforge/tui.log)")
	return cmd
}

// openTUILog redirects logging to a file so log lines do not corrupt the screen.
func openTUILog(path string) (pslog.Logger, func(), error) {
	if path == "" {
		dir, err := appconfig.DefaultConfigDir()
		if err != nil {
			return nil, nil, err
		}
		path = filepath.Join(dir, "tui.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	logger := pslog.NewWithOptions(f, pslog.Options{
		Mode:    pslog.ModeStructured,
		NoColor: true,
	})
	return logger, func() { _ = f.Close() }, nil
}
