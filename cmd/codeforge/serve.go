package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/codeforge"
	"pkt.systems/codeforge/core"
	"pkt.systems/codeforge/internal/appconfig"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			client, err := newBackendClient(cfg)
			if err != nil {
				return err
			}
			logger.Info("backend selected", "base_url", client.BaseURL(), "framing", cfg.Codegen.Framing)

			serverCfg := codeforge.ServerConfig{
				Service:    cfg.ServiceSettings(),
				HTTP:       toHTTPConfig(cfg.HTTP),
				HubHistory: cfg.HTTP.HubHistory,
			}
			serverDeps := codeforge.ServerDeps{
				ServiceDeps: core.ServiceDeps{
					Generator: client,
					Uploader:  client,
					Logger:    logger,
				},
				Health: client,
			}
			server, err := codeforge.New(serverCfg, serverDeps, codeforge.WithHTTP())
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), server, logger, serverCfg.HTTP.Addr)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "override http.addr")
	return cmd
}

func runServer(parent context.Context, server codeforge.Server, logger pslog.Logger, addr string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Stop(stopCtx); err != nil {
			logger.Warn("server stop failed", "err", err)
		}
	}()
	logger.Info("http server listening", "addr", addr)
	if err := server.Start(ctx); err != nil {
		return err
	}
	return server.Wait()
}
