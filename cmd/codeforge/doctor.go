package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/codeforge/core"
	"pkt.systems/codeforge/internal/appconfig"
	"pkt.systems/codeforge/schema"
	"pkt.systems/pslog"
)

const doctorFragmentLimit = 10

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var streamFields string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check backend connectivity and optionally stream a sample",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath, "base_url", cfg.Codegen.BaseURL)

			client, err := newBackendClient(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report, err := client.Health(ctx)
			if err != nil {
				logger.Error("doctor backend health failed", "err", err)
				return err
			}
			logger.Info("doctor backend health ok", "status", report.Status)

			if strings.TrimSpace(streamFields) == "" {
				return nil
			}
			fragments, err := sampleStream(ctx, client, streamFields, doctorFragmentLimit)
			logger.Info("doctor stream sample", "fragments", fragments)
			if err != nil {
				logger.Error("doctor stream failed", "err", err, "partial", schema.IsPartialFailure(err))
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "backend ok: %d fragment(s) received\n", fragments)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&streamFields, "stream", "", "also open a generation stream with these fields")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "overall timeout")
	return cmd
}

// sampleStream reads up to limit fragments and closes the stream.
func sampleStream(ctx context.Context, generator core.Generator, fields string, limit int) (int, error) {
	stream, err := generator.Generate(ctx, core.GenerateRequest{Fields: fields})
	if err != nil {
		return 0, err
	}
	defer func() { _ = stream.Close() }()
	count := 0
	for count < limit {
		if _, err := stream.Next(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, err
		}
		count++
	}
	return count, nil
}
