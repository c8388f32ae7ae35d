package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pkt.systems/codeforge/internal/appconfig"
	"pkt.systems/pslog"
)

func newUploadCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Forward a document to the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			client, err := newBackendClient(cfg)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			name := filepath.Base(args[0])
			result, err := client.Upload(cmd.Context(), name, f)
			if err != nil {
				return err
			}
			logger.Info("upload ok", "file", name, "code", result.Code)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "upload ok: %s\n", name)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}
