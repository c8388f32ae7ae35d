package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/codeforge/bootstrap"
	"pkt.systems/pslog"
)

func newBootstrapCmd() *cobra.Command {
	var outputDir string
	var overwrite bool
	var backendURL string
	var compose bool
	var imageTag string
	var sets []string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Generate default config, .env and optional compose file",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			overrides := make([]bootstrap.ConfigOverride, 0, len(sets))
			for _, raw := range sets {
				override, err := bootstrap.ParseOverride(raw)
				if err != nil {
					return err
				}
				overrides = append(overrides, override)
			}
			paths, err := bootstrap.WriteBootstrap(outputDir, overwrite, bootstrap.Options{
				BackendURL: backendURL,
				Compose:    compose,
				ImageTag:   imageTag,
				Overrides:  overrides,
			})
			if err != nil {
				return err
			}
			logger.Info("bootstrap wrote", "path", paths.ConfigPath, "name", "config.yaml")
			logger.Info("bootstrap wrote", "path", paths.EnvPath, "name", ".env")
			if paths.ComposePath != "" {
				logger.Info("bootstrap wrote", "path", paths.ComposePath, "name", "docker-compose.yaml")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default ~/.codeforge)")
	cmd.Flags().BoolVar(&overwrite, "force", false, "overwrite existing files")
	cmd.Flags().StringVar(&backendURL, "backend", "", "backend base URL written to .env")
	cmd.Flags().BoolVar(&compose, "compose", false, "also write docker-compose.yaml")
	cmd.Flags().StringVar(&imageTag, "image-tag", "", "server image tag for the compose file")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "config override key=value (repeatable)")
	return cmd
}
