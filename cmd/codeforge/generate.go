package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/codeforge/core"
	"pkt.systems/codeforge/internal/appconfig"
	"pkt.systems/codeforge/internal/eventbus"
	"pkt.systems/codeforge/schema"
	"pkt.systems/pslog"
)

const cliWorkspace schema.WorkspaceID = "cli"

func newGenerateCmd() *cobra.Command {
	var cfgPath string
	var entity string
	var outDir string
	cmd := &cobra.Command{
		Use:   "generate [fields]",
		Short: "Run one generation and print or save the resulting files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			fields, err := readFields(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			client, err := newBackendClient(cfg)
			if err != nil {
				return err
			}
			bus := eventbus.New(logger)
			events, unsubscribe := bus.Subscribe(cliWorkspace)
			defer unsubscribe()
			service, err := core.NewService(cfg.ServiceSettings(), core.ServiceDeps{Generator: client, EventSink: bus, Logger: logger})
			if err != nil {
				return err
			}
			defer func() { _ = service.CloseAll(context.Background()) }()

			resp, err := service.Generate(cmd.Context(), schema.GenerateRequest{Workspace: cliWorkspace, Fields: fields, EntityName: entity})
			if err != nil {
				return err
			}
			tab, err := awaitSettled(cmd.Context(), service, events, resp.Tab.ID)
			if err != nil {
				return err
			}
			if outDir != "" {
				if err := writeFiles(outDir, tab.Files); err != nil {
					return err
				}
				logger.Info("generate wrote files", "dir", outDir, "files", len(tab.Files))
			} else if err := printFiles(cmd.OutOrStdout(), tab.Files); err != nil {
				return err
			}
			if tab.Outcome != schema.TabOutcomeCompleted {
				return fmt.Errorf("generation %s: %s", tab.Outcome, tab.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&entity, "entity", "", "entity name sent to the backend")
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "write files into this directory instead of stdout")
	return cmd
}

func readFields(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read fields: %w", err)
	}
	return string(data), nil
}

// awaitSettled waits for the tab to settle. The bus drops events for slow
// subscribers, so the tab is also polled.
func awaitSettled(ctx context.Context, service core.Service, events <-chan eventbus.Event, id schema.TabID) (schema.TabSnapshot, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return schema.TabSnapshot{}, ctx.Err()
		case <-ticker.C:
			resp, err := service.GetTab(ctx, schema.GetTabRequest{Workspace: cliWorkspace, TabID: id})
			if err != nil {
				return schema.TabSnapshot{}, err
			}
			if resp.Tab.Settled() {
				return resp.Tab, nil
			}
		case event, ok := <-events:
			if !ok {
				return schema.TabSnapshot{}, errors.New("event stream closed")
			}
			if event.Type != eventbus.EventTab || event.Tab.Tab.ID != id {
				continue
			}
			if event.Tab.Type == schema.TabEventClosed {
				return schema.TabSnapshot{}, schema.ErrTabNotFound
			}
			if event.Tab.Tab.Settled() {
				return event.Tab.Tab, nil
			}
		}
	}
}

func printFiles(w io.Writer, files []schema.File) error {
	for i, file := range files {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "==> %s (%s) <==\n%s", file.Name, file.Type, file.Content); err != nil {
			return err
		}
		if !strings.HasSuffix(file.Content, "\n") {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeFiles stores each file under dir. Names are reduced to their base so
// backend-supplied names cannot escape dir.
func writeFiles(dir string, files []schema.File) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, file := range files {
		name := filepath.Base(filepath.Clean("/" + string(file.Name)))
		if name == "/" || name == "." {
			return fmt.Errorf("invalid file name %q", file.Name)
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(file.Content), 0o644); err != nil {
			return err
		}
	}
	return nil
}
