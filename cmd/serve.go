package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/pagesmith/internal/preview"
	"github.com/conneroisu/pagesmith/internal/server"
	"github.com/conneroisu/pagesmith/internal/watcher"
)

// watchDelay groups the several events editors emit for one save. The
// pipeline applies its own debounce on top.
const watchDelay = 50 * time.Millisecond

var serveNoWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the live preview server",
	Long: `Start the live preview server. The block tree and variables files are
watched; every change is re-rendered after the debounce window and pushed to
connected viewers over a websocket.

Examples:
  pagesmith serve --tree page.json
  pagesmith serve --tree page.json --vars vars.yml --port 3000
  pagesmith serve --allowed-origin http://editor.example`,
	PreRunE: bindOnRun(serverBindings, contentBindings),
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addServerFlags(serveCmd)
	addContentFlags(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Render once and do not watch for changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.close(context.Background())

	if _, err := a.initPlugins(ctx); err != nil {
		return err
	}

	srvCfg := server.Config{
		Host:           a.cfg.Server.Host,
		Port:           a.cfg.Server.Port,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
	}
	srv := server.New(srvCfg, server.WithLogger(a.logger))

	pipeline := preview.NewPipeline(srv, a.pipelineOptions()...)
	defer pipeline.Close()

	treeFile := viper.GetString("blocks.tree_file")
	varsFile := a.cfg.Preview.VariablesFile

	s := &session{app: a, pipeline: pipeline, treeFile: treeFile, varsFile: varsFile}
	if err := s.reloadTree(ctx); err != nil {
		return err
	}
	pipeline.Flush()

	if !serveNoWatch {
		fw, err := s.watch(ctx)
		if err != nil {
			return err
		}
		defer fw.Stop()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving preview of %s at http://%s\n", treeFile, srvCfg.Addr())

	if err := srv.Start(ctx); err != nil {
		return err
	}
	a.logger.Info(context.Background(), "Preview server stopped", "stats", pipeline.Stats())
	return nil
}

// session connects file changes to the preview pipeline.
type session struct {
	app      *app
	pipeline *preview.Pipeline
	treeFile string
	varsFile string
}

func (s *session) reloadTree(ctx context.Context) error {
	content, err := s.app.readTree(ctx, s.treeFile)
	if err != nil {
		return err
	}
	if missing := preview.Unresolved(content, s.app.variables.Variables()); len(missing) > 0 {
		s.app.logger.Warn(ctx, nil, "Unresolved placeholders", "placeholders", missing)
	}
	s.pipeline.UpdatePreview(content)
	return nil
}

func (s *session) reloadVariables() error {
	vars, err := preview.LoadVariables(s.varsFile)
	if err != nil {
		return err
	}
	s.app.variables.Set(vars)
	s.pipeline.Refresh()
	return nil
}

func (s *session) watch(ctx context.Context) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(watchDelay, watcher.WithLogger(s.app.logger))
	if err != nil {
		return nil, err
	}
	fw.AddFilter(watcher.NoEditorTempFilter)

	if err := fw.WatchFile(s.treeFile); err != nil {
		fw.Stop()
		return nil, err
	}
	if s.varsFile != "" {
		if err := fw.WatchFile(s.varsFile); err != nil {
			fw.Stop()
			return nil, err
		}
	}

	fw.AddHandler(s.handleChanges)
	if err := fw.Start(ctx); err != nil {
		fw.Stop()
		return nil, err
	}
	return fw, nil
}

// handleChanges reloads whichever of the watched files changed. A file that
// fails to load keeps the previous preview.
func (s *session) handleChanges(ctx context.Context, events []watcher.ChangeEvent) error {
	var treeChanged, varsChanged bool
	for _, event := range events {
		if event.Type == watcher.EventTypeDeleted {
			continue
		}
		switch {
		case samePath(event.Path, s.treeFile):
			treeChanged = true
		case s.varsFile != "" && samePath(event.Path, s.varsFile):
			varsChanged = true
		}
	}

	if varsChanged {
		if err := s.reloadVariables(); err != nil {
			return err
		}
		s.app.logger.Info(ctx, "Variables reloaded", "path", s.varsFile)
	}
	if treeChanged {
		return s.reloadTree(ctx)
	}
	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
