package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/conneroisu/pagesmith/internal/blocks"
	"github.com/conneroisu/pagesmith/internal/blocks/kit"
	"github.com/conneroisu/pagesmith/internal/config"
	"github.com/conneroisu/pagesmith/internal/di"
	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/plugins"
	"github.com/conneroisu/pagesmith/internal/plugins/builtin"
	"github.com/conneroisu/pagesmith/internal/preview"
)

// app holds the services shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    logging.Logger
	plugins   *plugins.Manager
	blocks    *blocks.Registry
	variables *preview.VariableStore
}

// newApp loads the configuration and wires the plugin manager, the block
// registry and the variable store. Plugins are registered but not
// initialized.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Logging.LoggerConfig())

	container := di.NewContainer(
		di.WithTimeout(cfg.Plugins.InitTimeout),
		di.WithLogger(logger),
	)

	manager := plugins.NewManager(
		plugins.WithContainer(container),
		plugins.WithLogger(logger),
		plugins.WithConfigurations(cfg.Plugins.PluginConfigurations()),
		plugins.WithEnabled(cfg.Plugins.Enabled...),
		plugins.WithDisabled(cfg.Plugins.Disabled...),
		plugins.WithStrictDependencies(cfg.Plugins.StrictDependencies),
	)
	for _, p := range builtin.All() {
		if err := manager.Register(p); err != nil {
			return nil, err
		}
	}

	registry := blocks.NewRegistry()
	if err := kit.Register(registry); err != nil {
		return nil, err
	}
	if cfg.Blocks.CatalogFile != "" {
		if err := loadCatalog(registry, cfg.Blocks.CatalogFile, logger); err != nil {
			return nil, err
		}
	}

	store := preview.NewVariableStore(nil)
	if cfg.Preview.VariablesFile != "" {
		vars, err := preview.LoadVariables(cfg.Preview.VariablesFile)
		if err != nil {
			return nil, err
		}
		store.Set(vars)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		plugins:   manager,
		blocks:    registry,
		variables: store,
	}, nil
}

func loadCatalog(registry *blocks.Registry, path string, logger logging.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.WrapConfig(err, "cannot open block catalog").WithContext("path", path)
	}
	defer f.Close()

	ids, err := registry.LoadCatalog(f, kit.Renderers())
	if err != nil {
		return err
	}
	logger.Info(context.Background(), "Loaded block catalog", "path", path, "types", len(ids))
	return nil
}

// initPlugins runs plugin initialization and logs the outcome. Failed plugins
// do not stop the command.
func (a *app) initPlugins(ctx context.Context) (*plugins.Report, error) {
	perf := logging.StartOperation(a.logger, "plugin_init")
	report, err := a.plugins.InitializeAll(ctx)
	if err != nil {
		return nil, err
	}
	perf.End(ctx, "ready", len(report.Ready), "failed", len(report.Failed), "skipped", len(report.Skipped))

	for _, name := range report.FailedNames() {
		a.logger.Warn(ctx, report.Failed[name], "Plugin failed to initialize", "plugin", name)
	}
	for name, reason := range report.Skipped {
		a.logger.Warn(ctx, nil, "Plugin skipped", "plugin", name, "reason", reason)
	}
	return report, nil
}

func (a *app) pipelineOptions() []preview.Option {
	return []preview.Option{
		preview.WithDebounce(a.cfg.Preview.Debounce),
		preview.WithLogger(a.logger),
		preview.WithVariables(a.variables),
		preview.WithCatalog(a.plugins),
		preview.WithTemplatePlugin(a.cfg.Preview.TemplatePlugin),
		preview.WithDocument(preview.DocumentOptions{
			Title: a.cfg.Preview.Title,
			Lang:  a.cfg.Preview.Lang,
		}),
	}
}

// readTree decodes the block tree file and renders it to HTML.
func (a *app) readTree(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", errors.NewConfigError(errors.ErrCodeConfigInvalid, "no block tree file given").
			WithContext("field", "blocks.tree_file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read block tree %s: %w", path, err)
	}

	tree, err := blocks.Decode(a.blocks, data)
	if err != nil {
		return "", err
	}
	return tree.Render(ctx)
}

// close tears down plugin capabilities. The manager logs any errors.
func (a *app) close(ctx context.Context) {
	_ = a.plugins.Shutdown(ctx)
}
