// Package config loads pagesmith configuration through Viper from
// .pagesmith.yml, PAGESMITH_ environment variables and command-line flags.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
)

// Config is the complete pagesmith configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Preview PreviewConfig `mapstructure:"preview" yaml:"preview"`
	Plugins PluginsConfig `mapstructure:"plugins" yaml:"plugins"`
	Blocks  BlocksConfig  `mapstructure:"blocks" yaml:"blocks"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type PreviewConfig struct {
	Debounce       time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Title          string        `mapstructure:"title" yaml:"title"`
	Lang           string        `mapstructure:"lang" yaml:"lang"`
	TemplatePlugin string        `mapstructure:"template_plugin" yaml:"template_plugin"`
	VariablesFile  string        `mapstructure:"variables_file" yaml:"variables_file"`
}

type PluginsConfig struct {
	Enabled            []string                   `mapstructure:"enabled" yaml:"enabled"`
	Disabled           []string                   `mapstructure:"disabled" yaml:"disabled"`
	InitTimeout        time.Duration              `mapstructure:"init_timeout" yaml:"init_timeout"`
	StrictDependencies bool                       `mapstructure:"strict_dependencies" yaml:"strict_dependencies"`
	Configurations     map[string]PluginConfigMap `mapstructure:"configurations" yaml:"configurations"`
}

// PluginConfigMap is the free-form configuration of one plugin.
type PluginConfigMap map[string]interface{}

type BlocksConfig struct {
	CatalogFile string `mapstructure:"catalog_file" yaml:"catalog_file"`
	TreeFile    string `mapstructure:"tree_file" yaml:"tree_file"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults are registered with Viper before every Load.
var Defaults = map[string]interface{}{
	"server.host":                 "localhost",
	"server.port":                 8080,
	"server.allowed_origins":      []string{},
	"preview.debounce":            500 * time.Millisecond,
	"preview.title":               "Pagesmith Preview",
	"preview.lang":                "en",
	"preview.template_plugin":     "gotemplate",
	"preview.variables_file":      "",
	"plugins.enabled":             []string{},
	"plugins.disabled":            []string{},
	"plugins.init_timeout":        10 * time.Second,
	"plugins.strict_dependencies": false,
	"blocks.catalog_file":         "",
	"blocks.tree_file":            "page.json",
	"logging.level":               "info",
	"logging.format":              "text",
}

// SetDefaults registers Defaults with the global Viper instance.
func SetDefaults() {
	for key, value := range Defaults {
		viper.SetDefault(key, value)
	}
}

// Load decodes and validates the configuration held by the global Viper
// instance.
func Load() (*Config, error) {
	SetDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, "cannot decode configuration")
	}
	if config.Plugins.Configurations == nil {
		config.Plugins.Configurations = make(map[string]PluginConfigMap)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// PluginConfigurations returns the per-plugin maps in the shape the plugin
// manager takes.
func (c *PluginsConfig) PluginConfigurations() map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(c.Configurations))
	for name, cfg := range c.Configurations {
		out[name] = map[string]interface{}(cfg)
	}
	return out
}

// LoggerConfig converts the logging section for logging.NewLogger. The level
// has already been validated by Load.
func (c *LoggingConfig) LoggerConfig() *logging.LoggerConfig {
	level, _ := logging.ParseLevel(c.Level)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = c.Format
	return cfg
}
