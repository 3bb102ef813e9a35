package config

import (
	"fmt"

	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/validation"
)

func invalid(field, format string, args ...interface{}) *errors.PagesmithError {
	return errors.NewConfigError(errors.ErrCodeConfigInvalid, field+": "+fmt.Sprintf(format, args...)).
		WithContext("field", field)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	validators := []func(*Config) error{
		validateServerConfig,
		validatePreviewConfig,
		validatePluginsConfig,
		validateBlocksConfig,
		validateLoggingConfig,
	}
	for _, validate := range validators {
		if err := validate(config); err != nil {
			return err
		}
	}
	return nil
}

func validateServerConfig(config *Config) error {
	s := config.Server

	// 0 lets the OS pick a port
	if s.Port < 0 || s.Port > 65535 {
		return invalid("server.port", "%d is not in valid range 0-65535", s.Port)
	}
	if err := validation.Host(s.Host); err != nil {
		return invalid("server.host", "%v", err)
	}
	for _, origin := range s.AllowedOrigins {
		if err := validation.Origin(origin); err != nil {
			return invalid("server.allowed_origins", "%v", err)
		}
	}
	return nil
}

func validatePreviewConfig(config *Config) error {
	p := config.Preview

	if p.Debounce <= 0 {
		return invalid("preview.debounce", "must be positive, got %s", p.Debounce)
	}
	if p.TemplatePlugin != "" {
		if err := validation.Identifier(p.TemplatePlugin); err != nil {
			return invalid("preview.template_plugin", "%v", err)
		}
	}
	return validateFile("preview.variables_file", p.VariablesFile)
}

func validatePluginsConfig(config *Config) error {
	p := config.Plugins

	if p.InitTimeout <= 0 {
		return invalid("plugins.init_timeout", "must be positive, got %s", p.InitTimeout)
	}

	enabled := make(map[string]bool, len(p.Enabled))
	for _, name := range p.Enabled {
		if err := validation.Identifier(name); err != nil {
			return invalid("plugins.enabled", "%v", err)
		}
		enabled[name] = true
	}
	for _, name := range p.Disabled {
		if err := validation.Identifier(name); err != nil {
			return invalid("plugins.disabled", "%v", err)
		}
		if enabled[name] {
			return invalid("plugins", "plugin %s cannot be both enabled and disabled", name)
		}
	}
	for name := range p.Configurations {
		if err := validation.Identifier(name); err != nil {
			return invalid("plugins.configurations", "%v", err)
		}
	}
	return nil
}

func validateBlocksConfig(config *Config) error {
	if err := validateFile("blocks.catalog_file", config.Blocks.CatalogFile); err != nil {
		return err
	}
	return validateFile("blocks.tree_file", config.Blocks.TreeFile)
}

func validateLoggingConfig(config *Config) error {
	if _, err := logging.ParseLevel(config.Logging.Level); err != nil {
		return invalid("logging.level", "%v", err)
	}
	switch config.Logging.Format {
	case "text", "json":
		return nil
	default:
		return invalid("logging.format", "must be text or json, got %q", config.Logging.Format)
	}
}

func validateFile(field, path string) error {
	if err := validation.FilePath(path); err != nil {
		return invalid(field, "%v", err)
	}
	return nil
}
