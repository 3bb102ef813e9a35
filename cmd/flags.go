package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var outputFormats = []string{"table", "json", "yaml"}

// Subcommands share config keys, so their flags are bound in PreRunE, once
// the running command is known.
var (
	serverBindings = map[string]string{
		"port":           "server.port",
		"host":           "server.host",
		"allowed-origin": "server.allowed_origins",
	}
	contentBindings = map[string]string{
		"tree":    "blocks.tree_file",
		"vars":    "preview.variables_file",
		"catalog": "blocks.catalog_file",
	}
)

// bindFlags binds flags to Viper keys so that a flag set on the command line
// overrides the file and environment.
func bindFlags(flags *pflag.FlagSet, bindings map[string]string) {
	for flagName, configKey := range bindings {
		if flag := flags.Lookup(flagName); flag != nil {
			_ = viper.BindPFlag(configKey, flag)
		}
	}
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	cmd.Flags().String("host", "localhost", "Host to bind to")
	cmd.Flags().StringSlice("allowed-origin", nil, "Origin allowed to connect (repeatable)")
	addFlagValidation(cmd, "port", validatePort)
}

func addContentFlags(cmd *cobra.Command) {
	cmd.Flags().String("tree", "", "Block tree file (JSON)")
	cmd.Flags().String("vars", "", "Variables file (JSON or YAML)")
	cmd.Flags().String("catalog", "", "Extra block type catalog (YAML)")
	addFlagValidation(cmd, "tree", validateFileExists)
	addFlagValidation(cmd, "vars", validateFileExists)
	addFlagValidation(cmd, "catalog", validateFileExists)
}

// bindOnRun returns a PreRunE that binds the given flag sets.
func bindOnRun(bindings ...map[string]string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		for _, b := range bindings {
			bindFlags(cmd.Flags(), b)
		}
		return nil
	}
}

func addOutputFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", "table", "Output format ("+strings.Join(outputFormats, "|")+")")
	addFlagValidation(cmd, "output", validateOutputFormat)
}

// addFlagValidation wraps a flag so that invalid values are rejected while
// the command line is parsed.
func addFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}
	flag.Value = &validatingValue{Value: flag.Value, validator: validator}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if err := v.validator(val); err != nil {
		return err
	}
	return v.Value.Set(val)
}

func validatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}
	return nil
}

func validateFileExists(filename string) error {
	if filename == "" {
		return nil
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}
	return nil
}

func validateOutputFormat(format string) error {
	for _, f := range outputFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %s, must be one of: %s", format, strings.Join(outputFormats, ", "))
}
