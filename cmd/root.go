// Package cmd provides the pagesmith command-line interface.
//
// Configuration is read, highest priority first, from command-line flags,
// PAGESMITH_<SECTION>_<OPTION> environment variables and a YAML file. The
// file is --config, else PAGESMITH_CONFIG_FILE, else .pagesmith.yml in the
// working directory.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pagesmith",
	Short: "Compose pages from blocks and preview them live",
	Long: `Pagesmith renders block trees into HTML documents and serves a live preview
that refreshes as the tree or its variables change.

Quick Start:
  pagesmith blocks                       List the available block types
  pagesmith render --tree page.json      Render a page once
  pagesmith serve --tree page.json       Start the live preview server
  pagesmith plugins                      Show plugin initialization status`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .pagesmith.yml, can also use PAGESMITH_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig points Viper at the configuration file and enables PAGESMITH_
// environment overrides. A missing file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("PAGESMITH_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pagesmith")
	}

	viper.SetEnvPrefix("PAGESMITH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log-level":  "logging.level",
		"log-format": "logging.format",
	})

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
