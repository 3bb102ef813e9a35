package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/pagesmith/internal/plugins"
)

var (
	pluginsOutputFormat string
	pluginsShowSnippets bool
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Initialize plugins and show their status",
	Long: `Initialize every registered plugin in dependency order and report the
outcome.

Plugins are enabled and disabled through the plugins section of the
configuration file. A plugin whose dependency failed is reported as skipped.

Examples:
  pagesmith plugins
  pagesmith plugins --snippets
  pagesmith plugins -o yaml`,
	RunE: runPlugins,
}

func init() {
	rootCmd.AddCommand(pluginsCmd)

	addOutputFlag(pluginsCmd, &pluginsOutputFormat)
	pluginsCmd.Flags().BoolVar(&pluginsShowSnippets, "snippets", false, "List the snippets offered by ready plugins")
}

type pluginsListing struct {
	Order    []string                     `json:"order" yaml:"order"`
	Plugins  []plugins.Info               `json:"plugins" yaml:"plugins"`
	Snippets map[string]map[string]string `json:"snippets,omitempty" yaml:"snippets,omitempty"`
}

func runPlugins(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.close(context.Background())

	report, err := a.initPlugins(ctx)
	if err != nil {
		return err
	}

	listing := pluginsListing{Order: report.Order, Plugins: a.plugins.List()}
	if pluginsShowSnippets {
		listing.Snippets = a.plugins.Snippets()
	}

	out := cmd.OutOrStdout()
	if pluginsOutputFormat != "table" {
		return writeStructured(out, pluginsOutputFormat, listing)
	}
	return displayPluginsTable(out, listing)
}

func displayPluginsTable(out io.Writer, listing pluginsListing) error {
	if len(listing.Plugins) == 0 {
		fmt.Fprintln(out, "No plugins registered.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tSTATE\tDEPENDS ON\tHOOKS\tREASON")
	for _, info := range listing.Plugins {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			info.Name,
			info.Version,
			info.State,
			dash(strings.Join(info.Dependencies, ",")),
			dash(strings.Join(info.Hooks, ",")),
			dash(info.Reason),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nInitialization order: %s\n", strings.Join(listing.Order, " -> "))

	if listing.Snippets == nil {
		return nil
	}
	fmt.Fprintln(out, "\nSnippets:")
	names := make([]string, 0, len(listing.Snippets))
	for name := range listing.Snippets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snippets := listing.Snippets[name]
		keys := make([]string, 0, len(snippets))
		for key := range snippets {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(out, "  %s/%s: %s\n", name, key, snippets[key])
		}
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
