package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var blocksOutputFormat string

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List the available block types",
	Long: `List every registered block type: the built-in kit plus any types loaded
from the catalog file (blocks.catalog_file or --catalog).

Examples:
  pagesmith blocks
  pagesmith blocks --catalog blocks.yml -o json`,
	PreRunE: bindOnRun(map[string]string{"catalog": "blocks.catalog_file"}),
	RunE:    runBlocks,
}

func init() {
	rootCmd.AddCommand(blocksCmd)

	addOutputFlag(blocksCmd, &blocksOutputFormat)
	blocksCmd.Flags().String("catalog", "", "Extra block type catalog (YAML)")
	addFlagValidation(blocksCmd, "catalog", validateFileExists)
}

type blockTypeInfo struct {
	ID            string                 `json:"id" yaml:"id"`
	Label         string                 `json:"label" yaml:"label"`
	Container     bool                   `json:"container" yaml:"container"`
	DefaultConfig map[string]interface{} `json:"defaultConfig,omitempty" yaml:"default_config,omitempty"`
	DefaultStyles map[string]interface{} `json:"defaultStyles,omitempty" yaml:"default_styles,omitempty"`
}

func runBlocks(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	types := a.blocks.Types()
	infos := make([]blockTypeInfo, 0, len(types))
	for _, t := range types {
		infos = append(infos, blockTypeInfo{
			ID:            t.ID,
			Label:         t.Label,
			Container:     t.IsContainer,
			DefaultConfig: t.DefaultConfig,
			DefaultStyles: t.DefaultStyles,
		})
	}

	out := cmd.OutOrStdout()
	if blocksOutputFormat != "table" {
		return writeStructured(out, blocksOutputFormat, infos)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tCONTAINER")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%t\n", info.ID, info.Label, info.Container)
	}
	return w.Flush()
}
