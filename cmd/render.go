package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/pagesmith/internal/preview"
)

var renderOutput string

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a block tree to an HTML document",
	Long: `Render a block tree once through the preview pipeline: variables are
substituted, the template plugin expands the content and the ready plugins'
assets are placed in the document.

Examples:
  pagesmith render --tree page.json
  pagesmith render --tree page.json --vars vars.yml --out page.html`,
	PreRunE: bindOnRun(contentBindings),
	RunE:    runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	addContentFlags(renderCmd)
	renderCmd.Flags().StringVarP(&renderOutput, "out", "O", "", "Write the document to a file instead of stdout")
}

func runRender(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.close(context.Background())

	if _, err := a.initPlugins(ctx); err != nil {
		return err
	}

	content, err := a.readTree(ctx, viper.GetString("blocks.tree_file"))
	if err != nil {
		return err
	}
	if missing := preview.Unresolved(content, a.variables.Variables()); len(missing) > 0 {
		a.logger.Warn(ctx, nil, "Unresolved placeholders", "placeholders", missing)
	}

	pipeline := preview.NewPipeline(nil, a.pipelineOptions()...)
	defer pipeline.Close()

	doc, err := pipeline.RenderNow(ctx, content)
	if err != nil {
		return err
	}

	if renderOutput == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), doc.HTML)
		return err
	}
	if err := os.WriteFile(renderOutput, []byte(doc.HTML), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", renderOutput, err)
	}
	a.logger.Info(ctx, "Document written", "path", renderOutput, "bytes", len(doc.HTML))
	return nil
}
