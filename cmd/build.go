package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Clean, build every asset and serve the result",
	Long: `Delete the output root, then compile styles, views, scripts, pages,
images, fonts, sounds and videos in parallel while the page server starts.

The page server keeps running until interrupted. Use --no-serve to exit as
soon as every asset is written.

Examples:
  siteforge build              # Build and serve
  siteforge build --no-serve   # Build only, e.g. in CI`,
	RunE: runBuild,
}

var buildNoServe bool

func init() {
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd.Flags())
}

func addBuildFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&buildNoServe, "no-serve", false, "build without starting the page server")
}

func runBuild(cmd *cobra.Command, args []string) error {
	return runPipeline(cmd.Context(), taskBuild, appOptions{NoServe: buildNoServe})
}

// runPipeline builds the project pipeline and runs name until it finishes
// or the process is interrupted.
func runPipeline(parent context.Context, name string, opts appOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	err = a.run(ctx, name)
	a.report(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
