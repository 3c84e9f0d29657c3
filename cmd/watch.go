package cmd

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Serve the output root and rebuild on change",
	Long: `Start the page server and the live reload proxy, then re-run the
views, styles, scripts and pages tasks whenever one of their sources
changes. Stylesheets are injected into open pages, every other change
reloads them. Runs until interrupted.

The output root is not cleaned or built first; run "siteforge build
--no-serve" once beforehand.`,
	Aliases: []string{"w"},
	RunE:    runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	return runPipeline(cmd.Context(), taskWatch, appOptions{})
}
