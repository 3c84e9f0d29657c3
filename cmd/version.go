package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/siteforge/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the version of siteforge, the commit it was built from, the
build time, the Go version and the target platform.

Examples:
  siteforge version              # Show version
  siteforge version --detailed   # Show every field
  siteforge version --format json`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

var (
	versionFormat   string
	versionDetailed bool
)

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	info := version.Get()
	out := cmd.OutOrStdout()

	switch versionFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "text":
		if versionDetailed {
			fmt.Fprintln(out, info.Detailed())
			return nil
		}
		fmt.Fprintln(out, info.String())
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
	}
}
