package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/siteforge/internal/scaffolding"
)

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Scaffold the template project",
	Long: `Create the build/ source tree of a new project in the project root:
views with blocks and layout folders, styles with themes, vendors and pages,
scripts, images, fonts, sounds and videos, each with a placeholder file,
plus a first page, stylesheet and script and a .siteforge.yml.

Existing files are left untouched unless --force is given.

Examples:
  siteforge init                  # Scaffold in the current directory
  siteforge init "My Site"        # Use "My Site" as the page title
  siteforge init --root site      # Scaffold into ./site`,
	Aliases: []string{"i"},
	Args:    cobra.MaximumNArgs(1),
	RunE:    runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing files")
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(viper.GetString("root"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("creating project root: %w", err)
	}

	name := filepath.Base(root)
	if len(args) == 1 {
		name = args[0]
	}

	res, err := scaffolding.Scaffold(afero.NewBasePathFs(afero.NewOsFs(), root), scaffolding.Options{
		Name:  name,
		Force: initForce,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, p := range res.Created {
		fmt.Fprintln(out, "created", p)
	}
	for _, p := range res.Skipped {
		fmt.Fprintln(out, "exists ", p)
	}
	fmt.Fprintf(out, "\nProject ready in %s. Run \"siteforge\" to build and serve it.\n", root)
	return nil
}
