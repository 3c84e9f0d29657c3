package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// taskCommands are the single tasks exposed as subcommands.
var taskCommands = []struct {
	name  string
	short string
}{
	{"styles", "Compile SCSS to prefixed CSS"},
	{"views", "Render Pug views to PHP pages"},
	{"scripts", "Transpile JavaScript to ES2015"},
	{"pages", "Copy PHP pages to the output root"},
	{"images", "Optimize images"},
	{"fonts", "Copy fonts"},
	{"sounds", "Copy sounds"},
	{"videos", "Copy videos"},
	{taskClean, "Delete the output root"},
	{taskRmEmpty, "Remove the template placeholder files"},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the tasks and composites of the pipeline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		return a.listTasks(cmd.OutOrStdout())
	},
}

func init() {
	for _, tc := range taskCommands {
		name := tc.name
		rootCmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: tc.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runPipeline(cmd.Context(), name, appOptions{NoServe: true})
			},
		})
	}
	rootCmd.AddCommand(tasksCmd)
}

func (a *app) listTasks(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range a.registry.Names() {
		desc := ""
		if t, ok := a.registry.Task(name); ok {
			desc = t.Description
		} else if g, err := a.registry.Graph(name); err == nil {
			desc = fmt.Sprintf("composite of %d tasks", g.Len())
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, desc)
	}
	return tw.Flush()
}
