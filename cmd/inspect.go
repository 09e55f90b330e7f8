package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"yqhp/knime-bridge/pkg/workflow"
)

var inspectWorkflow string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List the container input/output nodes of a local workflow bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		layout, err := workflow.Discover(inspectWorkflow)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "workflow: %s\n", inspectWorkflow)
		fmt.Fprintf(out, "container inputs (%d):\n", len(layout.InputDirs))
		for i, dir := range layout.InputDirs {
			fmt.Fprintf(out, "  slot %d: %s (node %d)\n", i, dir, layout.InputIDs[i])
		}
		fmt.Fprintf(out, "container outputs (%d):\n", len(layout.OutputDirs))
		for i, dir := range layout.OutputDirs {
			fmt.Fprintf(out, "  slot %d: %s (node %d)\n", i, dir, layout.OutputIDs[i])
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectWorkflow, "workflow", "w", "", "workflow bundle path")
	_ = inspectCmd.MarkFlagRequired("workflow")

	rootCmd.AddCommand(inspectCmd)
}
