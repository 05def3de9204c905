package main

import (
	"context"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the status of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := loomClient.GetRun(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(rec)
			return nil
		}
		printRecordTable(rec)
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		records, err := loomClient.ListRuns(context.Background(), limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(records)
			return nil
		}
		printRecordListTable(records)
		return nil
	},
}

var resultCmd = &cobra.Command{
	Use:   "result <run-id>",
	Short: "Show the final result of a finished run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := loomClient.GetResult(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(result)
			return nil
		}
		printResultTable(result)
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 50, "maximum number of runs to list")
}
