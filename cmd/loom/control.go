package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <run-id>",
	Short: "Pause a running pipeline before its next node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loomClient.PauseRun(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("run %s pausing\n", args[0])
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a paused run, optionally with guidance for the retried node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		guidance, _ := cmd.Flags().GetString("guidance")
		if err := loomClient.ResumeRun(context.Background(), args[0], guidance); err != nil {
			return err
		}
		fmt.Printf("run %s resuming\n", args[0])
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <run-id>",
	Short: "Stop a run, keeping all completed node outputs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loomClient.StopRun(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("run %s stopping\n", args[0])
		return nil
	},
}

func init() {
	resumeCmd.Flags().String("guidance", "", "user guidance injected into the retried node's prompt")
}
