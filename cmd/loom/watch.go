package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/quillworks/loom/internal/ui"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [<run-id>]",
	Short: "Tail run and node events from the server",
	Long: `Stream server-sent events to the terminal. With a run id, only that
run's events are shown; otherwise every run, node and engine event on
the server is printed as it happens.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, _ := cmd.Flags().GetStringSlice("topic")

		var runID string
		if len(args) == 1 {
			runID = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		err := loomClient.StreamEvents(ctx, topics, func(topic string, data []byte) {
			printEvent(topic, data, runID)
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

// printEvent renders one event line. Events carrying an execution_id are
// filtered when a run id was given.
func printEvent(topic string, data []byte, runID string) {
	var envelope struct {
		ExecutionID string `json:"execution_id"`
		NodeID      string `json:"node_id"`
		NodeName    string `json:"node_name"`
		Status      string `json:"status"`
		Reason      string `json:"reason"`
		Message     string `json:"message"`
	}
	_ = json.Unmarshal(data, &envelope)

	if runID != "" && envelope.ExecutionID != "" && envelope.ExecutionID != runID {
		return
	}

	ts := ui.RenderMuted(time.Now().Format("15:04:05"))
	line := ui.RenderAccent(topic)
	if envelope.ExecutionID != "" {
		line += " " + envelope.ExecutionID
	}
	if envelope.NodeName != "" {
		line += " " + envelope.NodeName
	} else if envelope.NodeID != "" {
		line += " " + envelope.NodeID
	}
	if envelope.Status != "" {
		line += " " + ui.RenderStatus(envelope.Status)
	}
	if envelope.Reason != "" {
		line += " " + ui.RenderMuted(envelope.Reason)
	}
	if envelope.Message != "" {
		line += " " + envelope.Message
	}
	fmt.Printf("%s %s\n", ts, line)
}

func init() {
	watchCmd.Flags().StringSlice("topic", []string{"loom.>"}, "topic filters for the event stream")
}
