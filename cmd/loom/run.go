package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/quillworks/loom/internal/client"
	"github.com/quillworks/loom/internal/model"
	"github.com/quillworks/loom/internal/ui"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a pipeline run",
	Long: `Start a run from a stored engine (--engine) or an inline pipeline
definition file (--file). User input fields are passed with repeated
--input key=value flags or a single --input-json object.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engineID, _ := cmd.Flags().GetString("engine")
		file, _ := cmd.Flags().GetString("file")
		inputs, _ := cmd.Flags().GetStringArray("input")
		inputJSON, _ := cmd.Flags().GetString("input-json")
		formats, _ := cmd.Flags().GetStringSlice("format")
		wait, _ := cmd.Flags().GetBool("wait")

		if engineID == "" && file == "" {
			return fmt.Errorf("either --engine or --file is required")
		}

		userInput := map[string]any{}
		if inputJSON != "" {
			if err := json.Unmarshal([]byte(inputJSON), &userInput); err != nil {
				return fmt.Errorf("parsing --input-json: %w", err)
			}
		}
		for _, kv := range inputs {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("--input %q is not key=value", kv)
			}
			userInput[k] = v
		}

		req := &client.StartRunRequest{
			EngineID:  engineID,
			UserInput: userInput,
			User:      runUser,
			Formats:   formats,
		}

		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var def struct {
				Nodes []model.Node `json:"nodes"`
				Edges []model.Edge `json:"edges"`
			}
			if err := json.Unmarshal(data, &def); err != nil {
				return fmt.Errorf("parsing %s: %w", file, err)
			}
			req.Nodes = def.Nodes
			req.Edges = def.Edges
		}

		ctx := context.Background()
		if wait {
			result, err := loomClient.StartRunWait(ctx, req)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(result)
			} else {
				printResultTable(result)
			}
			return nil
		}

		resp, err := loomClient.StartRun(ctx, req)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(resp)
			return nil
		}
		fmt.Printf("run %s started (%s)\n", ui.RenderAccent(resp.ExecutionID), resp.Status)
		return nil
	},
}

func init() {
	runCmd.Flags().String("engine", "", "stored engine id to run")
	runCmd.Flags().String("file", "", "JSON file with an inline nodes/edges definition")
	runCmd.Flags().StringArray("input", nil, "user input field as key=value (repeatable)")
	runCmd.Flags().String("input-json", "", "user input as a JSON object")
	runCmd.Flags().StringSlice("format", nil, "deliverable formats (txt, md)")
	runCmd.Flags().Bool("wait", false, "block until the run finishes and print the result")
}
