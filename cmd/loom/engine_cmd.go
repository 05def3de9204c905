package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/quillworks/loom/internal/client"
	"github.com/spf13/cobra"
)

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Manage stored engine definitions",
}

var engineCreateCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Create an engine from a JSON definition file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var req client.EngineRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}
		if req.CreatedBy == "" {
			req.CreatedBy = runUser
		}

		eng, err := loomClient.CreateEngine(context.Background(), &req)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(eng)
			return nil
		}
		fmt.Printf("engine %s created\n", eng.ID)
		return nil
	},
}

var engineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List engine definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		engines, err := loomClient.ListEngines(context.Background(), status)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(engines)
			return nil
		}
		printEngineListTable(engines)
		return nil
	},
}

var engineShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an engine definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loomClient.GetEngine(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(eng)
			return nil
		}
		printEngineTable(eng)
		return nil
	},
}

var engineUpdateCmd = &cobra.Command{
	Use:   "update <id> <file>",
	Short: "Replace an engine definition from a JSON file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		var req client.EngineRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("parsing %s: %w", args[1], err)
		}

		eng, err := loomClient.UpdateEngine(context.Background(), args[0], &req)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(eng)
			return nil
		}
		fmt.Printf("engine %s updated\n", eng.ID)
		return nil
	},
}

var engineDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an engine definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loomClient.DeleteEngine(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("engine %s deleted\n", args[0])
		return nil
	},
}

func init() {
	engineListCmd.Flags().String("status", "", "filter by status (draft, active, archived)")

	engineCmd.AddCommand(engineCreateCmd)
	engineCmd.AddCommand(engineListCmd)
	engineCmd.AddCommand(engineShowCmd)
	engineCmd.AddCommand(engineUpdateCmd)
	engineCmd.AddCommand(engineDeleteCmd)
}
