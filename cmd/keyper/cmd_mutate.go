package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var insertCmd = &cobra.Command{
	Use:   "insert <collection> <json>",
	Short: "Create an entity from a JSON payload",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload map[string]any
		if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		c, err := openCollection(args[0])
		if err != nil {
			return err
		}
		e, err := c.Create(context.Background(), payload)
		if err != nil {
			return err
		}
		return printJSON(e.Fields())
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <collection> <pk> <json>",
	Short: "Patch an entity's fields from a JSON payload",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload map[string]any
		if err := json.Unmarshal([]byte(args[2]), &payload); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		c, err := openCollection(args[0])
		if err != nil {
			return err
		}
		if _, err := c.FetchOne(context.Background(), args[1], nil, false); err != nil {
			return err
		}
		m, err := c.GetMutable(args[1], nil)
		if err != nil {
			return err
		}
		for k, v := range payload {
			m.Fields[k] = v
		}
		e, err := c.Update(context.Background(), m, false)
		if err != nil {
			return err
		}
		return printJSON(e.Fields())
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <collection> <pk>",
	Short: "Delete an entity by primary key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCollection(args[0])
		if err != nil {
			return err
		}
		return c.Delete(context.Background(), args[1])
	},
}

func init() {
	rootCmd.AddCommand(insertCmd, updateCmd, deleteCmd)
}
