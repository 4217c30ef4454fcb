package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) invokeCmd() *cobra.Command {
	var (
		userID  int64
		rawArgs string
	)
	cmd := &cobra.Command{
		Use:   "invoke <action>",
		Short: "Run an action through the gate as a user",
		Long: `Invoke a registered action on behalf of a user, exactly as the API would.

Examples:
  gatectl invoke cancel_order --user-id 1 --args '{"order_id": 7}'
  gatectl invoke get_weather --user-id 1 --args '{"location": "Medellin"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments := map[string]interface{}{}
			if rawArgs != "" {
				if err := json.Unmarshal([]byte(rawArgs), &arguments); err != nil {
					return fmt.Errorf("invalid --args: %w", err)
				}
			}

			result, err := c.deps.Actions.Invoke(cmd.Context(), userID, args[0], arguments)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(c.out)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "acting user (required)")
	cmd.Flags().StringVar(&rawArgs, "args", "", "JSON object of action arguments")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
