package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services/rules"
)

func (c *cli) rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage gating rules",
	}

	var (
		listAction string
		listLimit  int
		listOffset int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List rules, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := c.deps.Rules.List(cmd.Context(), listAction, listLimit, listOffset)
			if err != nil {
				return err
			}
			c.printRules(found)
			return nil
		},
	}
	listCmd.Flags().StringVar(&listAction, "action", "", "only rules for this action")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum rules to show")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "rules to skip")

	var (
		in            rules.CreateRuleInput
		escalateAfter int
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rule to an action",
		Long: `Add a natural-language rule to an action.

Examples:
  gatectl rules add --action cancel_order \
    --condition "The order was placed less than 10 days ago." \
    --deny-message "Orders can only be cancelled within 10 days." \
    --escalate-after 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("escalate-after") {
				in.EscalateAfterRetries = &escalateAfter
			}
			rule, err := c.deps.Rules.Create(cmd.Context(), 0, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Created rule %s for %s\n", rule.ID, rule.ActionName)
			return nil
		},
	}
	addCmd.Flags().StringVar(&in.ActionName, "action", "", "action name (required)")
	addCmd.Flags().StringVar(&in.Condition, "condition", "", "rule text (required)")
	addCmd.Flags().StringVar(&in.DenyMessage, "deny-message", "", "message shown on denial")
	addCmd.Flags().IntVar(&escalateAfter, "escalate-after", 0, "retries before escalation (default 2)")
	_ = addCmd.MarkFlagRequired("action")
	_ = addCmd.MarkFlagRequired("condition")

	importCmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import a YAML rule bundle atomically",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := rules.LoadBundle(args[0])
			if err != nil {
				return err
			}
			created, err := c.deps.Rules.Import(cmd.Context(), 0, bundle)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Imported %d rules\n", len(created))
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid rule id %q: %w", args[0], err)
			}
			if err := c.deps.Rules.Delete(cmd.Context(), 0, id); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Deleted rule %s\n", id)
			return nil
		},
	}

	cmd.AddCommand(listCmd, addCmd, importCmd, deleteCmd)
	return cmd
}

func (c *cli) printRules(found []*models.Rule) {
	if len(found) == 0 {
		fmt.Fprintln(c.out, "No rules")
		return
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTION\tESCALATE AFTER\tCONDITION")
	for _, r := range found {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.ID, r.ActionName, r.EscalateAfterRetries, r.Condition)
	}
	_ = w.Flush()
}
