package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *cli) escalationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "escalations",
		Aliases: []string{"esc"},
		Short:   "Inspect and reset escalated users",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List users waiting for a human agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := c.deps.Escalation.ListEscalated(cmd.Context())
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(c.out, "No escalated users")
				return nil
			}
			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tSINCE")
			for _, u := range users {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, u.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset <user-id>",
		Short: "End the human-agent conversation and restore normal gating",
		Long: `Reset a user's escalation state to normal.

Retry counters are kept, so a user who keeps failing the same action
escalates again on the next denial.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			if err := c.deps.Escalation.Reset(cmd.Context(), userID); err != nil {
				return err
			}
			if err := c.deps.Audit.LogEscalationReset(cmd.Context(), userID, 0); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: audit log failed: %v\n", err)
			}
			fmt.Fprintf(c.out, "User %d is back to normal gating\n", userID)
			return nil
		},
	}

	cmd.AddCommand(listCmd, resetCmd)
	return cmd
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}
