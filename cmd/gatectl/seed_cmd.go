package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/action-gate/internal/auth"
	"github.com/upb/action-gate/models"
)

func (c *cli) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}

	var username, email, role string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := models.UserRole(role)
			if !auth.ValidRole(r) {
				return fmt.Errorf("invalid role %q", role)
			}
			user := models.NewUser(username, email, r)
			if err := c.deps.Repos.Users.Create(cmd.Context(), user); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Created user %d (%s)\n", user.ID, user.Username)
			return nil
		},
	}
	createCmd.Flags().StringVar(&username, "username", "", "username (required)")
	createCmd.Flags().StringVar(&email, "email", "", "email (required)")
	createCmd.Flags().StringVar(&role, "role", string(models.RoleUser), "user, manager or admin")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("email")

	cmd.AddCommand(createCmd)
	return cmd
}

func (c *cli) ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Manage orders",
	}

	var (
		userID  int64
		product string
		age     time.Duration
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an active order for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.deps.Repos.Users.GetByID(cmd.Context(), userID); err != nil {
				return err
			}
			order := &models.Order{
				UserID:      userID,
				ProductName: product,
				Status:      models.OrderStatusActive,
				CreatedAt:   time.Now().UTC().Add(-age),
			}
			if err := c.deps.Repos.Orders.Create(cmd.Context(), order); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Created order %d for user %d\n", order.ID, userID)
			return nil
		},
	}
	createCmd.Flags().Int64Var(&userID, "user-id", 0, "owner (required)")
	createCmd.Flags().StringVar(&product, "product", "", "product name (required)")
	createCmd.Flags().DurationVar(&age, "age", 0, "backdate the order, e.g. 240h")
	_ = createCmd.MarkFlagRequired("user-id")
	_ = createCmd.MarkFlagRequired("product")

	cmd.AddCommand(createCmd)
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue API tokens",
	}

	var (
		userID   int64
		username string
	)
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for an existing user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.deps.Tokens == nil {
				return fmt.Errorf("JWT_SECRET is not configured")
			}
			var (
				user *models.User
				err  error
			)
			if username != "" {
				user, err = c.deps.Repos.Users.GetByUsername(cmd.Context(), username)
			} else {
				user, err = c.deps.Repos.Users.GetByID(cmd.Context(), userID)
			}
			if err != nil {
				return err
			}
			token, expiresAt, err := c.deps.Tokens.Issue(user.ID, user.Role)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	issueCmd.Flags().Int64Var(&userID, "user-id", 0, "user to issue for")
	issueCmd.Flags().StringVar(&username, "username", "", "user to issue for, by name")
	issueCmd.MarkFlagsOneRequired("user-id", "username")
	issueCmd.MarkFlagsMutuallyExclusive("user-id", "username")

	cmd.AddCommand(issueCmd)
	return cmd
}
