package main

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/packhub/internal/auth"
	authdomain "github.com/smallbiznis/packhub/internal/auth/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}
	cmd.AddCommand(newTokenCreateCommand())
	return cmd
}

func newTokenCreateCommand() *cobra.Command {
	var (
		user string
		name string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a bearer token for a user",
		Long: `Issue a bearer token for a user and print it once. Only a hash of the
token is stored, so it cannot be shown again.`,
		Example: `  packhub token create --user alice
  packhub token create --user ci-bot --name release --ttl 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var tokens authdomain.Service
			app := fx.New(
				fx.NopLogger,
				coreModules(),
				auth.Module,
				fx.Populate(&tokens),
			)
			return runWithApp(cmd.Context(), app, func(ctx context.Context) error {
				issued, err := tokens.Issue(ctx, authdomain.IssueRequest{
					Username: user,
					Name:     name,
					TTL:      ttl,
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), issued.Token)
				if issued.ExpiresAt != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", issued.ExpiresAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "username the token authenticates as (required)")
	cmd.Flags().StringVar(&name, "name", "", "label shown when listing tokens")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, zero for no expiry")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
