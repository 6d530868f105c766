package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/wonhochoi1/nature"
	"github.com/wonhochoi1/nature/pkg"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a token for the run API and the progress websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := nature.GetConfig()
			token, err := pkg.IssueToken(subject, cfg.NatsConfig.TenantID, cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
