package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"erp-rules/internal/auth"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		subject, secret string
		roles           []string
		ttl             time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := rootOpts.loadConfig()
				if err != nil {
					return err
				}
				secret = cfg.JWTSecret
			}
			tok, err := auth.GenerateToken(subject, roles, secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "user id")
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "comma-separated roles, e.g. admin")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default: jwt_secret from config)")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.AccessTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
