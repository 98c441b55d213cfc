package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adcondev/convo-daemon/internal/auth"
	"github.com/adcondev/convo-daemon/internal/config"
)

var tokenTTL time.Duration

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a development bearer token",
	Long:  "Signs a token for the given user with the configured JWT secret, for local WebSocket testing.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := envName
		if name == "" {
			name = config.BuildEnvironment
		}
		cfg, err := config.LoadFile(configPath, config.GetEnvironment(name))
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		token, expires, err := auth.IssueToken(cfg.JWTSecret, args[0], tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
		return nil
	},
}
