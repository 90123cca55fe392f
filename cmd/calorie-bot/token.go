package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/calorieai/calorie-bot/internal/auth"
	"github.com/calorieai/calorie-bot/internal/config"
)

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			token, err := mintToken(cfg.Admin, subject, ttl)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(token)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Operator name recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default ADMIN_TOKEN_EXPIRY)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func mintToken(cfg config.AdminConfig, subject string, ttl time.Duration) (*auth.Token, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("ADMIN_JWT_SECRET is not set")
	}
	return auth.NewJWTManager(cfg.JWTSecret, cfg.TokenExpiry).GenerateToken(subject, auth.RoleAdmin, ttl)
}
