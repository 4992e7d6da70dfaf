package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"raven-chat/internal/auth"
	"raven-chat/internal/config"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a client token",
	Long: `Mint an HS256 token signed with AUTH_KEY. Clients pass it as the
Authorizer query parameter when opening /ws, or as a bearer token to /v1.

Examples:
  ravenctl token --user alice
  ravenctl token --user alice --ttl 1h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		token, err := auth.NewAuthorizer(cfg.AuthKey, nil, cfg.RoomNamespace).IssueToken(tokenUser, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "username carried by the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}
