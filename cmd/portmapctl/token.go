package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"portmap-ai/pkg/api"
	"portmap-ai/pkg/auth"
	"portmap-ai/pkg/model"
	"portmap-ai/pkg/version"
)

var tokenCmd = &cobra.Command{
	Use:   "token [node-id]",
	Short: "Mint a JWT a node can present to the orchestrator",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Print the bcrypt hash to store as auth_token_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := api.HashToken(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), h)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String("portmapctl"))
	},
}

var (
	jwtSecret string
	tokenRole string
	tokenTTL  time.Duration
)

func init() {
	tokenCmd.Flags().StringVar(&jwtSecret, "secret", os.Getenv("PORTMAP_JWT_SECRET"), "jwt_secret configured on the orchestrator (env PORTMAP_JWT_SECRET)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", model.RoleWorker, "node role claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "token lifetime (0 for no expiry)")
}

func runToken(cmd *cobra.Command, args []string) error {
	if jwtSecret == "" {
		return fmt.Errorf("--secret is required")
	}
	tok, err := auth.Generate([]byte(jwtSecret), args[0], tokenRole, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
