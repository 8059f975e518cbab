package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"histlens/internal/auth"
)

var tokenName string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens for the HTTP server",
	Long: `Create, list, and revoke API tokens for authenticating with the
HistLens HTTP server when server auth is enabled.

Examples:
  histlens token create --name "viewer"
  histlens token list
  histlens token revoke hl_key_abc123`,
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API token",
	RunE:  runTokenCreate,
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all API tokens",
	RunE:  runTokenList,
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <token-id>",
	Short: "Revoke an API token",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenRevoke,
}

func init() {
	tokenCreateCmd.Flags().StringVar(&tokenName, "name", "", "Human-readable token name (required)")

	tokenCmd.AddCommand(tokenCreateCmd)
	tokenCmd.AddCommand(tokenListCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenCreate(cmd *cobra.Command, args []string) error {
	if tokenName == "" {
		return fmt.Errorf("--name is required")
	}
	eng, err := buildEngine(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer eng.close()

	token, raw, err := eng.tokens.Issue(tokenName)
	if err != nil {
		return err
	}

	fmt.Printf("Created token %s (%s)\n\n", token.ID, token.Name)
	fmt.Printf("  %s\n\n", raw)
	fmt.Println("Store this value now; it cannot be shown again.")
	return nil
}

func runTokenList(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer eng.close()

	tokens, err := eng.tokens.List()
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		fmt.Println("No tokens")
		return nil
	}

	fmt.Printf("%-24s  %-16s  %-10s  %-20s  %s\n", "ID", "NAME", "PREFIX", "CREATED", "STATUS")
	for _, token := range tokens {
		status := "active"
		if token.Revoked {
			status = "revoked"
		}
		fmt.Printf("%-24s  %-16s  %-10s  %-20s  %s\n",
			token.ID, token.Name, auth.TokenPrefix+token.TokenPrefix+"...",
			token.CreatedAt.Format(time.RFC3339), status)
	}
	return nil
}

func runTokenRevoke(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer eng.close()

	if err := eng.tokens.Revoke(args[0]); err != nil {
		return err
	}
	fmt.Printf("Revoked %s\n", args[0])
	return nil
}
