package cmd

import (
	"fmt"

	"github.com/solatis/segmentkeeper/internal/core/auth"
	"github.com/solatis/segmentkeeper/internal/core/config"
	"github.com/spf13/cobra"
)

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var (
	apiKeyCompanyID int64
	apiKeyName      string
	apiKeyID        string
)

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue an API key for a company",
	RunE: func(cmd *cobra.Command, args []string) error {
		authenticator, closeDB, err := newAuthenticator(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		issued, err := authenticator.IssueAPIKey(cmd.Context(), apiKeyCompanyID, apiKeyName)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "api_key_id: %s\n", issued.APIKeyID)
		fmt.Fprintf(out, "company_id: %d\n", issued.CompanyID)
		fmt.Fprintf(out, "key:        %s\n", issued.Key)
		fmt.Fprintln(cmd.ErrOrStderr(), "store the key now, it cannot be shown again")
		return nil
	},
}

var apiKeyRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		authenticator, closeDB, err := newAuthenticator(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		if err := authenticator.RevokeAPIKey(cmd.Context(), apiKeyID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", apiKeyID)
		return nil
	},
}

func newAuthenticator(cmd *cobra.Command) (*auth.Authenticator, func(), error) {
	cfg, logger, err := setup(cmd, nil)
	if err != nil {
		return nil, nil, err
	}
	secrets, err := config.HMACSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return nil, nil, fmt.Errorf("no HMAC secrets configured (set SK_HMAC_SECRET environment variable)")
	}
	database, queries, err := openQueries(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewAuthenticator(secrets, queries, logger), func() { database.Close() }, nil
}

func init() {
	apiKeyCreateCmd.Flags().Int64Var(&apiKeyCompanyID, "company", 0, "company id")
	apiKeyCreateCmd.Flags().StringVar(&apiKeyName, "name", "", "key name")
	apiKeyCreateCmd.MarkFlagRequired("company")
	apiKeyCreateCmd.MarkFlagRequired("name")

	apiKeyRevokeCmd.Flags().StringVar(&apiKeyID, "id", "", "api key id")
	apiKeyRevokeCmd.MarkFlagRequired("id")

	apiKeyCmd.AddCommand(apiKeyCreateCmd, apiKeyRevokeCmd)
	rootCmd.AddCommand(apiKeyCmd)
}
