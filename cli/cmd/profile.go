package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/telhawk-webhooks/cli/internal/config"
	"github.com/telhawk-systems/telhawk-webhooks/cli/pkg/output"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage CLI profiles",
}

var profileSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or replace a profile and make it current",
	Example: `  whctl profile set staging --ingest-url https://webhooks.staging.example.com --secrets-file staging-secrets.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := &config.Profile{}
		p.IngestURL, _ = cmd.Flags().GetString("ingest-url")
		p.SecretsFile, _ = cmd.Flags().GetString("secrets-file")
		p.PlaidKeyFile, _ = cmd.Flags().GetString("plaid-key")
		p.PlaidKID, _ = cmd.Flags().GetString("plaid-kid")

		if err := cfg.SaveProfile(args[0], p); err != nil {
			return err
		}
		output.Success("Profile %s saved", args[0])
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput(cmd) {
			return output.JSON(cfg.Profiles)
		}
		table := output.NewTable([]string{"", "NAME", "INGEST URL", "SECRETS FILE"})
		for _, name := range cfg.Names() {
			p := cfg.Profiles[name]
			marker := ""
			if name == cfg.CurrentProfile {
				marker = "*"
			}
			table.AddRow([]string{marker, name, p.IngestURL, p.SecretsFile})
		}
		table.Render()
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RemoveProfile(args[0]); err != nil {
			return err
		}
		output.Success("Profile %s removed", args[0])
		return nil
	},
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileRemoveCmd)

	profileSetCmd.Flags().String("ingest-url", config.DefaultIngestURL, "ingest service URL")
	profileSetCmd.Flags().String("secrets-file", "", "secrets YAML keyed by provider")
	profileSetCmd.Flags().String("plaid-key", "", "PEM EC private key for Plaid tokens")
	profileSetCmd.Flags().String("plaid-kid", "", "key id advertised in Plaid tokens")
}
