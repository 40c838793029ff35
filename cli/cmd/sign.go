package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/telhawk-systems/telhawk-webhooks/cli/internal/config"
	"github.com/telhawk-systems/telhawk-webhooks/cli/internal/payload"
	"github.com/telhawk-systems/telhawk-webhooks/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/pkg/signer"
)

var signCmd = &cobra.Command{
	Use:   "sign <provider>",
	Short: "Print the headers a provider would send",
	Long:  "Sign a payload the way the provider does and print the resulting request headers",
	Example: `  whctl sign stripe --data '{"id":"evt_123","object":"event"}'
  whctl sign marqeta --file payload.json --output json
  whctl sign plaid --fake --plaid-key plaid.pem --plaid-kid 6c5516e1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := args[0]

		body, err := readPayload(cmd, provider, payload.New(0))
		if err != nil {
			return err
		}
		creds, err := loadCredentials(cmd, currentProfile(cmd), provider)
		if err != nil {
			return err
		}
		deliveryID, _ := cmd.Flags().GetString("delivery-id")
		if deliveryID == "" {
			deliveryID = uuid.NewString()
		}

		h, err := signer.Sign(provider, body, creds, signer.Options{DeliveryID: deliveryID, Now: time.Now()})
		if err != nil {
			return err
		}

		if jsonOutput(cmd) {
			return output.JSON(map[string]any{
				"provider": provider,
				"headers":  h,
				"body":     string(body),
			})
		}
		output.Headers(h)
		fmt.Println()
		fmt.Println(string(body))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	addPayloadFlags(signCmd)
	signCmd.Flags().String("delivery-id", "", "delivery id header value (default: random UUID)")
}

func addPayloadFlags(c *cobra.Command) {
	c.Flags().String("data", "", "JSON payload")
	c.Flags().String("file", "", "read the payload from a file")
	c.Flags().Bool("fake", false, "generate a realistic payload for the provider")
	c.Flags().String("secrets-file", "", "secrets YAML keyed by provider (overrides profile)")
	c.Flags().StringArray("secret", nil, "secret field override, e.g. --secret webhook_secret=whsec_test")
	c.Flags().String("plaid-key", "", "PEM EC private key for Plaid tokens (overrides profile)")
	c.Flags().String("plaid-kid", "", "key id advertised in Plaid tokens (overrides profile)")
}

func readPayload(cmd *cobra.Command, provider string, gen *payload.Generator) ([]byte, error) {
	data, _ := cmd.Flags().GetString("data")
	file, _ := cmd.Flags().GetString("file")
	fake, _ := cmd.Flags().GetBool("fake")

	switch {
	case data != "":
		return []byte(data), nil
	case file != "":
		return os.ReadFile(file)
	case fake:
		return gen.Generate(provider)
	default:
		return nil, fmt.Errorf("one of --data, --file or --fake is required")
	}
}

func loadCredentials(cmd *cobra.Command, profile *config.Profile, provider string) (signer.Credentials, error) {
	creds := signer.Credentials{Secrets: map[string]string{}, PlaidKID: profile.PlaidKID}

	secretsFile, _ := cmd.Flags().GetString("secrets-file")
	if secretsFile == "" {
		secretsFile = profile.SecretsFile
	}
	if secretsFile != "" {
		all, err := config.LoadSecrets(secretsFile)
		if err != nil {
			return creds, err
		}
		for k, v := range all[provider] {
			creds.Secrets[k] = v
		}
	}

	overrides, _ := cmd.Flags().GetStringArray("secret")
	for _, kv := range overrides {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return creds, fmt.Errorf("invalid --secret %q, expected field=value", kv)
		}
		creds.Secrets[k] = v
	}

	if kid, _ := cmd.Flags().GetString("plaid-kid"); kid != "" {
		creds.PlaidKID = kid
	}
	keyFile, _ := cmd.Flags().GetString("plaid-key")
	if keyFile == "" {
		keyFile = profile.PlaidKeyFile
	}
	if keyFile != "" {
		pemBytes, err := os.ReadFile(keyFile)
		if err != nil {
			return creds, fmt.Errorf("read plaid key: %w", err)
		}
		key, err := signer.DecodeKey(pemBytes)
		if err != nil {
			return creds, fmt.Errorf("parse plaid key: %w", err)
		}
		creds.PlaidKey = key
	}

	return creds, nil
}
