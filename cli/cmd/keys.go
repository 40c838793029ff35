package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/telhawk-systems/telhawk-webhooks/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/pkg/signer"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Plaid verification key commands",
	Long:  "Generate Plaid-style signing keys and serve them for a local ingest service",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a P-256 signing key",
	Example: `  whctl keys generate --out plaid.pem`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		key, err := signer.GenerateKey()
		if err != nil {
			return err
		}
		pemBytes, err := signer.EncodeKey(key)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, pemBytes, 0600); err != nil {
			return fmt.Errorf("write key: %w", err)
		}

		kid := uuid.NewString()
		output.Success("Key written to %s", out)
		output.Info("Use --plaid-kid %s (or set plaid_kid in your profile)", kid)
		return nil
	},
}

var keysServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the verification-key endpoint",
	Long: `Serve the Plaid webhook_verification_key/get endpoint for one key. Point the
ingest service's plaid.key_endpoint at it.`,
	Example: `  whctl keys serve --key plaid.pem --kid 6c5516e1 --addr :8099`,
	RunE: func(cmd *cobra.Command, args []string) error {
		keyFile, _ := cmd.Flags().GetString("key")
		kid, _ := cmd.Flags().GetString("kid")
		addr, _ := cmd.Flags().GetString("addr")
		if kid == "" {
			return fmt.Errorf("--kid is required")
		}

		pemBytes, err := os.ReadFile(keyFile)
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		key, err := signer.DecodeKey(pemBytes)
		if err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/webhook_verification_key/get", signer.KeyHandler(kid, &key.PublicKey, time.Now()))

		output.Info("Serving key %s on http://%s/webhook_verification_key/get", kid, addr)
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		return srv.ListenAndServe()
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd)
	keysCmd.AddCommand(keysServeCmd)

	keysGenerateCmd.Flags().String("out", "plaid.pem", "output PEM file")
	keysServeCmd.Flags().String("key", "plaid.pem", "PEM EC private key")
	keysServeCmd.Flags().String("kid", "", "key id to serve")
	keysServeCmd.Flags().String("addr", "localhost:8099", "listen address")
}
