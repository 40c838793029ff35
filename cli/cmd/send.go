package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/telhawk-systems/telhawk-webhooks/cli/internal/client"
	"github.com/telhawk-systems/telhawk-webhooks/cli/internal/payload"
	"github.com/telhawk-systems/telhawk-webhooks/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/pkg/signer"
)

var sendCmd = &cobra.Command{
	Use:   "send <provider>",
	Short: "Send a signed webhook",
	Long:  "Sign a payload as the provider would and POST it to the ingest service",
	Example: `  whctl send stripe --fake
  whctl send trolley --file payment.json --count 5
  whctl send solidfi --data '{"data":{"id":"x"}}' --repeat 2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := args[0]
		profile := currentProfile(cmd)

		ingestURL, _ := cmd.Flags().GetString("ingest-url")
		if ingestURL == "" {
			ingestURL = profile.IngestURL
		}
		count, _ := cmd.Flags().GetInt("count")
		repeat, _ := cmd.Flags().GetInt("repeat")
		seed, _ := cmd.Flags().GetInt64("seed")
		if count < 1 || repeat < 1 {
			return fmt.Errorf("--count and --repeat must be at least 1")
		}

		creds, err := loadCredentials(cmd, profile, provider)
		if err != nil {
			return err
		}

		gen := payload.New(seed)
		wc := client.NewWebhookClient(ingestURL)
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		var results []*client.Response
		failures := 0
		for i := 0; i < count; i++ {
			body, err := readPayload(cmd, provider, gen)
			if err != nil {
				return err
			}
			deliveryID := uuid.NewString()

			// Repeats reuse the delivery id and body to exercise de-duplication.
			for j := 0; j < repeat; j++ {
				h, err := signer.Sign(provider, body, creds, signer.Options{DeliveryID: deliveryID, Now: time.Now()})
				if err != nil {
					return err
				}
				resp, err := wc.Send(ctx, provider, body, h)
				if err != nil {
					return fmt.Errorf("failed to send webhook: %w", err)
				}
				if resp.StatusCode != http.StatusOK {
					failures++
				}
				results = append(results, resp)
				if !jsonOutput(cmd) {
					output.Status(resp.StatusCode, describe(resp))
				}
			}
		}

		if jsonOutput(cmd) {
			return output.JSON(results)
		}
		if failures > 0 {
			output.Error("%d of %d deliveries to %s were rejected", failures, len(results), provider)
			return fmt.Errorf("%d deliveries rejected", failures)
		}
		output.Success("%d deliveries to %s accepted", len(results), provider)
		return nil
	},
}

func describe(resp *client.Response) string {
	s := ""
	if resp.RequestID != "" {
		s = "request_id=" + resp.RequestID
	}
	if resp.Body != "" {
		s += " " + resp.Body
	}
	return s
}

func init() {
	rootCmd.AddCommand(sendCmd)
	addPayloadFlags(sendCmd)
	sendCmd.Flags().String("ingest-url", "", "ingest service URL (overrides profile)")
	sendCmd.Flags().Int("count", 1, "number of distinct deliveries")
	sendCmd.Flags().Int("repeat", 1, "times to send each delivery")
	sendCmd.Flags().Int64("seed", 0, "seed for --fake payloads (0 = random)")
}
