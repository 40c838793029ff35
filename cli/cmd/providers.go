package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/telhawk-webhooks/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/pkg/signer"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported webhook providers",
	Long:  "List the providers the ingest service accepts and the secret fields each one needs",
	RunE: func(cmd *cobra.Command, args []string) error {
		infos := signer.Providers()
		if jsonOutput(cmd) {
			return output.JSON(infos)
		}

		table := output.NewTable([]string{"PROVIDER", "ROUTE", "REQUIRED SECRETS"})
		for _, info := range infos {
			table.AddRow([]string{info.Name, "POST /" + info.Name, strings.Join(info.RequiredSecrets, ", ")})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
