package commands

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "trustgate",
		Short: "Trust enforcement layer between AI agents and platform APIs",
		Long:  "Trustgate — Sanitizes agent input, records every platform call in a verifiable ledger, and gates recommended actions through an allow-listed safety policy. Single binary.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "trustgate.yaml", "config file path")

	root.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newActionsCmd(),
		newLedgerCmd(),
		newVersionCmd(),
	)

	return root
}
