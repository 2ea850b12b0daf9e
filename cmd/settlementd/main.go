// Command settlementd runs the contest settlement and payout pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	configPath string
	useMemory  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "settlementd",
		Short:         "Contest settlement and payout pipeline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (env SETTLEMENT_* overrides)")
	rootCmd.PersistentFlags().BoolVar(&useMemory, "use-memory", false, "use the in-memory store and stub provider")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(consumeOutboxCmd())
	rootCmd.AddCommand(executePayoutsCmd())
	rootCmd.AddCommand(executeTransferCmd())
	rootCmd.AddCommand(exportLedgerCmd())
	rootCmd.AddCommand(demoCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
