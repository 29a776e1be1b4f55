// Command validationd runs one peer of the content-validation network, or
// manages its identity, replacing the teacher's cmd/consensus tooling with
// the operational surface this domain actually needs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "validationd",
	Short: "peer-to-peer content validation with reputation",
	Long: `validationd runs a single peer of the content validation network:
it gossips content for validation, forms reputation-gated juries, tallies
votes, and maintains a local reputation ledger.`,
}

func main() {
	rootCmd.AddCommand(runCmd(), keygenCmd(), statusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
