// Aria — AI assistant orchestration layer for the Aria music platform.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aria",
	Short: "Aria — AI companion orchestration for the Aria music platform.",
	Long: `Aria is the orchestration layer between the music streaming platform and
its LLM backends. It selects providers, retrieves product knowledge, exposes
catalog tools to the model, and turns every side effect into an inert,
approval-gated proposal that the client must confirm before anything happens.`,
	RunE:          runGateway, // Default to gateway mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(gatewayCmd, chatCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
