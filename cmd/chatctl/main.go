// chatctl drives a running chat transcript service over its HTTP API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:           "chatctl",
		Short:         "Send messages and inspect the transcript of a chat transcript service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String("addr", envOrDefault("CHATCTL_ADDR", "http://localhost:8080"), "Service base URL")
	rootCmd.PersistentFlags().Duration("timeout", defaultTimeout, "Request timeout")

	rootCmd.AddCommand(
		newSendCmd(),
		newTranscriptCmd(),
		newOpenCmd(),
		newNewCmd(),
		newConversationsCmd(),
		newModelsCmd(),
		newDeleteCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
