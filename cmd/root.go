package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Execute runs the glassmind CLI.
func Execute() error {
	// a missing .env is fine; env vars may come from anywhere
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "glassmind",
		Short: "Research agent that streams its reasoning over SSE",
	}
	root.AddCommand(serveCMD(), tokenCMD())
	return root.Execute()
}
