package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Set via ldflags.
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cartd",
	Short: "cartd - cart consistency engine and reference cart service",
	Long: `cartd runs the reference cart service, or a cart engine that keeps a
shopper's cart in sync with a cart service and watches promotions.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("cartd version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().StringSlice("env-file", []string{".env"}, "env files to load before the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}
