// Package main implements the storyd daemon: a JSON-RPC tool gateway
// over the story content store plus the lock-guarded generation
// pipeline.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configFile is the optional YAML config path. Environment
	// variables override it.
	configFile string

	// version is set via ldflags during build.
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "storyd",
	Short: "Story generation daemon",
	Long: `storyd serves story tools over JSON-RPC and runs the phased
generation pipeline under a distributed lock.

Configuration is read from an optional YAML file and STORYD_*
environment variables, with the environment taking precedence.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
}
