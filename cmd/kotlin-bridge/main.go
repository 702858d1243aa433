package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	flagConfig    string
	flagWorkspace string
	flagStorage   string
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "kotlin-bridge",
	Short: "Kotlin language server bridge",
	Long: `kotlin-bridge bootstraps and supervises the Kotlin language server and
debug adapter: it downloads the server binaries, establishes the protocol
connection over the configured transport (stdio or TCP), and keeps the
session alive for editor-side clients.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "configuration file (default: per-user config dir)")
	rootCmd.PersistentFlags().StringVar(&flagStorage, "storage", "", "storage directory for downloads and caches")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kotlin-bridge version %s\n", version)
	},
}
