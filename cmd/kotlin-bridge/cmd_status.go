package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kotlin-lsp/bridge/internal/artifact"
	"github.com/kotlin-lsp/bridge/internal/bridge"
	"github.com/kotlin-lsp/bridge/internal/config"
	"github.com/kotlin-lsp/bridge/internal/javahome"
	"github.com/kotlin-lsp/bridge/internal/logger"
	"github.com/kotlin-lsp/bridge/internal/transport"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and install state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath())
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		mode, _ := transport.ParseMode(cfg.LanguageServer.Transport)
		fmt.Printf("Transport:          %s\n", mode)

		if home, err := javahome.Resolve(); err == nil {
			fmt.Printf("Java home:          %s\n", home)
		} else {
			fmt.Printf("Java home:          not found\n")
		}

		d := &artifact.Downloader{Log: logger.NewNop()}
		printInstallState(d, "Language server", bridge.ServerArtifact(storageDir()), cfg.LanguageServer.Path)
		printInstallState(d, "Debug adapter", bridge.DebugAdapterArtifact(storageDir()), cfg.DebugAdapter.Path)
		return nil
	},
}

func printInstallState(d *artifact.Downloader, label string, a artifact.Artifact, customPath string) {
	if customPath != "" {
		fmt.Printf("%-19s custom (%s)\n", label+":", customPath)
		return
	}
	if v := d.InstalledVersion(a); v != "" {
		fmt.Printf("%-19s %s\n", label+":", v)
		return
	}
	fmt.Printf("%-19s not installed\n", label+":")
}
