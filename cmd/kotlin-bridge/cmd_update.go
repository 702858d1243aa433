package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kotlin-lsp/bridge/internal/artifact"
	"github.com/kotlin-lsp/bridge/internal/bridge"
	"github.com/kotlin-lsp/bridge/internal/logger"
	"github.com/kotlin-lsp/bridge/internal/status"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for and install server updates",
	Long: `Check the release manifests for the language server and debug adapter
and download any version newer than the installed one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog, err := logger.New(logger.DefaultDir(), flagVerbose)
		if err != nil {
			return fmt.Errorf("open log sink: %w", err)
		}
		defer closeLog()

		d := &artifact.Downloader{
			Log:    log,
			Status: &status.LogReporter{Log: log},
		}

		artifacts := []artifact.Artifact{
			bridge.ServerArtifact(storageDir()),
			bridge.DebugAdapterArtifact(storageDir()),
		}

		for _, a := range artifacts {
			updated, err := d.Update(cmd.Context(), a)
			if err != nil {
				return fmt.Errorf("update %s: %w", a.DisplayName, err)
			}
			if updated {
				fmt.Printf("%s updated to %s\n", a.DisplayName, d.InstalledVersion(a))
			} else {
				fmt.Printf("%s is up to date (%s)\n", a.DisplayName, d.InstalledVersion(a))
			}
		}
		return nil
	},
}
