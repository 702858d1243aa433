package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kotlin-lsp/bridge/internal/bridge"
	"github.com/kotlin-lsp/bridge/internal/config"
	"github.com/kotlin-lsp/bridge/internal/logger"
)

var startCmd = &cobra.Command{
	Use:   "start [workspace]",
	Short: "Start the bridge in the foreground",
	Long: `Start the bridge: install or reuse the managed server binaries, connect
to the Kotlin language server over the configured transport, and run until
interrupted. The workspace defaults to the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog, err := logger.New(logger.DefaultDir(), flagVerbose)
		if err != nil {
			return fmt.Errorf("open log sink: %w", err)
		}
		defer closeLog()

		workspace, err := resolveWorkspace(args)
		if err != nil {
			return err
		}

		cfgPath := configPath()
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		log.Infof("starting kotlin-bridge %s in %s", version, workspace)

		b := bridge.New(cfgPath, cfg, workspace, storageDir(), log)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := b.Start(ctx); err != nil {
			return err
		}

		if client := b.Client(); client != nil {
			go func() {
				<-client.DisconnectNotify()
				log.Infof("language server connection closed")
			}()
		}

		<-ctx.Done()
		log.Infof("shutting down")

		b.Stop(context.Background())
		return nil
	},
}

func resolveWorkspace(args []string) (string, error) {
	if len(args) == 1 {
		return filepath.Abs(args[0])
	}
	if flagWorkspace != "" {
		return filepath.Abs(flagWorkspace)
	}
	return os.Getwd()
}

func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.Path()
}

func storageDir() string {
	if flagStorage != "" {
		return flagStorage
	}
	return filepath.Join(config.Dir(), "storage")
}

func init() {
	startCmd.Flags().StringVar(&flagWorkspace, "workspace", "", "workspace root (default: current directory)")
}
