// Package bridge orchestrates activation: it resolves configuration, makes
// sure the server artifacts are installed, picks a transport, and brings up
// the language server client and debug adapter.
package bridge

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kotlin-lsp/bridge/internal/artifact"
	"github.com/kotlin-lsp/bridge/internal/config"
	"github.com/kotlin-lsp/bridge/internal/dap"
	"github.com/kotlin-lsp/bridge/internal/javahome"
	"github.com/kotlin-lsp/bridge/internal/lsp"
	"github.com/kotlin-lsp/bridge/internal/status"
	"github.com/kotlin-lsp/bridge/internal/transport"
)

// ServerArtifact describes the managed language server distribution.
func ServerArtifact(storageDir string) artifact.Artifact {
	return artifact.Artifact{
		DisplayName:  "Kotlin language server",
		Repo:         "fwcd/kotlin-language-server",
		AssetName:    "server.zip",
		ExtractedDir: "server",
		InstallDir:   filepath.Join(storageDir, "langServerInstall"),
	}
}

// DebugAdapterArtifact describes the managed debug adapter distribution.
func DebugAdapterArtifact(storageDir string) artifact.Artifact {
	return artifact.Artifact{
		DisplayName:  "Kotlin debug adapter",
		Repo:         "fwcd/kotlin-debug-adapter",
		AssetName:    "adapter.zip",
		ExtractedDir: "adapter",
		InstallDir:   filepath.Join(storageDir, "debugAdapterInstall"),
	}
}

// Bridge is one activation session.
type Bridge struct {
	cfg        *config.Config
	cfgPath    string
	storageDir string
	workspace  string
	log        *zap.SugaredLogger
	sessionID  string
	downloader *artifact.Downloader

	client       *lsp.Client
	attach       *transport.TCPAttachConnector
	debugAdapter *dap.Adapter
}

// New creates a bridge for one activation. workspace is the first workspace
// root; storageDir is the bridge-owned directory for downloads and server
// caches.
func New(cfgPath string, cfg *config.Config, workspace, storageDir string, log *zap.SugaredLogger) *Bridge {
	id := uuid.NewString()
	log = log.With("session", id[:8])

	return &Bridge{
		cfg:        cfg,
		cfgPath:    cfgPath,
		storageDir: storageDir,
		workspace:  workspace,
		log:        log,
		sessionID:  id,
		downloader: &artifact.Downloader{
			Log:    log,
			Status: &status.LogReporter{Log: log},
		},
	}
}

// Start activates the language server and debug adapter concurrently and
// returns once both finished or failed. A subsystem failure is surfaced as a
// warning and does not abort the other: the bridge degrades rather than
// dying. Failures are terminal for this activation attempt; there are no
// internal retries.
func (b *Bridge) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.activateLanguageServer(gctx); err != nil {
			b.log.Warnf("language server unavailable: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := b.activateDebugAdapter(gctx); err != nil {
			b.log.Warnf("debug adapter unavailable: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func (b *Bridge) activateLanguageServer(ctx context.Context) error {
	ls := b.cfg.LanguageServer
	if !ls.Enabled {
		b.log.Debugf("language server disabled")
		return nil
	}

	javaHome, err := javahome.Resolve()
	if err != nil {
		return err
	}
	b.log.Debugf("using Java from %s", javaHome)

	serverPath := ls.Path
	managed := serverPath == ""
	if managed {
		a := ServerArtifact(b.storageDir)
		if _, err := b.downloader.Ensure(ctx, a); err != nil {
			return err
		}
		serverPath = a.LauncherPath("kotlin-language-server")
	}

	mode, err := config.SelectTransport(b.cfgPath, b.cfg, b.log)
	if err != nil {
		return err
	}
	b.log.Infof("connecting via %s transport", mode)

	source, err := b.channelSource(mode, serverPath, javaHome)
	if err != nil {
		return err
	}

	client := lsp.NewClient(lsp.ClientConfig{
		Source:        source,
		WorkspaceRoot: b.workspace,
		StoragePath:   b.storageDir,
		WatchGlobs:    ls.WatchFiles,
		Managed:       managed,
	}, b.log)

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start language client: %w", err)
	}

	b.client = client
	return nil
}

// channelSource builds the connector for the selected transport mode.
func (b *Bridge) channelSource(mode transport.Mode, serverPath, javaHome string) (transport.ChannelSource, error) {
	ls := b.cfg.LanguageServer

	switch mode {
	case transport.ModeStdio:
		c := &transport.StdioConnector{
			Path:     serverPath,
			WorkDir:  b.workspace,
			JavaHome: javaHome,
			JavaOpts: ls.JavaOpts,
			Debug: transport.DebugConfig{
				Enabled:     ls.DebugAttach.Enabled,
				AutoSuspend: ls.DebugAttach.AutoSuspend,
				Port:        ls.DebugAttach.Port,
			},
			Log: b.log,
		}
		return c.Source(), nil

	case transport.ModeTCP, transport.ModeTCPRandom:
		port := ls.Port
		if mode == transport.ModeTCPRandom {
			port = 0
		}
		c := &transport.TCPLaunchConnector{
			Path:     serverPath,
			WorkDir:  b.workspace,
			Port:     port,
			JavaHome: javaHome,
			JavaOpts: ls.JavaOpts,
			Log:      b.log,
		}
		return c.Source(), nil

	case transport.ModeTCPAttach:
		c, err := transport.NewTCPAttachConnector(ls.Port, b.log)
		if err != nil {
			return nil, err
		}
		b.attach = c
		return c.Source(), nil

	default:
		return nil, fmt.Errorf("unsupported transport %q", mode)
	}
}

func (b *Bridge) activateDebugAdapter(ctx context.Context) error {
	da := b.cfg.DebugAdapter
	if !da.Enabled {
		b.log.Debugf("debug adapter disabled")
		return nil
	}

	adapterPath := da.Path
	if adapterPath == "" {
		a := DebugAdapterArtifact(b.storageDir)
		if _, err := b.downloader.Ensure(ctx, a); err != nil {
			return err
		}
		adapterPath = a.LauncherPath("kotlin-debug-adapter")
	}

	adapter := &dap.Adapter{Path: adapterPath, Log: b.log}
	if err := adapter.Start(ctx); err != nil {
		return err
	}

	b.debugAdapter = adapter
	return nil
}

// Client returns the connected language client, or nil when the language
// server subsystem is disabled or failed to activate.
func (b *Bridge) Client() *lsp.Client {
	return b.client
}

// SessionID identifies this activation in logs.
func (b *Bridge) SessionID() string {
	return b.sessionID
}

// Stop tears the session down: shuts the language client down, closes the
// attach listener if one was bound, and stops the debug adapter.
func (b *Bridge) Stop(ctx context.Context) {
	if b.client != nil {
		if err := b.client.Stop(ctx); err != nil {
			b.log.Debugf("stop language client: %v", err)
		}
	}
	if b.attach != nil {
		b.attach.Close()
	}
	if b.debugAdapter != nil {
		b.debugAdapter.Stop()
	}
}
