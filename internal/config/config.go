package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"github.com/kotlin-lsp/bridge/internal/transport"
)

// Config is the bridge configuration, persisted as JSON. Field defaults are
// normalized once at load time; the rest of the code never re-checks them.
type Config struct {
	LanguageServer LanguageServerConfig `json:"languageServer"`
	DebugAdapter   DebugAdapterConfig   `json:"debugAdapter"`
}

// LanguageServerConfig configures how the Kotlin language server is located
// and connected to.
type LanguageServerConfig struct {
	Enabled bool `json:"enabled"`

	// Path overrides the managed download with a custom server launcher.
	Path string `json:"path,omitempty"`

	// Transport is one of the transport.Mode values. Invalid values are
	// self-healed to stdio on activation.
	Transport string `json:"transport,omitempty"`

	// Port is used by the tcp and tcp-attach transports. Zero means an
	// OS-assigned port where that makes sense (tcp-random ignores it).
	Port int `json:"port,omitempty"`

	// WatchFiles overrides the default file-watch glob set.
	WatchFiles []string `json:"watchFiles,omitempty"`

	// JavaOpts is propagated to the server process as JAVA_OPTS.
	JavaOpts string `json:"javaOpts,omitempty"`

	DebugAttach DebugAttachConfig `json:"debugAttach"`
}

// DebugAttachConfig enables JVM remote debugging of the server process.
type DebugAttachConfig struct {
	Enabled     bool `json:"enabled"`
	AutoSuspend bool `json:"autoSuspend"`
	Port        int  `json:"port,omitempty"`
}

// DebugAdapterConfig configures the Kotlin debug adapter.
type DebugAdapterConfig struct {
	Enabled bool `json:"enabled"`

	// Path overrides the managed download with a custom adapter launcher.
	Path string `json:"path,omitempty"`
}

// DefaultWatchFiles are the globs watched when watchFiles is unset.
var DefaultWatchFiles = []string{
	"**/*.kt",
	"**/*.kts",
	"**/*.java",
	"**/pom.xml",
	"**/build.gradle",
	"**/settings.gradle",
}

// DefaultDebugAttachPort is the JDWP port used when debugAttach.port is unset.
const DefaultDebugAttachPort = 5005

// Default returns a configuration with every field at its documented default.
func Default() *Config {
	return &Config{
		LanguageServer: LanguageServerConfig{
			Enabled:    true,
			Transport:  string(transport.DefaultMode),
			WatchFiles: append([]string(nil), DefaultWatchFiles...),
			DebugAttach: DebugAttachConfig{
				Port: DefaultDebugAttachPort,
			},
		},
		DebugAdapter: DebugAdapterConfig{
			Enabled: true,
		},
	}
}

// Dir returns the per-OS bridge configuration directory.
func Dir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "kotlin-bridge")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".kotlin-bridge")
	}
}

// Path returns the default configuration file path.
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// Load reads the configuration from path. A missing file yields the default
// configuration rather than an error; the file is created on the first Save.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if len(cfg.LanguageServer.WatchFiles) == 0 {
		cfg.LanguageServer.WatchFiles = append([]string(nil), DefaultWatchFiles...)
	}
	if cfg.LanguageServer.DebugAttach.Port == 0 {
		cfg.LanguageServer.DebugAttach.Port = DefaultDebugAttachPort
	}

	return cfg, nil
}

// Save writes the configuration to path, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// SelectTransport validates the configured transport mode. An invalid or
// absent value falls back to stdio and the correction is written back to
// path, so the stored configuration always holds a valid mode after the
// first activation.
func SelectTransport(path string, cfg *Config, log *zap.SugaredLogger) (transport.Mode, error) {
	mode, ok := transport.ParseMode(cfg.LanguageServer.Transport)
	if ok {
		return mode, nil
	}

	log.Warnf("invalid transport %q, falling back to %s", cfg.LanguageServer.Transport, mode)
	cfg.LanguageServer.Transport = string(mode)
	if err := Save(path, cfg); err != nil {
		return mode, fmt.Errorf("persist corrected transport: %w", err)
	}
	return mode, nil
}
