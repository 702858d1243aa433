package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	maxSize    = 10 * 1024 * 1024 // per log file
	maxBackups = 7
)

// RotatingWriter is a size-rotating, date-stamped log file writer. It is the
// shared output sink: language-server output and internal log lines are both
// appended through it.
type RotatingWriter struct {
	dir  string
	file *os.File
	size int64
	mu   sync.Mutex
}

// NewRotatingWriter opens (or creates) today's log file under dir.
func NewRotatingWriter(dir string) (*RotatingWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	w := &RotatingWriter{dir: dir}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > maxSize {
		w.rotate()
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

func (w *RotatingWriter) openFile() error {
	name := fmt.Sprintf("bridge-%s.log", time.Now().Format("2006-01-02"))
	path := filepath.Join(w.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	info, _ := f.Stat()
	w.file = f
	w.size = info.Size()
	return nil
}

func (w *RotatingWriter) rotate() {
	w.file.Close()
	w.cleanup()
	w.openFile()
}

func (w *RotatingWriter) cleanup() {
	entries, _ := os.ReadDir(w.dir)
	var logs []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			logs = append(logs, filepath.Join(w.dir, e.Name()))
		}
	}

	if len(logs) <= maxBackups {
		return
	}

	sort.Slice(logs, func(i, j int) bool {
		fi, _ := os.Stat(logs[i])
		fj, _ := os.Stat(logs[j])
		return fi.ModTime().Before(fj.ModTime())
	})

	for i := 0; i < len(logs)-maxBackups; i++ {
		os.Remove(logs[i])
	}
}

// DefaultDir returns the per-OS log directory.
func DefaultDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "kotlin-bridge", "logs")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Logs", "kotlin-bridge")
	default:
		return filepath.Join(os.Getenv("HOME"), ".kotlin-bridge", "logs")
	}
}

// New builds the bridge logger: console output on stderr plus the rotating
// file sink. The returned closer flushes and closes the file.
func New(dir string, verbose bool) (*zap.SugaredLogger, func(), error) {
	w, err := NewRotatingWriter(dir)
	if err != nil {
		return nil, nil, err
	}

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	enc := zapcore.NewConsoleEncoder(encCfg)

	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level),
		zapcore.NewCore(enc, zapcore.AddSync(w), level),
	)

	log := zap.New(core)
	cleanup := func() {
		log.Sync()
		w.Close()
	}
	return log.Sugar(), cleanup, nil
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
