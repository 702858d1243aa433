// Package status abstracts progress reporting so long-running work
// (downloads, activation) does not write to ambient global state.
package status

import "go.uber.org/zap"

// Reporter receives coarse progress for a single task. Implementations must
// tolerate Report after End being skipped on failure paths.
type Reporter interface {
	Begin(task string)
	Report(message string)
	End()
}

// LogReporter writes progress to the injected logger. It stands in for the
// editor status-bar spinner the bridge has no equivalent of.
type LogReporter struct {
	Log *zap.SugaredLogger

	task string
}

func (r *LogReporter) Begin(task string) {
	r.task = task
	r.Log.Infof("%s...", task)
}

func (r *LogReporter) Report(message string) {
	r.Log.Infof("%s: %s", r.task, message)
}

func (r *LogReporter) End() {
	r.Log.Infof("%s: done", r.task)
}

// Nop discards all progress, for tests.
type Nop struct{}

func (Nop) Begin(string)  {}
func (Nop) Report(string) {}
func (Nop) End()          {}
