package lsp

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestMatchGlobs(t *testing.T) {
	defaults := []string{
		"**/*.kt", "**/*.kts", "**/*.java",
		"**/pom.xml", "**/build.gradle", "**/settings.gradle",
	}

	tests := []struct {
		rel  string
		want bool
	}{
		{"Main.kt", true},
		{"src/main/kotlin/Main.kt", true},
		{"build.gradle", true},
		{"app/build.gradle", true},
		{"scripts/deploy.kts", true},
		{"src/Main.java", true},
		{"deep/nested/pom.xml", true},
		{"README.md", false},
		{"Main.kt.bak", false},
		{"gradle.properties", false},
	}

	for _, tt := range tests {
		if got := MatchesAnyGlob(tt.rel, defaults); got != tt.want {
			t.Errorf("MatchesAnyGlob(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}

func waitForEvent(t *testing.T, events <-chan FileEvent, want FileChangeType, substr string) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event channel closed")
			}
			if ev.Type == want && filepath.Base(string(ev.URI)) == substr {
				return
			}
			// Platforms differ in which intermediate events they emit.
		case <-deadline:
			t.Fatalf("no %v event for %s", want, substr)
		}
	}
}

func TestWatcherEmitsMatchedChanges(t *testing.T) {
	root := t.TempDir()

	w, err := NewWatcher(root, []string{"**/*.kt"}, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Close()

	path := filepath.Join(root, "Main.kt")
	if err := os.WriteFile(path, []byte("fun main() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, w.Events(), FileCreated, "Main.kt")

	if err := os.WriteFile(path, []byte("fun main() { println() }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, w.Events(), FileChanged, "Main.kt")

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, w.Events(), FileDeleted, "Main.kt")
}

func TestWatcherIgnoresUnmatchedFiles(t *testing.T) {
	root := t.TempDir()

	w, err := NewWatcher(root, []string{"**/*.kt"}, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()

	w, err := NewWatcher(root, []string{"**/*.kt"}, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Close()

	sub := filepath.Join(root, "src")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	// Give the watcher a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(sub, "App.kt"), []byte("class App\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, w.Events(), FileCreated, "App.kt")
}
