package lsp

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher observes the workspace for changes matching the configured globs
// and emits one FileEvent per change. Directories created after startup are
// picked up as they appear.
type Watcher struct {
	fsw    *fsnotify.Watcher
	root   string
	globs  []string
	events chan FileEvent
	log    *zap.SugaredLogger
}

// NewWatcher starts watching root. One watch registration exists per
// directory; the glob filtering happens on the event path.
func NewWatcher(root string, globs []string, log *zap.SugaredLogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:    fsw,
		root:   root,
		globs:  globs,
		events: make(chan FileEvent, 64),
		log:    log,
	}

	if err := w.addDirs(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

// Events delivers matched file changes. The channel closes when the watcher
// is closed.
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

// Close stops watching and closes the event channel.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

func (w *Watcher) run() {
	defer close(w.events)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Debugf("watcher: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addDirs(ev.Name)
			return
		}
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	if !MatchesAnyGlob(rel, w.globs) {
		return
	}

	var typ FileChangeType
	switch {
	case ev.Op.Has(fsnotify.Create):
		typ = FileCreated
	case ev.Op.Has(fsnotify.Write):
		typ = FileChanged
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		typ = FileDeleted
	default:
		return
	}

	select {
	case w.events <- FileEvent{URI: FilePathToURI(ev.Name), Type: typ}:
	default:
		w.log.Debugf("watcher: dropping event for %s (queue full)", rel)
	}
}

// MatchesAnyGlob reports whether the slash-separated relative path matches
// one of the watch globs.
func MatchesAnyGlob(rel string, globs []string) bool {
	for _, g := range globs {
		if matchGlob(rel, g) {
			return true
		}
	}
	return false
}

// matchGlob supports the subset of glob syntax the default watch set uses: a
// leading "**/" matches any number of directories (including none), the rest
// is a path.Match pattern applied to the remaining segments.
func matchGlob(rel, glob string) bool {
	if strings.HasPrefix(glob, "**/") {
		tail := strings.TrimPrefix(glob, "**/")
		segs := strings.Split(rel, "/")
		tailSegs := strings.Count(tail, "/") + 1
		for i := 0; i+tailSegs <= len(segs); i++ {
			if ok, _ := path.Match(tail, strings.Join(segs[i:i+tailSegs], "/")); ok {
				return true
			}
		}
		return false
	}
	ok, _ := path.Match(glob, rel)
	return ok
}
