package devserver

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// ChangeClass classifies what a filesystem change affects, which decides
// the invalidation work a change-set triggers.
type ChangeClass string

const (
	ClassPage   ChangeClass = "page"   // content file mapped to a route
	ClassLayout ChangeClass = "layout" // _layout.* at any level
	ClassPublic ChangeClass = "public" // static asset
	ClassConfig ChangeClass = "config" // project configuration file
	ClassSystem ChangeClass = "system" // other reserved _ files
)

// FileChange is one classified filesystem change within a debounced batch.
type FileChange struct {
	Path  string // absolute path
	Class ChangeClass
	Op    fsnotify.Op
}

// Watcher watches the content and public roots recursively and delivers
// debounced, classified change batches. Bursts within the quiet period
// collapse into one batch keyed by absolute path (last event wins).
type Watcher struct {
	fsw         *fsnotify.Watcher
	contentRoot string
	publicRoot  string
	configPath  string
	debounce    time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]FileChange
	stopped bool

	changes chan []FileChange
	done    chan struct{}
}

// NewWatcher creates a watcher over the content root, public root and
// the configuration file's directory. Missing roots are tolerated.
func NewWatcher(contentRoot, publicRoot, configPath string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:         fsw,
		contentRoot: filepath.Clean(contentRoot),
		publicRoot:  filepath.Clean(publicRoot),
		configPath:  filepath.Clean(configPath),
		debounce:    debounce,
		pending:     map[string]FileChange{},
		changes:     make(chan []FileChange, 1),
		done:        make(chan struct{}),
	}

	for _, root := range []string{w.contentRoot, w.publicRoot} {
		if err := addDirsRecursive(fsw, root); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	if dir := filepath.Dir(w.configPath); dir != "" {
		if err := fsw.Add(dir); err != nil {
			slog.Warn("watch config dir failed", logfields.Dir(dir), logfields.Error(err))
		}
	}

	go w.loop()
	return w, nil
}

// Changes delivers debounced change batches.
func (w *Watcher) Changes() <-chan []FileChange { return w.changes }

// Stop cancels any pending debounce timer and closes the underlying
// watcher synchronously, so no stale batch fires after shutdown.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	close(w.done)
	_ = w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if shouldIgnoreEvent(ev.Name) {
		return
	}
	// New directories under a watched root must themselves be watched.
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = addDirsRecursive(w.fsw, ev.Name)
			return
		}
	}

	class, ok := w.classify(ev.Name)
	if !ok {
		return
	}
	slog.Debug("file change", logfields.Path(ev.Name), logfields.ChangeType(string(class)))

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.pending[ev.Name] = FileChange{Path: ev.Name, Class: class, Op: ev.Op}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush delivers the pending batch. An undelivered previous batch is
// merged rather than lost.
func (w *Watcher) flush() {
	w.mu.Lock()
	if w.stopped || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := make([]FileChange, 0, len(w.pending))
	for _, c := range w.pending {
		batch = append(batch, c)
	}
	w.pending = map[string]FileChange{}
	w.mu.Unlock()

	select {
	case w.changes <- batch:
	default:
		select {
		case prev := <-w.changes:
			w.changes <- append(prev, batch...)
		default:
			w.changes <- batch
		}
	}
}

// classify maps an absolute path to its change class. Paths outside the
// watched roots that are not the config file are not interesting.
func (w *Watcher) classify(path string) (ChangeClass, bool) {
	if path == w.configPath {
		return ClassConfig, true
	}
	if isUnder(w.publicRoot, path) {
		return ClassPublic, true
	}
	if !isUnder(w.contentRoot, path) {
		return "", false
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, content.SystemLayout+".") {
		return ClassLayout, true
	}
	if content.IsSystemFile(base) {
		return ClassSystem, true
	}
	if _, ok := content.KindForExtension(filepath.Ext(base)); ok {
		return ClassPage, true
	}
	return "", false
}

func isUnder(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func addDirsRecursive(fsw *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); err != nil {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			if err := fsw.Add(path); err != nil {
				slog.Warn("watch add failed", logfields.Dir(path), logfields.Error(err))
			}
		}
		return nil
	})
}

// shouldIgnoreEvent filters events for hidden files, editor swap/backup
// files and OS metadata files.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, ".#") ||
		(strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#")) {
		return true
	}
	if base == ".DS_Store" || base == "Thumbs.db" {
		return true
	}
	return false
}
