package repo

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blakesmith/ar"
	"github.com/fsnotify/fsnotify"
)

// Handler is invoked with the name of a distribution whose package tree
// changed.
type Handler func(distribution string)

// Watcher turns filesystem events under pkgroot into "distribution changed"
// notifications. It watches recursively and re-arms on newly created
// subdirectories, since fsnotify does not follow directory creation on its
// own.
type Watcher struct {
	pkgroot string
	log     *slog.Logger

	fsw *fsnotify.Watcher

	mu       sync.Mutex
	handlers []Handler
	done     chan struct{}
}

// NewWatcher creates a watcher rooted at pkgroot. Call Start to begin
// watching.
func NewWatcher(pkgroot string) *Watcher {
	return &Watcher{
		pkgroot: pkgroot,
		log:     slog.With("component", "watcher"),
	}
}

// Register adds a handler invoked synchronously for every relevant event.
func (w *Watcher) Register(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Deregister clears all registered handlers. Go funcs aren't comparable, so
// unlike the single-handler case this drops every subscriber at once;
// callers that need a single long-lived subscriber should register exactly
// one dispatching handler.
func (w *Watcher) Deregister(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = nil
}

// Start begins recursive watching of pkgroot. Idempotent within a lifecycle:
// calling Start again without an intervening Stop does nothing and returns nil.
func (w *Watcher) Start() error {
	if w.fsw != nil {
		return nil
	}

	if info, err := os.Stat(w.pkgroot); err != nil || !info.IsDir() {
		if err == nil {
			err = os.ErrInvalid
		}
		return &os.PathError{Op: "start watcher", Path: w.pkgroot, Err: err}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := filepath.WalkDir(w.pkgroot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	}); err != nil {
		_ = fsw.Close()
		return err
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	go w.dispatch()
	return nil
}

// Stop stops watching. In-flight dispatches may still complete.
func (w *Watcher) Stop() {
	if w.fsw == nil {
		return
	}
	_ = w.fsw.Close()
	<-w.done
	w.fsw = nil
}

func (w *Watcher) dispatch() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher internal error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.log.Warn("failed to watch new subdirectory", "path", event.Name, "error", err)
			}
			return
		}
	}

	relevant := event.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
	if !relevant || !strings.HasSuffix(event.Name, ".deb") {
		return
	}

	if event.Op&fsnotify.Create != 0 && !looksLikeArArchive(event.Name) {
		w.log.Debug("dropping create event for file that is not yet a complete package", "path", event.Name)
		return
	}

	dist, ok := w.distributionFor(event.Name)
	if !ok {
		w.log.Warn("relevant event outside any distribution", "path", event.Name)
		return
	}

	w.dispatchToHandlers(dist)
}

// distributionFor derives the distribution name as the first path segment
// of src relative to pkgroot.
func (w *Watcher) distributionFor(src string) (string, bool) {
	rel, err := filepath.Rel(w.pkgroot, src)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	segments := strings.Split(rel, "/")
	if len(segments) == 0 || segments[0] == "" || segments[0] == "." || segments[0] == ".." {
		return "", false
	}
	return segments[0], true
}

func (w *Watcher) dispatchToHandlers(dist string) {
	w.mu.Lock()
	handlers := make([]Handler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.log.Error("handler panicked", "distribution", dist, "panic", r)
				}
			}()
			h(dist)
		}()
	}
}

// looksLikeArArchive performs a best-effort sniff of the ar magic and first
// entry header to avoid dispatching an event for a package upload that is
// still in flight. A file can still be truncated past the header; the
// authoritative failure signal remains dpkg-scanpackages's own exit status.
func looksLikeArArchive(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		// File may have already been removed/moved by the time we look;
		// don't block the event on that.
		return true
	}
	defer func() { _ = f.Close() }()

	_, err = ar.NewReader(f).Next()
	return err == nil
}
