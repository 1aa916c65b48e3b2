package security

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// RootGoneCallback is invoked once when the workspace root disappears.
type RootGoneCallback func()

// WorkspaceWatcher monitors one workspace root: it refreshes the ignore
// snapshot when the ignore file changes, and signals when the root itself
// vanishes so the owning session can be failed closed.
type WorkspaceWatcher struct {
	watcher  *fsnotify.Watcher
	root     string
	ignore   *IgnoreSet
	extra    []string
	onGone   RootGoneCallback
	done     chan struct{}
	stopOnce sync.Once
	goneOnce sync.Once
}

// NewWorkspaceWatcher creates a watcher over the given root and ignore
// set. extra are configured patterns preserved across reloads.
func NewWorkspaceWatcher(root string, ignore *IgnoreSet, extra []string, onGone RootGoneCallback) (*WorkspaceWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &WorkspaceWatcher{
		watcher: fw,
		root:    root,
		ignore:  ignore,
		extra:   extra,
		onGone:  onGone,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *WorkspaceWatcher) Start() error {
	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("failed to watch workspace root: %w", err)
	}
	go w.eventLoop()
	log.Info().Str("root", w.root).Msg("Workspace watcher started")
	return nil
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *WorkspaceWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *WorkspaceWatcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("root", w.root).Msg("Workspace watcher error")
		}
	}
}

func (w *WorkspaceWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) == IgnoreFileName &&
		event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
		log.Info().Str("root", w.root).Msg("Ignore file changed, reloading patterns")
		w.ignore.Reload(w.extra)
		return
	}

	if event.Name == w.root && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.rootGone()
		return
	}
	// Some platforms report the removal of the watched directory only as
	// an error; double-check on any event burst.
	if _, err := os.Stat(w.root); os.IsNotExist(err) {
		w.rootGone()
	}
}

func (w *WorkspaceWatcher) rootGone() {
	w.goneOnce.Do(func() {
		log.Error().Str("root", w.root).Msg("Workspace root vanished")
		if w.onGone != nil {
			w.onGone()
		}
	})
}
