// Package watcher turns filesystem notifications under the content root
// into debounced change batches.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/conneroisu/quire/internal/content"
	"github.com/conneroisu/quire/internal/errors"
	"github.com/conneroisu/quire/internal/logging"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 100 * time.Millisecond

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a root-relative, slash-separated path is
// interesting. All filters must accept a path for its event to count.
type FileFilter func(rel string) bool

// ChangeHandler receives one debounced batch.
type ChangeHandler func(events []ChangeEvent) error

// Health describes whether notifications are still flowing.
type Health struct {
	Degraded bool
	Err      error
}

// FileWatcher watches a content root recursively.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	root      string
	debouncer *Debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	ignorer   atomic.Pointer[content.Ignorer]
	ignores   []string
	logger    logging.Logger
	errs      *errors.ErrorHandler

	stopping   atomic.Bool
	degraded   chan struct{}
	degradeErr atomic.Pointer[errors.QuireError]
	once       sync.Once
	mutex      sync.RWMutex
}

// NewFileWatcher creates a watcher for root. The ignore patterns are the
// configured ones; the root's ignore file is added to them and re-read
// whenever it changes.
func NewFileWatcher(root string, debounceDelay time.Duration, ignore []string, logger logging.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if debounceDelay <= 0 {
		debounceDelay = DefaultDebounce
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.RootUnreadable(root, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "creating fsnotify watcher", err)
	}

	logger = logger.WithComponent("watcher")
	fw := &FileWatcher{
		watcher:   watcher,
		root:      abs,
		debouncer: NewDebouncer(debounceDelay),
		ignores:   append([]string(nil), ignore...),
		logger:    logger,
		errs:      errors.NewErrorHandler(logger),
		degraded:  make(chan struct{}),
	}
	fw.reloadIgnores()
	fw.filters = []FileFilter{fw.ignoreFilter}

	return fw, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddRecursive watches dir and every non-ignored directory below it.
func (fw *FileWatcher) AddRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			fw.logger.Warn(context.Background(), err, "Skipping unreadable directory", "path", path)

			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if rel := fw.rel(path); rel != "." && fw.currentIgnorer().Match(rel) {
			return filepath.SkipDir
		}

		return fw.watcher.Add(path)
	})
}

// Start watches the root and begins delivering batches. It returns once
// the initial directory set is registered.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.AddRecursive(fw.root); err != nil {
		return errors.RootUnreadable(fw.root, err)
	}

	go fw.debouncer.Run(ctx)
	go fw.processEvents(ctx)
	go fw.watchLoop(ctx)

	fw.logger.Info(ctx, "Watching content root", "root", fw.root, "debounce", fw.debouncer.delay)

	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	fw.stopping.Store(true)
	fw.debouncer.Stop()

	return fw.watcher.Close()
}

// Degraded is closed once notifications stop arriving for any reason
// other than Stop.
func (fw *FileWatcher) Degraded() <-chan struct{} {
	return fw.degraded
}

// Health reports the watcher's current state.
func (fw *FileWatcher) Health() Health {
	select {
	case <-fw.degraded:
		h := Health{Degraded: true}
		if err := fw.degradeErr.Load(); err != nil {
			h.Err = err
		}

		return h
	default:
		return Health{}
	}
}

func (fw *FileWatcher) markDegraded(ctx context.Context, cause error) {
	if fw.stopping.Load() || ctx.Err() != nil {
		return
	}
	fw.once.Do(func() {
		err := errors.WatchChannelClosed(cause).WithComponent("watcher")
		fw.degradeErr.Store(err)
		close(fw.degraded)
		fw.errs.Handle(ctx, err)
	})
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				fw.markDegraded(ctx, nil)

				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				fw.markDegraded(ctx, nil)

				return
			}
			fw.errs.Handle(ctx, errors.NewIOError(errors.ErrCodeInternalError, "watch error", err).
				WithComponent("watcher"))
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	rel := fw.rel(event.Name)
	if rel == content.IgnoreFileName {
		fw.reloadIgnores()
	}

	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(rel) {
			return
		}
	}

	info, err := os.Stat(event.Name)
	var modTime time.Time
	var size int64

	if err == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
		if err == nil && info.IsDir() {
			if addErr := fw.AddRecursive(event.Name); addErr != nil {
				fw.logger.Warn(ctx, addErr, "Failed to watch new directory", "path", rel)
			}
		}
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	case event.Op&fsnotify.Chmod == fsnotify.Chmod:
		return
	default:
		eventType = EventTypeModified
	}

	fw.debouncer.Add(ChangeEvent{
		Type:    eventType,
		Path:    rel,
		ModTime: modTime,
		Size:    size,
	})
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events, ok := <-fw.debouncer.Output():
			if !ok {
				return
			}
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			fw.logger.Debug(ctx, "Change batch", "events", len(events))
			for _, handler := range handlers {
				if err := handler(events); err != nil {
					fw.logger.Error(ctx, err, "File watcher handler error")
				}
			}
		}
	}
}

func (fw *FileWatcher) rel(path string) string {
	rel, err := filepath.Rel(fw.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}

	return filepath.ToSlash(rel)
}

func (fw *FileWatcher) currentIgnorer() *content.Ignorer {
	return fw.ignorer.Load()
}

func (fw *FileWatcher) reloadIgnores() {
	ig, err := content.LoadIgnorer(afero.NewOsFs(), content.ContentRoot{Path: fw.root, Ignore: fw.ignores})
	if err != nil {
		fw.logger.Warn(context.Background(), err, "Reading ignore file failed")
	}
	fw.ignorer.Store(ig)
}

// ignoreFilter drops hidden paths, editor temp files and ignored paths.
// The root ignore file itself always passes so edits to it trigger a reload.
func (fw *FileWatcher) ignoreFilter(rel string) bool {
	if rel == content.IgnoreFileName {
		return true
	}
	if strings.HasPrefix(rel, "../") {
		return false
	}

	return !fw.currentIgnorer().Match(rel)
}

// ExtensionFilter accepts paths with one of exts, plus extensionless paths,
// which may be directories.
func ExtensionFilter(exts ...string) FileFilter {
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}

	return func(rel string) bool {
		if rel == content.IgnoreFileName {
			return true
		}
		ext := strings.ToLower(filepath.Ext(rel))

		return ext == "" || allowed[ext]
	}
}
