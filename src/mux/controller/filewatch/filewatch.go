// Package filewatch subscribes to Ruby source changes under session roots so
// that Sorbet sessions launched without watchman still learn about edits made
// outside the editor.
package filewatch

import (
	"context"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rubydx/sorbet-mux/src/mux/internal/clock"
	tally "github.com/uber-go/tally/v4"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const _configKeyDebounce = "watcher.debounceMs"

const _defaultDebounce = 100 * time.Millisecond

// ChangeFunc receives a debounced batch of file changes under a watched root.
type ChangeFunc func(ctx context.Context, changes []*protocol.FileEvent)

// Watcher reports Ruby source changes beneath watched directories.
type Watcher interface {
	// Watch begins watching the directory tree rooted at dir and forwards
	// batches of matching changes to onChange until the returned stop
	// function is called.
	Watch(ctx context.Context, dir string, onChange ChangeFunc) (func() error, error)
}

// Params are the parameters required to create a new Watcher.
type Params struct {
	fx.In

	Config config.Provider
	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

type controller struct {
	logger   *zap.SugaredLogger
	clock    clock.Clock
	stats    tally.Scope
	debounce time.Duration
}

// New creates a new Watcher.
func New(p Params) (Watcher, error) {
	debounceMs := 0
	if err := p.Config.Get(_configKeyDebounce).Populate(&debounceMs); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKeyDebounce, err)
	}

	debounce := _defaultDebounce
	if debounceMs > 0 {
		debounce = time.Duration(debounceMs) * time.Millisecond
	}

	return &controller{
		logger:   p.Logger,
		clock:    clock.New(),
		stats:    p.Stats,
		debounce: debounce,
	}, nil
}

func (c *controller) Watch(ctx context.Context, dir string, onChange ChangeFunc) (func() error, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &watch{
		fsWatcher: fsWatcher,
		logger:    c.logger,
		clock:     c.clock,
		stats:     c.stats,
		debounce:  c.debounce,
		onChange:  onChange,
	}
	if err := w.addRecursive(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	// The loop outlives the request that started the session, so it runs
	// detached and ends only via stop.
	loopCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	group, groupCtx := errgroup.WithContext(loopCtx)
	w.group = group
	group.Go(func() error {
		w.run(groupCtx)
		return nil
	})

	c.logger.Infow("watching for file changes", "dir", dir)
	return w.stop, nil
}

// watch is the state for a single watched root.
type watch struct {
	fsWatcher *fsnotify.Watcher
	logger    *zap.SugaredLogger
	clock     clock.Clock
	stats     tally.Scope
	debounce  time.Duration
	onChange  ChangeFunc
	group     *errgroup.Group
	cancel    context.CancelFunc
}

func (w *watch) run(ctx context.Context) {
	pending := make(map[uri.URI]protocol.FileChangeType)
	var flush <-chan time.Time

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if w.handleEvent(event, pending) {
				flush = w.clock.After(w.debounce)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("file watcher failure", "error", err)
		case <-flush:
			changes := drainPending(pending)
			w.stats.Counter("watch_events").Inc(int64(len(changes)))
			w.onChange(ctx, changes)
			flush = nil
		case <-ctx.Done():
			return
		}
	}
}

// handleEvent folds one raw event into the pending batch, watching any new
// directories it reveals. It reports whether the batch grew.
func (w *watch) handleEvent(event fsnotify.Event, pending map[uri.URI]protocol.FileChangeType) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warnw("failed to watch new directory", "path", event.Name, "error", err)
			}
			return false
		}
	}

	if !isWatchedFile(event.Name) {
		return false
	}
	changeType, ok := eventChangeType(event)
	if !ok {
		return false
	}

	fileURI := uri.File(event.Name)
	pending[fileURI] = mergeChangeType(pending[fileURI], changeType)
	return true
}

// mergeChangeType folds a new change into the pending one for the same file.
// A write that lands right after a create is still a create from the point of
// view of anyone who has not seen the file yet.
func mergeChangeType(existing, next protocol.FileChangeType) protocol.FileChangeType {
	if existing == protocol.FileChangeTypeCreated && next == protocol.FileChangeTypeChanged {
		return existing
	}
	return next
}

// addRecursive watches dir and every non-hidden directory below it.
// Unreadable subtrees are skipped rather than failing the whole watch.
func (w *watch) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Debugw("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			w.logger.Warnw("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// stop ends the watch and waits for the loop to drain.
func (w *watch) stop() error {
	w.cancel()
	err := w.fsWatcher.Close()
	return multierr.Append(err, w.group.Wait())
}

func drainPending(pending map[uri.URI]protocol.FileChangeType) []*protocol.FileEvent {
	changes := make([]*protocol.FileEvent, 0, len(pending))
	for fileURI, changeType := range pending {
		changes = append(changes, &protocol.FileEvent{URI: fileURI, Type: changeType})
		delete(pending, fileURI)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].URI < changes[j].URI })
	return changes
}

// isWatchedFile reports whether the path is one Sorbet cares about.
func isWatchedFile(name string) bool {
	switch filepath.Ext(name) {
	case ".rb", ".gemspec":
		return true
	}
	return filepath.Base(name) == "Gemfile"
}

func eventChangeType(event fsnotify.Event) (protocol.FileChangeType, bool) {
	switch {
	case event.Has(fsnotify.Create):
		return protocol.FileChangeTypeCreated, true
	case event.Has(fsnotify.Write):
		return protocol.FileChangeTypeChanged, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return protocol.FileChangeTypeDeleted, true
	}
	return 0, false
}
