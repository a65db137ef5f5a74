// Package watch reloads the model when its artifact files change on disk.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// DefaultDebounce collapses the encoder and classifier writes of one save
// into a single reload.
const DefaultDebounce = 250 * time.Millisecond

// ErrAlreadyRunning is returned by a second concurrent Run.
var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "artifact watcher already running")

// ReloadFunc is called once per settled burst of changes.
type ReloadFunc func(ctx context.Context) error

// Options configures an ArtifactWatcher.
type Options struct {
	Debounce time.Duration
}

// ArtifactWatcher watches one directory for writes to a fixed set of file
// names.  Temporary files and unrelated names are ignored.
type ArtifactWatcher struct {
	dir      string
	names    map[string]struct{}
	reload   ReloadFunc
	debounce time.Duration
	logger   logging.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	running bool
	reloads int
	once    sync.Once
}

// NewArtifactWatcher starts watching dir, creating it when absent.
func NewArtifactWatcher(dir string, names []string, reload ReloadFunc, opts Options, log logging.Logger) (*ArtifactWatcher, error) {
	if reload == nil {
		return nil, errors.New(errors.ErrCodeValidation, "reload function is required")
	}
	if len(names) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "at least one file name is required")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create model directory").WithDetail(dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create file watcher")
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to watch model directory").WithDetail(dir)
	}

	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[filepath.Base(n)] = struct{}{}
	}
	return &ArtifactWatcher{
		dir:      dir,
		names:    set,
		reload:   reload,
		debounce: opts.Debounce,
		logger:   log,
		watcher:  fw,
	}, nil
}

// Dir returns the watched directory.
func (w *ArtifactWatcher) Dir() string { return w.dir }

// Reloads returns how many reloads have been triggered.
func (w *ArtifactWatcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *ArtifactWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	_, ok := w.names[filepath.Base(ev.Name)]
	return ok
}

// Run processes events until ctx is done or the watcher is closed.
func (w *ArtifactWatcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	w.logger.Info("watching model directory", logging.String("dir", w.dir))

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending []string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			pending = append(pending, filepath.Base(ev.Name))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.fire(ctx, pending)
			pending = pending[:0]

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", logging.Err(err))
		}
	}
}

func (w *ArtifactWatcher) fire(ctx context.Context, files []string) {
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	w.logger.Info("model artifact changed", logging.Strings("files", dedup(files)))
	if err := w.reload(ctx); err != nil {
		w.logger.Warn("model reload failed", logging.Err(err))
	}
}

// Close stops the underlying watcher.  Run returns shortly after.
func (w *ArtifactWatcher) Close() error {
	var err error
	w.once.Do(func() { err = w.watcher.Close() })
	return err
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
