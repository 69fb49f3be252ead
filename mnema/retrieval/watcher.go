package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	ignore "github.com/sabhiram/go-gitignore"
)

const ignoreFileName = ".mnemaignore"

// Watcher indexes files dropped into the attach directory and removes
// documents whose files disappear. Ignore rules come from a .mnemaignore
// file in gitignore syntax at the directory root. The watcher runs off the
// interactive path; its errors are logged and never fatal.
type Watcher struct {
	dir     string
	indexer *Indexer
	logger  zerolog.Logger
	fsw     *fsnotify.Watcher
	ignorer *ignore.GitIgnore
	mu      sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher over dir. Start must be called to begin
// watching.
func NewWatcher(dir string, indexer *Indexer, logger zerolog.Logger) *Watcher {
	return &Watcher{
		dir:     dir,
		indexer: indexer,
		logger:  logger.With().Str("component", "watcher").Str("dir", dir).Logger(),
		done:    make(chan struct{}),
	}
}

// Start indexes existing files and begins watching for changes.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	w.loadIgnoreRules()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}

	// Pick up whatever is already in the directory
	entries, err := os.ReadDir(w.dir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			w.handleCreate(ctx, filepath.Join(w.dir, entry.Name()))
		}
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop ends the watch loop.
func (w *Watcher) Stop() {
	close(w.done)
	if w.fsw != nil {
		w.fsw.Close()
	}
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	// Editors fire bursts of writes for one save; debounce per path.
	pending := make(map[string]*time.Timer)
	var pendingMu sync.Mutex

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			path := event.Name
			switch {
			case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
				pendingMu.Lock()
				if t, exists := pending[path]; exists {
					t.Stop()
				}
				pending[path] = time.AfterFunc(200*time.Millisecond, func() {
					pendingMu.Lock()
					delete(pending, path)
					pendingMu.Unlock()
					w.handleCreate(ctx, path)
				})
				pendingMu.Unlock()
			case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
				w.handleRemove(ctx, path)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) handleCreate(ctx context.Context, path string) {
	name := filepath.Base(path)
	if name == ignoreFileName {
		w.loadIgnoreRules()
		return
	}
	if w.ignored(name) {
		w.logger.Debug().Str("file", name).Msg("ignored by rules")
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	// Re-adding a changed file replaces its previous documents
	if err := w.indexer.RemoveBySource(ctx, path); err != nil {
		w.logger.Warn().Err(err).Str("file", name).Msg("failed to drop stale documents")
	}
	if _, err := w.indexer.IndexDocument(ctx, path, 1.0); err != nil {
		w.logger.Warn().Err(err).Str("file", name).Msg("failed to index dropped file")
		return
	}
}

func (w *Watcher) handleRemove(ctx context.Context, path string) {
	if w.ignored(filepath.Base(path)) {
		return
	}
	if err := w.indexer.RemoveBySource(ctx, path); err != nil {
		w.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("failed to remove documents")
	}
}

func (w *Watcher) ignored(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ignorer != nil && w.ignorer.MatchesPath(name)
}

func (w *Watcher) loadIgnoreRules() {
	ign, err := ignore.CompileIgnoreFile(filepath.Join(w.dir, ignoreFileName))
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn().Err(err).Msg("failed to load ignore rules")
		}
		ign = nil
	}
	w.mu.Lock()
	w.ignorer = ign
	w.mu.Unlock()
}
