package scan

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var watchLog = log.New(os.Stderr, "[sourcetrace:watch] ", log.Ltime)

// DefaultDebounceDelay is how long the watcher waits after the last
// observed change before re-running the driver, so a burst of saves from
// an editor collapses into a single rescan.
const DefaultDebounceDelay = 2 * time.Second

// defaultSkipDirs are directories never worth walking into for rescans:
// VCS internals, dependency caches, and build output across the
// ecosystems a provenance scan is likely to encounter.
var defaultSkipDirs = map[string]bool{
	".git": true, ".svn": true, ".hg": true,
	".sourcetrace": true,

	"node_modules": true,
	"dist":         true,
	".next":        true,
	".nuxt":        true,
	"coverage":     true,
	".cache":       true,

	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	".tox":          true,
	".mypy_cache":   true,
	".pytest_cache": true,
	"site-packages": true,

	"vendor": true,
	"target": true,

	"build":   true,
	".gradle": true,

	".idea":   true,
	".vscode": true,

	".DS_Store": true,
}

// WatchConfig configures a Watcher.
type WatchConfig struct {
	Paths         []string
	DebounceDelay time.Duration
	SkipDirs      []string
}

// Watcher re-runs the Scan Driver over changed files under a set of
// roots, debouncing bursts of filesystem events into a single rescan
// pass — the provenance-scanning analogue of watching a build directory
// for incremental recompiles.
type Watcher struct {
	driver *Driver
	fs     *fsnotify.Watcher
	config WatchConfig

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu           sync.Mutex
	pending      map[string]fsnotify.Op
	debounceOnce sync.Once

	// OnResults, if set, is invoked once per debounced rescan with every
	// Result produced for the changed files in that batch.
	OnResults func(results []Result)
}

// NewWatcher builds a Watcher that reruns driver against changed files.
func NewWatcher(driver *Driver, config WatchConfig) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if config.DebounceDelay == 0 {
		config.DebounceDelay = DefaultDebounceDelay
	}
	return &Watcher{
		driver:  driver,
		fs:      fsWatcher,
		config:  config,
		stop:    make(chan struct{}),
		pending: make(map[string]fsnotify.Op),
	}, nil
}

// Start begins watching the configured paths (or the working directory
// if none were given) and rescanning changed files as they settle.
func (w *Watcher) Start() error {
	paths := w.config.Paths
	if len(paths) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		paths = []string{cwd}
	}

	skip := make(map[string]bool, len(defaultSkipDirs)+len(w.config.SkipDirs))
	for k, v := range defaultSkipDirs {
		skip[k] = v
	}
	for _, d := range w.config.SkipDirs {
		skip[d] = true
	}

	dirsWatched := 0
	for _, root := range paths {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if !info.IsDir() {
				return nil
			}
			name := info.Name()
			if skip[name] || (len(name) > 1 && name[0] == '.') {
				return filepath.SkipDir
			}
			if err := w.fs.Add(path); err == nil {
				dirsWatched++
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	w.wg.Add(1)
	go w.processEvents()

	watchLog.Printf("watching %d directories in %v (debounce: %v)", dirsWatched, paths, w.config.DebounceDelay)
	return nil
}

// Stop halts the watcher and releases its fsnotify handle.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
	return w.fs.Close()
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}

			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
				strings.HasSuffix(name, ".swp") || strings.HasSuffix(name, ".tmp") {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.queueChange(event.Name, event.Op)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			watchLog.Printf("error: %v", err)
		}
	}
}

func (w *Watcher) queueChange(path string, op fsnotify.Op) {
	w.mu.Lock()
	w.pending[path] = op
	w.debounceOnce.Do(func() {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			select {
			case <-time.After(w.config.DebounceDelay):
				w.flushPending()
			case <-w.stop:
				return
			}
		}()
	})
	w.mu.Unlock()
}

func (w *Watcher) flushPending() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.debounceOnce = sync.Once{}
	w.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	watchLog.Printf("rescanning %d changed files", len(pending))

	results := make([]Result, 0, len(pending))
	for path := range pending {
		if IsWFP(path) {
			wfpResults, _, err := w.driver.ScanWFP(path)
			if err != nil {
				watchLog.Printf("%s: %v", path, err)
				continue
			}
			results = append(results, wfpResults...)
			continue
		}
		res, err := w.driver.ScanFile(path)
		if err != nil {
			watchLog.Printf("%s: %v", path, err)
			continue
		}
		results = append(results, res)
	}

	if w.OnResults != nil {
		w.OnResults(results)
	}
}
