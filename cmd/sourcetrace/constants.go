package main

import "time"

// Default configuration constants for cmd/sourcetrace. Centralised here
// so the scan, watch, and browse subcommands all reference the same
// values.
const (
	// DefaultWorkers is the concurrency used for a directory scan when
	// --workers is not given.
	DefaultWorkers = 1

	// DefaultDebounce is the watcher's debounce delay when --debounce is
	// not given.
	DefaultDebounce = 2 * time.Second

	// DefaultBrowseLimit is the result count for a browse query when
	// --limit is not given.
	DefaultBrowseLimit = 20
)
