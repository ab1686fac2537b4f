// Package scan implements the top-level Scan Driver (spec §4.5): the
// per-target reset/digest/match/compile/emit loop, WFP manifest handling,
// and the ambient concerns (config, watch mode, CLI reporting) that a
// complete tool built around the core needs.
package scan

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sourcetrace/sourcetrace/pkg/digest"
	"github.com/sourcetrace/sourcetrace/pkg/gateway"
	"github.com/sourcetrace/sourcetrace/pkg/match"
	"github.com/sourcetrace/sourcetrace/pkg/policy"
	"github.com/sourcetrace/sourcetrace/pkg/serializer"
	"github.com/sourcetrace/sourcetrace/pkg/wfp"
)

var driverLog = log.New(os.Stderr, "[sourcetrace:scan] ", log.Ltime)

// Driver runs the per-target state machine described in spec §4.5:
// INIT -> DIGEST -> (COMPONENT_HIT | FILE_HIT | SNIPPET_SCAN) -> COMPILE
// -> OUTPUT -> RESET.
type Driver struct {
	Config   Config
	Policy   *policy.Policy
	Engine   *match.Engine
	Compiler *match.Compiler
	ctx      *match.ScanContext
}

// NewDriver builds a Scan Driver over gw, configured by cfg. The
// SBOM/blacklist policy is constructed once here and never rebuilt —
// spec §5 treats both strings as read-only globals for the driver's
// lifetime.
func NewDriver(gw gateway.Gateway, cfg Config) *Driver {
	pol := policy.New(cfg.Blacklist, cfg.SBOM)
	return &Driver{
		Config:   cfg,
		Policy:   pol,
		Engine:   match.NewEngine(gw),
		Compiler: match.NewCompiler(gw, pol, cfg.ScanLimit),
		ctx:      match.NewScanContext(),
	}
}

// Result is one target's serializer-ready output.
type Result struct {
	Path string
	Rec  serializer.Record
}

// ScanFile runs the full per-target pipeline for a single physical
// source file (spec §4.5 steps 1-7). A target that can't be read is
// reported via TargetUnreadable policy: skipped, not fatal.
func (d *Driver) ScanFile(path string) (Result, error) {
	d.ctx.Reset()
	d.ctx.FilePath = path

	info, err := os.Stat(path)
	if err != nil {
		driverLog.Printf("stat %s: %v", path, err)
		return Result{}, fmt.Errorf("scan: %s: %w", path, digest.ErrUnreadable)
	}
	d.ctx.FileSize = info.Size()

	dg, err := digest.FileDigest(path)
	if err != nil {
		return Result{}, fmt.Errorf("scan: %s: %w", path, err)
	}
	d.ctx.SourceDigest = dg

	// Early skip (spec §4.5 step 3): a ≤1-byte file or a blacklisted
	// extension never reaches the Match Engine, but its digest is still
	// reported.
	if d.ctx.FileSize <= 1 || d.Policy.ExtensionBlacklisted(path) {
		return d.emitNone(path, dg)
	}

	// Whole-file tiers first, winnowing only on a miss (original scan
	// engine's ldb_scan order): a component/file hit never pays for a
	// winnow pass whose hashes it would have ignored anyway.
	winner, hit, err := d.Engine.ResolveWholeFile(d.ctx)
	if err != nil {
		return Result{}, fmt.Errorf("scan: %s: match engine: %w", path, err)
	}

	if !hit {
		// Files above MaxFileSize (when set) are not read for winnowing.
		withinSize := d.Config.MaxFileSize <= 0 || d.ctx.FileSize <= d.Config.MaxFileSize
		if !dg.IsEmpty() && withinSize {
			buf, err := os.ReadFile(path)
			if err != nil {
				return Result{}, fmt.Errorf("scan: %s: %w", path, digest.ErrUnreadable)
			}
			if !digest.Skip(buf) {
				hashes := digest.Winnow(buf)
				if len(hashes) > d.Config.MaxHashesRead && d.Config.MaxHashesRead > 0 {
					hashes = hashes[:d.Config.MaxHashesRead]
				}
				d.ctx.Hashes = hashes
				if n := len(hashes); n > 0 {
					d.ctx.TotalLines = hashes[n-1].Line
				}
			}
		}

		winner, err = d.Engine.ResolveSnippet(d.ctx)
		if err != nil {
			return Result{}, fmt.Errorf("scan: %s: match engine: %w", path, err)
		}
	}

	return d.compile(path, dg, winner)
}

func (d *Driver) emitNone(path string, dg digest.Digest) (Result, error) {
	set := &match.MatchSet{Type: match.MatchNone}
	rec := serializer.FromMatchSet(path, dg.String(), set)
	return Result{Path: path, Rec: rec}, nil
}

func (d *Driver) compile(path string, dg digest.Digest, winner digest.Digest) (Result, error) {
	set, err := d.Compiler.Compile(d.ctx, winner)
	if err != nil {
		return Result{}, fmt.Errorf("scan: %s: match compiler: %w", path, err)
	}

	rec := serializer.FromMatchSet(path, dg.String(), set)
	return Result{Path: path, Rec: rec}, nil
}

// ScanWFP parses a WFP manifest and runs the driver over each of its file
// blocks, per spec §4.5: "each new file= or component= header triggers a
// scan of the preceding accumulated block". The manifest's own digest
// becomes the cache-attribution identity for the batch, distinct from
// each file block's digest.
func (d *Driver) ScanWFP(path string) ([]Result, digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, digest.Digest{}, fmt.Errorf("scan: %s: %w", path, digest.ErrUnreadable)
	}
	defer f.Close()

	m, perr := wfp.Parse(f)
	if perr != nil && len(m.Files) == 0 {
		return nil, digest.Digest{}, fmt.Errorf("scan: %s: %w", path, perr)
	}
	if perr != nil {
		driverLog.Printf("%s: manifest malformed after %d blocks: %v", path, len(m.Files), perr)
	}

	manifestDigest := m.Digest()

	results := make([]Result, 0, len(m.Files))
	for _, fb := range m.Files {
		d.ctx.Reset()
		d.ctx.FilePath = fb.Path
		d.ctx.FileSize = fb.Size
		d.ctx.SourceDigest = fb.MD5
		d.ctx.Hashes = fb.Hashes
		d.ctx.TotalLines = fb.TotalLines

		winner, err := d.Engine.Resolve(d.ctx)
		if err != nil {
			driverLog.Printf("%s: %v", fb.Path, err)
			continue
		}

		res, err := d.compile(fb.Path, fb.MD5, winner)
		if err != nil {
			driverLog.Printf("%s: %v", fb.Path, err)
			continue
		}
		results = append(results, res)
	}

	return results, manifestDigest, nil
}

// ScanDirectory walks root and runs the per-target pipeline over every
// regular file found, fanning out across workers private Drivers so no
// two goroutines ever touch the same ScanContext — the same
// one-context-per-worker discipline match.Engine.ScanDirectory applies
// at the Match Engine layer, repeated here at the Driver layer since a
// Driver also owns a Compiler and Policy that a bare Engine call would
// bypass. WFP manifests encountered under root are expanded via ScanWFP
// rather than scanned as opaque files.
func (d *Driver) ScanDirectory(root string, workers int) ([]Result, error) {
	if workers < 1 {
		workers = 1
	}

	paths := make(chan string)
	g := new(errgroup.Group)

	g.Go(func() error {
		defer close(paths)
		return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				driverLog.Printf("walk %s: %v", path, err)
				return nil
			}
			if info.IsDir() {
				return nil
			}
			paths <- path
			return nil
		})
	})

	var mu sync.Mutex
	var results []Result

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			worker := &Driver{
				Config: d.Config,
				Policy: d.Policy,
				Engine: d.Engine,
				Compiler: &match.Compiler{
					GW:                 d.Compiler.GW,
					Policy:             d.Policy,
					ScanLimit:          d.Compiler.ScanLimit,
					ExtensionMatchMode: d.Compiler.ExtensionMatchMode,
				},
				ctx: match.NewScanContext(),
			}

			for path := range paths {
				var res Result
				var err error
				if IsWFP(path) {
					var wfpResults []Result
					wfpResults, _, err = worker.ScanWFP(path)
					if err == nil {
						mu.Lock()
						results = append(results, wfpResults...)
						mu.Unlock()
					}
				} else {
					res, err = worker.ScanFile(path)
					if err == nil {
						mu.Lock()
						results = append(results, res)
						mu.Unlock()
					}
				}
				if err != nil {
					driverLog.Printf("scan %s: %v", path, err)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// IsWFP reports whether path names a WFP manifest by its extension (spec
// §4.5).
func IsWFP(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wfp")
}

// Timed runs fn and logs its duration at debug granularity, mirroring the
// teacher's per-stage timing convention.
func Timed(label string, fn func() error) error {
	start := time.Now()
	err := fn()
	driverLog.Printf("%s took %s", label, time.Since(start))
	return err
}
