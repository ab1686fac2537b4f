package match

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sourcetrace/sourcetrace/pkg/digest"
	"github.com/sourcetrace/sourcetrace/pkg/gateway"
)

var engineLog = log.New(os.Stderr, "[sourcetrace:match] ", log.Ltime)

// Engine orchestrates the three-tier lookup — component, file, snippet —
// and maintains the per-scan matchmap for snippet accumulation (spec
// §4.3).
type Engine struct {
	GW gateway.Gateway
}

// NewEngine builds a Match Engine over gw.
func NewEngine(gw gateway.Gateway) *Engine {
	return &Engine{GW: gw}
}

// Resolve runs the three-tier lookup against ctx, which must already have
// SourceDigest, FileSize and (if a whole-file hit is not found) Hashes
// populated. It sets ctx.Type and returns the digest whose metadata the
// Match Compiler should hydrate; for MatchNone the returned digest is the
// zero value.
//
// Callers that can cheaply defer winnowing until it's actually needed
// (the Scan Driver, which would otherwise winnow a file that turns out
// to be a whole-file hit) should call ResolveWholeFile first and only
// populate ctx.Hashes before calling ResolveSnippet on a miss, the same
// order the original scan engine's ldb_scan follows.
func (e *Engine) Resolve(ctx *ScanContext) (digest.Digest, error) {
	dg, ok, err := e.ResolveWholeFile(ctx)
	if err != nil {
		return digest.Digest{}, err
	}
	if ok {
		return dg, nil
	}
	return e.ResolveSnippet(ctx)
}

// ResolveWholeFile runs just the component/file tiers of the three-tier
// lookup (spec §4.3 steps 1-2). It reports ok=false, leaving ctx.Type
// untouched, when neither tier hits — the caller must then populate
// ctx.Hashes and call ResolveSnippet.
func (e *Engine) ResolveWholeFile(ctx *ScanContext) (digest.Digest, bool, error) {
	wholeFileEligible := ctx.FileSize > 1 && !ctx.SourceDigest.IsEmpty()
	if !wholeFileEligible {
		return digest.Digest{}, false, nil
	}

	ok, err := e.GW.Exists(gateway.TableComponents, ctx.SourceDigest[:])
	if err != nil {
		return digest.Digest{}, false, err
	}
	if ok {
		ctx.Type = MatchComponent
		return ctx.SourceDigest, true, nil
	}

	ok, err = e.GW.Exists(gateway.TableFiles, ctx.SourceDigest[:])
	if err != nil {
		return digest.Digest{}, false, err
	}
	if ok {
		ctx.Type = MatchFile
		return ctx.SourceDigest, true, nil
	}

	return digest.Digest{}, false, nil
}

// ResolveSnippet implements the matchmap sweep and biggest-snippet
// selection (spec §4.3 step 3), consulting ctx.Hashes. Callers reach this
// only after ResolveWholeFile reports no whole-file hit.
func (e *Engine) ResolveSnippet(ctx *ScanContext) (digest.Digest, error) {
	for i, h := range ctx.Hashes {
		key := make([]byte, 4)
		binary.BigEndian.PutUint32(key, uint32(h.Fingerprint))

		_, err := e.GW.Fetch(gateway.TableSnippets, key, func(subkey, value []byte, iteration int) bool {
			rec, derr := gateway.DecodeSnippetRecord(value)
			if derr != nil {
				return false // RecordOversize/malformed: skip, continue iteration (spec §7).
			}
			e.upsert(ctx, rec, i, uint32(h.Line))
			return false
		})
		if err != nil {
			return digest.Digest{}, err
		}
	}

	winner, hits := selectBiggestSnippet(ctx.Matchmap)
	if hits == 0 {
		ctx.Type = MatchNone
		return digest.Digest{}, nil
	}
	ctx.Type = MatchSnippet
	return winner, nil
}

// upsert folds one SNIPPETS row into the matchmap entry for rec.FileMD5,
// extending the current run if fpIndex is contiguous with the entry's
// last recorded run, or starting a new run otherwise (spec §4.3).
func (e *Engine) upsert(ctx *ScanContext, rec gateway.SnippetRecord, fpIndex int, line uint32) {
	entry := ctx.Matchmap[rec.FileMD5]
	if entry == nil {
		entry = &MatchMapEntry{MD5: rec.FileMD5}
		ctx.Matchmap[rec.FileMD5] = entry
	}

	entry.Hits++
	entry.LastLine = line

	if n := len(entry.Ranges); n > 0 && int(entry.Ranges[n-1].ToFP)+1 == fpIndex {
		entry.Ranges[n-1].ToFP = uint16(fpIndex)
	} else {
		entry.Ranges = append(entry.Ranges, RangeRecord{
			FromFP:  uint16(fpIndex),
			ToFP:    uint16(fpIndex),
			OSSLine: rec.OSSLine,
		})
	}
}

// selectBiggestSnippet picks the matchmap entry with the most hits,
// tie-breaking by lowest file_md5 lexicographically, then earliest
// lastLine (spec §4.3, glossary "biggest snippet"). Returns a zero digest
// and zero hits if the matchmap is empty.
func selectBiggestSnippet(matchmap map[digest.Digest]*MatchMapEntry) (digest.Digest, uint16) {
	var winner *MatchMapEntry
	for _, entry := range matchmap {
		if winner == nil {
			winner = entry
			continue
		}
		if entry.Hits > winner.Hits {
			winner = entry
			continue
		}
		if entry.Hits < winner.Hits {
			continue
		}
		cmp := bytes.Compare(entry.MD5[:], winner.MD5[:])
		if cmp < 0 {
			winner = entry
			continue
		}
		if cmp == 0 && entry.LastLine < winner.LastLine {
			winner = entry
		}
	}
	if winner == nil {
		return digest.Digest{}, 0
	}
	return winner.MD5, winner.Hits
}

// CompileRanges merges the winning matchmap entry's RangeRecords into two
// parallel comma-separated range texts — source lines and OSS lines —
// translating fingerprint indices back to source line numbers via
// ctx.Hashes (spec §4.3). It returns the sum of matched lines across
// ranges, which feeds matched_percent. Calling it twice on the same
// ScanContext and winner produces identical output (testable property 4).
func CompileRanges(ctx *ScanContext, winner digest.Digest) (lines string, ossLines string, hits int) {
	entry := ctx.Matchmap[winner]
	if entry == nil {
		return "", "", 0
	}

	var lineParts, ossParts []string
	for _, r := range entry.Ranges {
		fromLine := ctx.Hashes[r.FromFP].Line
		toLine := ctx.Hashes[r.ToFP].Line
		lineParts = append(lineParts, formatRange(fromLine, toLine))

		span := int(r.ToFP - r.FromFP)
		ossFrom := int(r.OSSLine)
		ossTo := ossFrom + span
		ossParts = append(ossParts, formatRange(ossFrom, ossTo))

		hits += span + 1
	}

	return strings.Join(lineParts, ","), strings.Join(ossParts, ","), hits
}

func formatRange(from, to int) string {
	if from == to {
		return fmt.Sprintf("%d", from)
	}
	return fmt.Sprintf("%d-%d", from, to)
}

// ScanDirectory fans target resolution out across a bounded worker pool,
// each worker owning a private ScanContext (spec §5's concurrency note:
// "if an implementation adds per-target parallelism, each worker owns a
// private ScanContext; the SBOM/blacklist remain shared-read"). scanOne is
// called once per discovered regular file under root.
func (e *Engine) ScanDirectory(root string, workers int, scanOne func(path string, ctx *ScanContext) error) error {
	if workers < 1 {
		workers = 1
	}

	paths := make(chan string)
	g := new(errgroup.Group)

	g.Go(func() error {
		defer close(paths)
		return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				engineLog.Printf("walk %s: %v", path, err)
				return nil
			}
			if info.IsDir() {
				return nil
			}
			paths <- path
			return nil
		})
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			ctx := NewScanContext()
			for path := range paths {
				ctx.Reset()
				if err := scanOne(path, ctx); err != nil {
					engineLog.Printf("scan %s: %v", path, err)
				}
			}
			return nil
		})
	}

	return g.Wait()
}
