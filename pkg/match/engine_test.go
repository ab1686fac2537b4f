package match

import (
	"encoding/binary"
	"testing"

	"github.com/sourcetrace/sourcetrace/pkg/digest"
	"github.com/sourcetrace/sourcetrace/pkg/gateway"
)

func fpKey(fp uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, fp)
	return k
}

func digestFromByte(b byte) digest.Digest {
	var d digest.Digest
	for i := range d {
		d[i] = b
	}
	return d
}

// TestTierPrecedence_Component covers testable property 2: a digest
// present in COMPONENTS always reports match_type=component, regardless
// of any snippet hits that might otherwise be found.
func TestTierPrecedence_Component(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	d := digestFromByte(0xAA)
	rec := gateway.EncodeComponentRecord(gateway.ComponentRecord{Vendor: "acme", Component: "libfoo", Version: "1.2.3", URL: "https://x"})
	if err := gw.Put(gateway.TableComponents, d[:], rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ctx := NewScanContext()
	ctx.FileSize = 100
	ctx.SourceDigest = d
	ctx.Hashes = []digest.Hash{{Fingerprint: 1, Line: 1}}

	e := NewEngine(gw)
	winner, err := e.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ctx.Type != MatchComponent {
		t.Fatalf("expected MatchComponent, got %v", ctx.Type)
	}
	if winner != d {
		t.Fatalf("expected winner %v, got %v", d, winner)
	}
}

func TestTierPrecedence_File(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	d := digestFromByte(0xBB)
	compDigest := digestFromByte(0xCC)
	frec := gateway.EncodeFileRecord(gateway.FileRecord{ComponentDigest: compDigest, Path: "src/x.c"})
	if err := gw.Put(gateway.TableFiles, d[:], frec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ctx := NewScanContext()
	ctx.FileSize = 100
	ctx.SourceDigest = d

	e := NewEngine(gw)
	winner, err := e.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ctx.Type != MatchFile {
		t.Fatalf("expected MatchFile, got %v", ctx.Type)
	}
	if winner != d {
		t.Fatalf("expected winner %v, got %v", d, winner)
	}
}

// TestEmptyFileSuppression covers testable property 3.
func TestEmptyFileSuppression(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	rec := gateway.EncodeComponentRecord(gateway.ComponentRecord{Vendor: "v", Component: "c", Version: "1", URL: "u"})
	if err := gw.Put(gateway.TableComponents, digest.EmptyDigest[:], rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ctx := NewScanContext()
	ctx.FileSize = 0
	ctx.SourceDigest = digest.EmptyDigest

	e := NewEngine(gw)
	_, err := e.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ctx.Type == MatchComponent || ctx.Type == MatchFile {
		t.Fatalf("expected empty-file digest to never yield file/component, got %v", ctx.Type)
	}
}

func TestSnippetScan_BiggestSnippetWins(t *testing.T) {
	gw := gateway.NewMemoryGateway()

	winnerDigest := digestFromByte(0x01)
	loserDigest := digestFromByte(0x02)

	// Two fingerprints both hit winnerDigest (contiguous run), one hits loserDigest once.
	put := func(fp uint32, rec gateway.SnippetRecord) {
		if err := gw.Put(gateway.TableSnippets, fpKey(fp), gateway.EncodeSnippetRecord(rec)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	put(100, gateway.SnippetRecord{FileMD5: winnerDigest, FPIndex: 0, OSSLine: 10})
	put(101, gateway.SnippetRecord{FileMD5: winnerDigest, FPIndex: 1, OSSLine: 11})
	put(100, gateway.SnippetRecord{FileMD5: loserDigest, FPIndex: 0, OSSLine: 50})

	ctx := NewScanContext()
	ctx.FileSize = 100
	ctx.SourceDigest = digestFromByte(0xFF) // not present anywhere
	ctx.Hashes = []digest.Hash{{Fingerprint: digest.Fingerprint(100), Line: 5}, {Fingerprint: digest.Fingerprint(101), Line: 6}}
	ctx.TotalLines = 10

	e := NewEngine(gw)
	winner, err := e.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ctx.Type != MatchSnippet {
		t.Fatalf("expected MatchSnippet, got %v", ctx.Type)
	}
	if winner != winnerDigest {
		t.Fatalf("expected winner digest, got %v", winner)
	}

	lines, ossLines, hits := CompileRanges(ctx, winner)
	if hits != 2 {
		t.Fatalf("expected 2 hits, got %d", hits)
	}
	if lines != "5-6" {
		t.Fatalf("unexpected lines: %q", lines)
	}
	if ossLines != "10-11" {
		t.Fatalf("unexpected oss lines: %q", ossLines)
	}
}

func TestSnippetScan_NoHitsYieldsNone(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	ctx := NewScanContext()
	ctx.FileSize = 100
	ctx.Hashes = []digest.Hash{{Fingerprint: 1, Line: 1}}

	e := NewEngine(gw)
	_, err := e.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ctx.Type != MatchNone {
		t.Fatalf("expected MatchNone, got %v", ctx.Type)
	}
}

// TestRangeCompilationIdempotence covers testable property 4.
func TestRangeCompilationIdempotence(t *testing.T) {
	ctx := NewScanContext()
	ctx.Hashes = []digest.Hash{{Line: 10}, {Line: 11}, {Line: 12}}
	d := digestFromByte(0x09)
	ctx.Matchmap[d] = &MatchMapEntry{MD5: d, Hits: 3, Ranges: []RangeRecord{{FromFP: 0, ToFP: 2, OSSLine: 100}}}

	l1, o1, h1 := CompileRanges(ctx, d)
	l2, o2, h2 := CompileRanges(ctx, d)
	if l1 != l2 || o1 != o2 || h1 != h2 {
		t.Fatalf("expected idempotent compilation, got (%q,%q,%d) vs (%q,%q,%d)", l1, o1, h1, l2, o2, h2)
	}
}
