package match

import (
	"testing"

	"github.com/sourcetrace/sourcetrace/pkg/digest"
	"github.com/sourcetrace/sourcetrace/pkg/gateway"
	"github.com/sourcetrace/sourcetrace/pkg/policy"
)

// TestS1_EmptyFile covers scenario S1: a 0-byte target yields match_type
// none with no matches.
func TestS1_EmptyFile(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	ctx := NewScanContext()
	ctx.FileSize = 0
	ctx.SourceDigest = digest.EmptyDigest

	e := NewEngine(gw)
	winner, err := e.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	c := NewCompiler(gw, policy.New("", ""), 0)
	set, err := c.Compile(ctx, winner)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if set.Type != MatchNone || len(set.Records) != 0 {
		t.Fatalf("expected empty none set, got %+v", set)
	}
}

// TestS2_ComponentMatch covers scenario S2.
func TestS2_ComponentMatch(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	d := digestFromByte(0xAB)
	rec := gateway.EncodeComponentRecord(gateway.ComponentRecord{Vendor: "acme/foo", Component: "libfoo", Version: "1.2.3", URL: "https://x"})
	if err := gw.Put(gateway.TableComponents, d[:], rec); err != nil {
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

	c := NewCompiler(gw, policy.New("", ""), 0)
	set, err := c.Compile(ctx, winner)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if set.Type != MatchComponent {
		t.Fatalf("expected MatchComponent, got %v", set.Type)
	}
	if len(set.Records) != 1 {
		t.Fatalf("expected 1 match, got %d", len(set.Records))
	}
	got := set.Records[0]
	if got.Vendor != "acme/foo" || got.Component != "libfoo" || got.Version != "1.2.3" || got.LatestVersion != "1.2.3" || got.URL != "https://x" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.FilePath != "all" || got.Lines != "all" || got.OSSLines != "all" {
		t.Fatalf("expected 'all' fields for component match, got %+v", got)
	}
	if got.MatchedPercent != 100 {
		t.Fatalf("expected matched_percent=100, got %d", got.MatchedPercent)
	}
}

// TestS3_SnippetMatch covers scenario S3.
func TestS3_SnippetMatch(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	fileDigest := digestFromByte(0x10)
	compDigest := digestFromByte(0x20)

	if err := gw.Put(gateway.TableFiles, fileDigest[:], gateway.EncodeFileRecord(gateway.FileRecord{ComponentDigest: compDigest, Path: "src/x.c"})); err != nil {
		t.Fatalf("Put file: %v", err)
	}
	if err := gw.Put(gateway.TableComponents, compDigest[:], gateway.EncodeComponentRecord(gateway.ComponentRecord{Vendor: "acme", Component: "libfoo", Version: "1.0", URL: "https://x"})); err != nil {
		t.Fatalf("Put component: %v", err)
	}

	ctx := NewScanContext()
	ctx.TotalLines = 80
	ctx.Hashes = make([]digest.Hash, 40)
	for i := 0; i < 20; i++ {
		ctx.Hashes[i] = digest.Hash{Line: 10 + i}
	}
	for i := 0; i < 20; i++ {
		ctx.Hashes[20+i] = digest.Hash{Line: 40 + i}
	}
	ctx.Matchmap[fileDigest] = &MatchMapEntry{
		MD5:  fileDigest,
		Hits: 40,
		Ranges: []RangeRecord{
			{FromFP: 0, ToFP: 19, OSSLine: 100},
			{FromFP: 20, ToFP: 39, OSSLine: 200},
		},
	}
	ctx.Type = MatchSnippet

	c := NewCompiler(gw, policy.New("", ""), 0)
	set, err := c.Compile(ctx, fileDigest)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if set.Type != MatchSnippet {
		t.Fatalf("expected MatchSnippet, got %v", set.Type)
	}
	if len(set.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(set.Records))
	}
	got := set.Records[0]
	if got.Lines != "10-29,40-59" {
		t.Fatalf("unexpected lines: %q", got.Lines)
	}
	if got.OSSLines != "100-119,200-219" {
		t.Fatalf("unexpected oss_lines: %q", got.OSSLines)
	}
	if got.MatchedPercent != 50 {
		t.Fatalf("expected matched_percent=50, got %d", got.MatchedPercent)
	}
}

// TestS4_PathLengthPreference covers scenario S4 and testable property 6:
// given two FILES records for the same component with paths of different
// length, only the shorter path is retained once the set is full.
func TestS4_PathLengthPreference(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	fileDigest := digestFromByte(0x30)
	compDigest := digestFromByte(0x40)

	if err := gw.Put(gateway.TableFiles, fileDigest[:], gateway.EncodeFileRecord(gateway.FileRecord{ComponentDigest: compDigest, Path: "vendor/deeply/nested/src/x.c"})); err != nil {
		t.Fatalf("Put file1: %v", err)
	}
	if err := gw.Put(gateway.TableFiles, fileDigest[:], gateway.EncodeFileRecord(gateway.FileRecord{ComponentDigest: compDigest, Path: "src/x.c"})); err != nil {
		t.Fatalf("Put file2: %v", err)
	}
	if err := gw.Put(gateway.TableComponents, compDigest[:], gateway.EncodeComponentRecord(gateway.ComponentRecord{Vendor: "acme", Component: "libfoo", Version: "1.0", URL: "https://x"})); err != nil {
		t.Fatalf("Put component: %v", err)
	}

	ctx := NewScanContext()
	ctx.Type = MatchFile

	c := NewCompiler(gw, policy.New("", ""), 1) // ScanLimit=1 forces the "set full" path
	set, err := c.Compile(ctx, fileDigest)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(set.Records) != 1 {
		t.Fatalf("expected 1 record retained, got %d", len(set.Records))
	}
	if set.Records[0].FilePath != "src/x.c" {
		t.Fatalf("expected shorter path retained, got %q", set.Records[0].FilePath)
	}
}

// TestS5_SBOMSuppression covers scenario S5 and testable property 7.
func TestS5_SBOMSuppression(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	d := digestFromByte(0xAB)
	rec := gateway.EncodeComponentRecord(gateway.ComponentRecord{Vendor: "acme/foo", Component: "libfoo", Version: "1.2.3", URL: "https://x"})
	if err := gw.Put(gateway.TableComponents, d[:], rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ctx := NewScanContext()
	ctx.FileSize = 100
	ctx.SourceDigest = d
	ctx.Type = MatchComponent

	c := NewCompiler(gw, policy.New("", "libfoo,"), 0)
	set, err := c.Compile(ctx, d)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if set.Type != MatchNone || len(set.Records) != 0 {
		t.Fatalf("expected SBOM suppression to empty the set, got %+v", set)
	}
}

// TestVersionMerging covers testable property 5.
func TestVersionMerging(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	c := NewCompiler(gw, policy.New("", ""), ScanLimitDefault)

	set := &MatchSet{Records: make([]MatchRecord, c.ScanLimit)}
	c.addMatch(set, candidateRecord{vendor: "acme", component: "libfoo", version: "2.0.0", url: "https://x", file: "a.c"}, MatchFile, "all", "all", 100)
	c.addMatch(set, candidateRecord{vendor: "acme", component: "libfoo", version: "1.0.0", url: "https://x", file: "a.c"}, MatchFile, "all", "all", 100)

	set.Records = compactValid(set.Records)
	if len(set.Records) != 1 {
		t.Fatalf("expected merge into single record, got %d", len(set.Records))
	}
	if set.Records[0].Version != "1.0.0" || set.Records[0].LatestVersion != "2.0.0" {
		t.Fatalf("unexpected merged versions: %+v", set.Records[0])
	}
}

// TestComponentBlacklistDropsRecord verifies a blacklisted component
// record is dropped before insertion (spec §4.4 step 5).
func TestComponentBlacklistDropsRecord(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	d := digestFromByte(0xAB)
	rec := gateway.EncodeComponentRecord(gateway.ComponentRecord{Vendor: "acme", Component: "libfoo", Version: "1.0", URL: "https://x"})
	if err := gw.Put(gateway.TableComponents, d[:], rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ctx := NewScanContext()
	ctx.Type = MatchComponent

	c := NewCompiler(gw, policy.New("libfoo", ""), 0)
	set, err := c.Compile(ctx, d)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if set.Type != MatchNone || len(set.Records) != 0 {
		t.Fatalf("expected blacklisted component dropped, got %+v", set)
	}
}

// TestPercentBounds covers testable property 8.
func TestPercentBounds(t *testing.T) {
	if p := matchedPercent(MatchFile, 0, 0); p != 100 {
		t.Fatalf("expected 100 for file match, got %d", p)
	}
	if p := matchedPercent(MatchComponent, 0, 0); p != 100 {
		t.Fatalf("expected 100 for component match, got %d", p)
	}
	if p := matchedPercent(MatchSnippet, 1000, 10); p != 100 {
		t.Fatalf("expected capped 100, got %d", p)
	}
	if p := matchedPercent(MatchSnippet, 0, 10); p != 0 {
		t.Fatalf("expected 0 for zero hits, got %d", p)
	}
	if p := matchedPercent(MatchSnippet, 5, 10); p != 50 {
		t.Fatalf("expected 50, got %d", p)
	}
}
