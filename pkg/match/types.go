// Package match implements the Match Engine and Match Compiler: the
// three-tier component/file/snippet lookup strategy, the per-scan
// matchmap, and the compilation of raw Index Gateway records into
// user-facing MatchRecords (spec §3, §4.3, §4.4).
package match

import "github.com/sourcetrace/sourcetrace/pkg/digest"

// MatchType is the outcome of the three-tier lookup for a target. Its
// ordering for preference is component > snippet > file > none, though
// only one tier is ever active at output time for a single scan.
type MatchType int

const (
	MatchNone MatchType = iota
	MatchFile
	MatchSnippet
	MatchComponent
)

func (t MatchType) String() string {
	switch t {
	case MatchFile:
		return "file"
	case MatchSnippet:
		return "snippet"
	case MatchComponent:
		return "component"
	default:
		return "none"
	}
}

// ScanLimitDefault is the default cap on MatchRecords held in a MatchSet
// (spec §6, "SCAN_LIMIT = default 10; configurable").
const ScanLimitDefault = 10

// RangeRecord is one contiguous run of matched fingerprint indices and
// their corresponding OSS source line, as accumulated during the snippet
// sweep (spec §3).
type RangeRecord struct {
	FromFP  uint16
	ToFP    uint16
	OSSLine uint16
}

// MatchMapEntry accumulates, for one candidate file digest observed during
// the snippet pass, how many fingerprints matched and where (spec §3).
type MatchMapEntry struct {
	MD5      digest.Digest
	Hits     uint16
	LastLine uint32
	Ranges   []RangeRecord
}

// MatchRecord is one user-facing attribution surfaced by the compiler
// (spec §3). Empty vendor, component, url, version, or file_path marks a
// record invalid.
type MatchRecord struct {
	Vendor         string
	Component      string
	Version        string
	LatestVersion  string
	URL            string
	FilePath       string
	ComponentMD5   digest.Digest
	FileMD5        digest.Digest
	Lines          string
	OSSLines       string
	MatchedPercent uint8
	PathLen        uint16
	Type           MatchType
	Selected       bool
}

// Valid reports whether every required string field is populated (spec
// §3: "empty vendor | component | url | version | file_path marks a
// record invalid").
func (r MatchRecord) Valid() bool {
	return r.Vendor != "" && r.Component != "" && r.URL != "" && r.Version != "" && r.FilePath != ""
}

// MatchSet is an ordered buffer of up to a configured limit of
// MatchRecords, plus the match type they were compiled under.
type MatchSet struct {
	Type    MatchType
	Records []MatchRecord
}

// ScanContext carries per-target scratch state across the Digest &
// Winnower, Match Engine, and Match Compiler stages of a single scan
// (spec §3). A ScanContext is reused across targets via Reset, never
// reallocated mid-run.
type ScanContext struct {
	FilePath     string
	FileSize     int64
	SourceDigest digest.Digest
	Preloaded    bool

	Hashes     []digest.Hash
	TotalLines int

	Matchmap map[digest.Digest]*MatchMapEntry

	Type MatchType
}

// Reset clears per-target state while keeping the underlying slice and
// map storage for reuse, per spec §3's "fully reset between targets
// (preserving heap buffers)".
func (c *ScanContext) Reset() {
	c.FilePath = ""
	c.FileSize = 0
	c.SourceDigest = digest.Digest{}
	c.Preloaded = false
	c.Hashes = c.Hashes[:0]
	c.TotalLines = 0
	for k := range c.Matchmap {
		delete(c.Matchmap, k)
	}
	c.Type = MatchNone
}

// NewScanContext allocates a ScanContext with its reusable buffers
// initialized.
func NewScanContext() *ScanContext {
	return &ScanContext{Matchmap: make(map[digest.Digest]*MatchMapEntry)}
}
