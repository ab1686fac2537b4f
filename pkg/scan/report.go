package scan

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Summary accumulates per-run totals for the CLI report: files scanned,
// skipped, and a breakdown by match type.
type Summary struct {
	FilesScanned int
	FilesSkipped int
	ByMatchType  map[string]int
	Duration     time.Duration
}

// NewSummary returns an empty Summary ready for accumulation.
func NewSummary() *Summary {
	return &Summary{ByMatchType: make(map[string]int)}
}

// Record folds one Driver Result into the summary.
func (s *Summary) Record(res Result) {
	s.FilesScanned++
	s.ByMatchType[res.Rec.MatchType]++
}

// Skip records a target that never reached the driver (TargetUnreadable).
func (s *Summary) Skip() {
	s.FilesSkipped++
}

// WriteReport renders a human-readable scan summary table to w, the
// tabular counterpart to a plain-text scan report.
func WriteReport(w io.Writer, s *Summary) {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"metric", "value"})

	table.Append([]string{"files scanned", strconv.Itoa(s.FilesScanned)})
	table.Append([]string{"files skipped", strconv.Itoa(s.FilesSkipped)})
	for _, mt := range []string{"component", "file", "snippet", "none"} {
		table.Append([]string{"match: " + mt, strconv.Itoa(s.ByMatchType[mt])})
	}
	table.Append([]string{"duration", s.Duration.String()})

	table.Render()
}
