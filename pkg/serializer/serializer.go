// Package serializer renders a scanned target's ScanContext and MatchSet
// as a single JSON object. It is deliberately the thinnest layer in the
// module: spec §1 lists the serializer as an external collaborator whose
// contract is only that "a non-match is still emitted (empty match array)
// and match_type is echoed by name" (spec §6).
package serializer

import (
	"encoding/json"
	"io"

	"github.com/sourcetrace/sourcetrace/pkg/match"
)

// Record is the JSON shape written once per scanned target.
type Record struct {
	FilePath    string        `json:"file_path"`
	SourceMD5   string        `json:"source_md5"`
	MatchType   string        `json:"match_type"`
	MatchCount  int           `json:"match_count"`
	Matches     []MatchRecord `json:"matches"`
}

// MatchRecord is the JSON shape of a single compiled match.
type MatchRecord struct {
	Vendor         string `json:"vendor"`
	Component      string `json:"component"`
	Version        string `json:"version"`
	LatestVersion  string `json:"latest_version"`
	URL            string `json:"url"`
	File           string `json:"file"`
	Lines          string `json:"lines"`
	OSSLines       string `json:"oss_lines"`
	MatchedPercent uint8  `json:"matched_percent"`
}

// FromMatchSet converts a match.MatchSet, keyed by the target's path and
// source digest, into a Record ready for encoding.
func FromMatchSet(filePath string, sourceMD5 string, set *match.MatchSet) Record {
	rec := Record{
		FilePath:  filePath,
		SourceMD5: sourceMD5,
		MatchType: set.Type.String(),
		Matches:   make([]MatchRecord, 0, len(set.Records)),
	}
	for _, m := range set.Records {
		rec.Matches = append(rec.Matches, MatchRecord{
			Vendor:         m.Vendor,
			Component:      m.Component,
			Version:        m.Version,
			LatestVersion:  m.LatestVersion,
			URL:            m.URL,
			File:           m.FilePath,
			Lines:          m.Lines,
			OSSLines:       m.OSSLines,
			MatchedPercent: m.MatchedPercent,
		})
	}
	rec.MatchCount = len(rec.Matches)
	return rec
}

// WriteJSON writes one JSON object per Record, newline-delimited, to w.
func WriteJSON(w io.Writer, rec Record) error {
	enc := json.NewEncoder(w)
	return enc.Encode(rec)
}
