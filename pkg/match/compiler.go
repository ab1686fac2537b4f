package match

import (
	"github.com/sourcetrace/sourcetrace/pkg/digest"
	"github.com/sourcetrace/sourcetrace/pkg/gateway"
	"github.com/sourcetrace/sourcetrace/pkg/policy"
)

// Compiler turns a Match Engine resolution into a user-facing MatchSet:
// metadata hydration, deduplication/range-merging, path-length slotting,
// and blacklist/SBOM filtering (spec §4.4).
type Compiler struct {
	GW     gateway.Gateway
	Policy *policy.Policy

	// ScanLimit bounds the MatchSet size (spec §6, SCAN_LIMIT).
	ScanLimit int

	// ExtensionMatchMode requires a FILES candidate's extension to equal
	// the scanned source file's extension (spec §4.4 step 2(c)). Off by
	// default since the base spec treats it as an optional mode.
	ExtensionMatchMode bool
}

// NewCompiler builds a Match Compiler. scanLimit<=0 falls back to
// ScanLimitDefault.
func NewCompiler(gw gateway.Gateway, pol *policy.Policy, scanLimit int) *Compiler {
	if scanLimit <= 0 {
		scanLimit = ScanLimitDefault
	}
	return &Compiler{GW: gw, Policy: pol, ScanLimit: scanLimit}
}

// candidateRecord is the compiler's internal, pre-dedup view of a
// hydrated record, before it is slotted into a MatchSet.
type candidateRecord struct {
	vendor          string
	component       string
	version         string
	url             string
	file            string
	componentDigest digest.Digest
	fileDigest      digest.Digest
}

func (c candidateRecord) valid() bool {
	return c.vendor != "" && c.component != "" && c.url != "" && c.version != "" && c.file != ""
}

// Compile runs the full Match Compiler pipeline for one resolved target
// and returns its MatchSet.
func (c *Compiler) Compile(ctx *ScanContext, winner digest.Digest) (*MatchSet, error) {
	set := &MatchSet{Type: ctx.Type}
	if ctx.Type == MatchNone {
		return set, nil
	}

	lines, ossLines, hits := "all", "all", ctx.TotalLines
	if ctx.Type == MatchSnippet {
		lines, ossLines, hits = CompileRanges(ctx, winner)
	}
	percent := matchedPercent(ctx.Type, hits, ctx.TotalLines)

	set.Records = make([]MatchRecord, c.ScanLimit)

	candidates, err := c.hydrate(ctx, winner)
	if err != nil {
		return nil, err
	}

	for _, cand := range candidates {
		if !cand.valid() {
			continue // MetadataIncomplete: drop silently (spec §7).
		}
		if c.Policy != nil && c.Policy.ComponentBlacklisted(cand.component) {
			continue
		}
		c.addMatch(set, cand, ctx.Type, lines, ossLines, percent)
	}

	set.Records = compactValid(set.Records)

	if len(set.Records) == 0 {
		set.Type = MatchNone
		return set, nil
	}

	if c.Policy != nil {
		names := make([]string, len(set.Records))
		for i, r := range set.Records {
			names[i] = r.Component
		}
		if c.Policy.AnySBOMSuppressed(names) {
			set.Records = nil
			set.Type = MatchNone
		}
	}

	return set, nil
}

// hydrate fetches metadata candidates for winner. For MatchFile, the
// digest is already a file digest, so it goes straight to FILES. For
// every other type it tries COMPONENTS first, falling back to FILES (and
// a secondary COMPONENTS lookup keyed by the file's owning component
// digest) when COMPONENTS returns nothing — spec §4.4 step 2.
func (c *Compiler) hydrate(ctx *ScanContext, winner digest.Digest) ([]candidateRecord, error) {
	var candidates []candidateRecord

	if ctx.Type != MatchFile {
		n, err := c.GW.Fetch(gateway.TableComponents, winner[:], func(subkey, value []byte, iteration int) bool {
			rec, derr := gateway.DecodeComponentRecord(value)
			if derr != nil {
				return false
			}
			candidates = append(candidates, candidateRecord{
				vendor:          rec.Vendor,
				component:       rec.Component,
				version:         rec.Version,
				url:             rec.URL,
				file:            "all",
				componentDigest: winner,
				fileDigest:      winner,
			})
			return false
		})
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return candidates, nil
		}
	}

	_, err := c.GW.Fetch(gateway.TableFiles, winner[:], func(subkey, value []byte, iteration int) bool {
		frec, derr := gateway.DecodeFileRecord(value)
		if derr != nil {
			return false
		}

		if c.Policy != nil {
			if c.Policy.PathBlacklisted(frec.Path) || c.Policy.ExtensionBlacklisted(frec.Path) {
				return false
			}
		}
		if c.ExtensionMatchMode && !policy.ExtensionsEqual(ctx.FilePath, frec.Path) {
			return false
		}

		var comp gateway.ComponentRecord
		found := false
		c.GW.Fetch(gateway.TableComponents, frec.ComponentDigest[:], func(subkey2, value2 []byte, it2 int) bool {
			cr, derr2 := gateway.DecodeComponentRecord(value2)
			if derr2 != nil {
				return false
			}
			comp = cr
			found = true
			return true
		})
		if !found {
			return false // MetadataIncomplete: no component record for this file.
		}

		candidates = append(candidates, candidateRecord{
			vendor:          comp.Vendor,
			component:       comp.Component,
			version:         comp.Version,
			url:             comp.URL,
			file:            frec.Path,
			componentDigest: frec.ComponentDigest,
			fileDigest:      winner,
		})
		return false
	})
	if err != nil {
		return nil, err
	}

	return candidates, nil
}

// addMatch implements the dedup/merge and path-length slotting rule
// (spec §4.4 step 3). set.Records is a fixed-size array of ScanLimit
// slots; an empty slot has Vendor == "". A record sharing (vendor,
// component) with an occupied slot widens that slot's version range and,
// when its path is shorter, replaces the slot's file path. Insertion replaces the first
// empty slot or the first slot whose path_len exceeds the incoming
// record's, never shifting existing entries — which also implements the
// path-length cap (step 4): once every slot's path_len is <= the
// incoming one, no slot qualifies and the record is silently discarded.
func (c *Compiler) addMatch(set *MatchSet, cand candidateRecord, matchType MatchType, lines, ossLines string, percent uint8) {
	for i := range set.Records {
		rec := &set.Records[i]
		if rec.Vendor == "" {
			continue
		}
		if rec.Vendor == cand.vendor && rec.Component == cand.component {
			if cand.version < rec.Version {
				rec.Version = cand.version
			}
			if cand.version > rec.LatestVersion {
				rec.LatestVersion = cand.version
			}
			if uint16(len(cand.file)) < rec.PathLen {
				rec.FilePath = cand.file
				rec.PathLen = uint16(len(cand.file))
				rec.ComponentMD5 = cand.componentDigest
			}
			return
		}
	}

	newRec := MatchRecord{
		Vendor:         cand.vendor,
		Component:      cand.component,
		Version:        cand.version,
		LatestVersion:  cand.version,
		URL:            cand.url,
		FilePath:       cand.file,
		ComponentMD5:   cand.componentDigest,
		FileMD5:        cand.fileDigest,
		Lines:          lines,
		OSSLines:       ossLines,
		MatchedPercent: percent,
		PathLen:        uint16(len(cand.file)),
		Type:           matchType,
		Selected:       true,
	}

	for i := range set.Records {
		if set.Records[i].Vendor == "" || set.Records[i].PathLen > newRec.PathLen {
			set.Records[i] = newRec
			return
		}
	}
	// No slot qualifies: incoming path is not shorter than anything held.
}

func compactValid(records []MatchRecord) []MatchRecord {
	out := records[:0]
	for _, r := range records {
		if r.Vendor != "" {
			out = append(out, r)
		}
	}
	return out
}

func matchedPercent(t MatchType, hits, totalLines int) uint8 {
	if t == MatchFile || t == MatchComponent {
		return 100
	}
	if totalLines <= 0 || hits <= 0 {
		return 0
	}
	p := hits * 100 / totalLines
	if p > 100 {
		p = 100
	}
	return uint8(p)
}
