// Package policy implements the Match Compiler's skip, blacklist and SBOM
// suppression rules (spec §4.4, §4.5): component-name blacklisting,
// path/extension blacklisting, and bill-of-materials suppression. Path and
// extension patterns are matched with github.com/bmatcuk/doublestar/v4, the
// same glob engine the teacher's ignore-pattern matching used, so a
// blacklist entry may be a bare component name ("libfoo"), a glob
// ("**/vendor/**"), or an extension pattern ("*.min.js") and the caller
// never has to say which.
package policy

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy holds the two process-level, read-only-after-construction strings
// the spec describes: a comma-separated blacklist and a comma-separated
// SBOM list. Per spec §5 these are immutable for the driver's lifetime and
// safe to share across concurrent workers without locking.
type Policy struct {
	blacklist []string
	sbom      []string
}

// New builds a Policy from the raw comma-separated blacklist and SBOM
// strings. Empty tokens (from a leading/trailing/doubled comma) are
// dropped.
func New(blacklistCSV, sbomCSV string) *Policy {
	return &Policy{
		blacklist: splitNonEmpty(blacklistCSV),
		sbom:      splitNonEmpty(sbomCSV),
	}
}

func splitNonEmpty(csv string) []string {
	var out []string
	for _, tok := range strings.Split(csv, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// ComponentBlacklisted reports whether component appears verbatim in the
// blacklist (spec §4.4 step 5: "a component record whose component field
// appears in the process-level blacklist string is dropped before
// insertion").
func (p *Policy) ComponentBlacklisted(component string) bool {
	for _, b := range p.blacklist {
		if b == component {
			return true
		}
	}
	return false
}

// PathBlacklisted reports whether path matches any glob-shaped blacklist
// entry (spec §4.4 step 2(a), the FILES-record skip policy). Entries with
// no path separator and no wildcard are treated as bare component names,
// not path patterns, and never match here.
func (p *Policy) PathBlacklisted(path string) bool {
	for _, b := range p.blacklist {
		if !looksLikePattern(b) {
			continue
		}
		if ok, _ := doublestar.Match(b, path); ok {
			return true
		}
	}
	return false
}

// ExtensionBlacklisted reports whether path's extension matches any
// extension-shaped blacklist entry (spec §4.4 step 2(b)). An entry is
// treated as an extension pattern when it starts with '.' or '*'.
func (p *Policy) ExtensionBlacklisted(path string) bool {
	ext := filepath.Ext(path)
	if ext == "" {
		return false
	}
	for _, b := range p.blacklist {
		if !strings.HasPrefix(b, ".") && !strings.HasPrefix(b, "*") {
			continue
		}
		pattern := b
		if strings.HasPrefix(pattern, ".") {
			pattern = "*" + pattern
		}
		if ok, _ := doublestar.Match(pattern, ext); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

// ExtensionsEqual implements spec §4.4 step 2(c): extension-matching mode
// requires the matched file's extension to equal the source file's
// extension.
func ExtensionsEqual(sourcePath, matchedPath string) bool {
	return filepath.Ext(sourcePath) == filepath.Ext(matchedPath)
}

func looksLikePattern(entry string) bool {
	return strings.ContainsAny(entry, "/*?[")
}

// SBOMSuppressed reports whether component is declared in the SBOM list.
// Per spec §4.4 step 5 each token is terminated by a comma in the raw
// string, which splitNonEmpty already normalizes into exact tokens, so
// membership is a plain equality check against the parsed list.
func (p *Policy) SBOMSuppressed(component string) bool {
	for _, s := range p.sbom {
		if s == component {
			return true
		}
	}
	return false
}

// AnySBOMSuppressed reports whether any of components is SBOM-suppressed,
// used by the Match Compiler's finalization step: a single SBOM hit
// discards the entire MatchSet (spec §4.4 step 5).
func (p *Policy) AnySBOMSuppressed(components []string) bool {
	for _, c := range components {
		if p.SBOMSuppressed(c) {
			return true
		}
	}
	return false
}
