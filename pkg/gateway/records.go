package gateway

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/sourcetrace/sourcetrace/pkg/digest"
)

// MaxRecordSize bounds a single CSV or binary record value (RecordOversize
// policy, spec §7).
const MaxRecordSize = 4096

// ComponentRecord is the decoded value of a COMPONENTS row: "vendor,
// component, version, url" CSV with forward slashes escaped as
// backslashes on disk (spec §4.2) — the gateway flips them back here so
// callers never see the escaping.
type ComponentRecord struct {
	Vendor    string
	Component string
	Version   string
	URL       string
}

// EncodeComponentRecord renders a ComponentRecord into its on-disk CSV
// form, escaping forward slashes as backslashes.
func EncodeComponentRecord(r ComponentRecord) []byte {
	fields := []string{r.Vendor, r.Component, r.Version, r.URL}
	for i, f := range fields {
		fields[i] = flipSlashesOut(f)
	}
	return []byte(strings.Join(fields, ","))
}

// DecodeComponentRecord parses a COMPONENTS CSV row, un-escaping
// backslash-encoded forward slashes. It returns an error for oversize
// records; CSV fields that are empty are left empty — completeness is a
// Match Compiler policy concern (spec §4.4), not a decode-time error.
func DecodeComponentRecord(raw []byte) (ComponentRecord, error) {
	if len(raw) > MaxRecordSize {
		return ComponentRecord{}, ErrRecordOversize
	}
	fields := strings.SplitN(string(raw), ",", 4)
	for len(fields) < 4 {
		fields = append(fields, "")
	}
	return ComponentRecord{
		Vendor:    flipSlashesIn(fields[0]),
		Component: flipSlashesIn(fields[1]),
		Version:   flipSlashesIn(fields[2]),
		URL:       flipSlashesIn(fields[3]),
	}, nil
}

// flipSlashesOut escapes '/' as '\' for on-disk storage (original fields
// use backslashes as a forward-slash placeholder, spec §4.2).
func flipSlashesOut(s string) string { return strings.ReplaceAll(s, "/", "\\") }

// flipSlashesIn reverses flipSlashesOut at hydration time.
func flipSlashesIn(s string) string { return strings.ReplaceAll(s, "\\", "/") }

// FileRecord is the decoded value of a FILES row: the owning component's
// digest followed by the file's repository path (spec §4.2, §6).
type FileRecord struct {
	ComponentDigest digest.Digest
	Path            string
}

// EncodeFileRecord renders a FileRecord into its on-disk form.
func EncodeFileRecord(r FileRecord) []byte {
	out := make([]byte, digest.Len+len(r.Path))
	copy(out, r.ComponentDigest[:])
	copy(out[digest.Len:], r.Path)
	return out
}

// DecodeFileRecord parses a FILES row: 16 bytes of component digest
// followed by a UTF-8 path with no delimiter.
func DecodeFileRecord(raw []byte) (FileRecord, error) {
	if len(raw) > MaxRecordSize {
		return FileRecord{}, ErrRecordOversize
	}
	if len(raw) < digest.Len {
		return FileRecord{}, errors.New("gateway: file record shorter than a digest")
	}
	var r FileRecord
	copy(r.ComponentDigest[:], raw[:digest.Len])
	r.Path = string(raw[digest.Len:])
	return r, nil
}

// SnippetRecord is one row of the SNIPPETS secondary index: which file a
// fingerprint occurred in, at what position in that file's hash table,
// and at what OSS line (spec §4.3, §6).
type SnippetRecord struct {
	FileMD5 digest.Digest
	FPIndex uint16
	OSSLine uint16
}

const snippetRecordLen = digest.Len + 2 + 2

// EncodeSnippetRecord renders a SnippetRecord into its on-disk form.
func EncodeSnippetRecord(r SnippetRecord) []byte {
	out := make([]byte, snippetRecordLen)
	copy(out, r.FileMD5[:])
	binary.BigEndian.PutUint16(out[digest.Len:], r.FPIndex)
	binary.BigEndian.PutUint16(out[digest.Len+2:], r.OSSLine)
	return out
}

// DecodeSnippetRecord parses a SNIPPETS row.
func DecodeSnippetRecord(raw []byte) (SnippetRecord, error) {
	if len(raw) != snippetRecordLen {
		return SnippetRecord{}, fmt.Errorf("gateway: snippet record wants %d bytes, got %d", snippetRecordLen, len(raw))
	}
	var r SnippetRecord
	copy(r.FileMD5[:], raw[:digest.Len])
	r.FPIndex = binary.BigEndian.Uint16(raw[digest.Len:])
	r.OSSLine = binary.BigEndian.Uint16(raw[digest.Len+2:])
	return r, nil
}
