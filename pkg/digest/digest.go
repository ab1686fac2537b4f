// Package digest computes the content-addressed identifiers used to key
// provenance lookups: a whole-file MD5 digest and, for files that need
// snippet-level matching, a winnowed sequence of 32-bit fingerprints.
//
// Nothing in this package talks to an index or a network — it only turns
// bytes on disk into the keys the match engine looks up.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"os"
)

var digestLog = log.New(os.Stderr, "[sourcetrace:digest] ", log.Ltime)

// Len is the byte length of a digest (MD5_LEN in spec terms).
const Len = 16

// KeyLen is the number of leading bytes of a Digest used as the primary
// lookup key into an Index Gateway table (LDB_KEY_LN in spec terms). The
// remaining Len-KeyLen bytes are the subkey.
const KeyLen = 4

// Digest is an opaque 16-byte content-addressed identifier.
type Digest [Len]byte

// EmptyDigest is the well-known MD5 of zero bytes. Files whose digest
// equals this value never yield a file or component match (spec §4.3,
// §8 property 3).
var EmptyDigest = mustDecodeHex("d41d8cd98f00b204e9800998ecf8427e")

func mustDecodeHex(s string) Digest {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != Len {
		panic("digest: invalid empty-file constant")
	}
	copy(d[:], b)
	return d
}

// ErrUnreadable is returned when the target cannot be read at all. The
// scan driver treats this as TargetUnreadable (spec §7): abort this
// target, continue with the next.
var ErrUnreadable = errors.New("digest: target unreadable")

// Key returns the first KeyLen bytes of the digest.
func (d Digest) Key() []byte { return d[:KeyLen] }

// Subkey returns the remaining bytes after Key.
func (d Digest) Subkey() []byte { return d[KeyLen:] }

// IsEmpty reports whether d equals EmptyDigest.
func (d Digest) IsEmpty() bool { return d == EmptyDigest }

// String renders the digest as lowercase hex.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// FromHex parses a 32-character hex string into a Digest.
func FromHex(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, err
	}
	if len(b) != Len {
		return d, errors.New("digest: wrong length for hex digest")
	}
	copy(d[:], b)
	return d, nil
}

// FileDigest returns the MD5 digest of a file's full contents
// (file_digest(path) -> D in spec §4.1).
func FileDigest(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		digestLog.Printf("cannot open %s: %v", path, err)
		return Digest{}, ErrUnreadable
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		digestLog.Printf("cannot read %s: %v", path, err)
		return Digest{}, ErrUnreadable
	}

	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// BytesDigest returns the MD5 digest of an in-memory buffer, used when the
// caller already holds the file content (e.g. a WFP-preloaded scan whose
// source_digest is recomputed from a buffer rather than reread from disk).
func BytesDigest(buf []byte) Digest {
	sum := md5.Sum(buf)
	return Digest(sum)
}
