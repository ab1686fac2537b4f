package digest

// Winnowing produces a sparse, order-preserving set of fingerprints from
// normalized source text such that near-duplicate snippets — differing
// only in whitespace, letter case, or punctuation removed by
// normalization — produce overlapping fingerprint sets. This is the
// classic Schleimer/Wilkerson/Aiken winnowing algorithm: hash every
// NGramSize-byte gram with a rolling hash, then keep only the local
// minimum hash within each WindowSize-gram window.

const (
	// NGramSize is the width, in normalized bytes, of each rolling-hash
	// gram (the "4-gram rolling hash" of spec §3/§4.1).
	NGramSize = 4

	// WindowSize is the number of consecutive gram hashes considered
	// when picking a local minimum.
	WindowSize = 16

	// MaxHashesRead caps the number of fingerprints retained per scan
	// (spec §3 HashTable, §6 Constants).
	MaxHashesRead = 1 << 16

	// MinCodeDensity is the minimum fraction of alphanumeric bytes a
	// buffer must have before winnowing is attempted; below this the
	// buffer is assumed to be binary or otherwise non-code
	// (skip_snippets in spec §4.1).
	MinCodeDensity = 0.12

	// MinSkipLength is the minimum buffer length winnowing bothers with;
	// shorter buffers can't produce a useful fingerprint set.
	MinSkipLength = NGramSize + WindowSize
)

const hashBase uint64 = 257
const hashMod uint64 = 4294967311 // first prime above 2^32, keeps fingerprints well-mixed mod 2^32

// Fingerprint is a 32-bit winnowing fingerprint.
type Fingerprint uint32

// Hash is a single (fingerprint, line) pair produced by winnowing.
type Hash struct {
	Fingerprint Fingerprint
	Line        int // 1-based source line of the last byte in the gram.
}

// normalizedByte pairs a normalized byte with the source line it came
// from, so a gram's line number can be recovered after normalization
// has removed or merged bytes.
type normalizedByte struct {
	b    byte
	line int
}

// normalize case-folds ASCII letters, drops whitespace and most
// punctuation, and keeps alphanumerics plus a small set of operator
// characters that carry structural signal. Byte-equal input always
// produces byte-equal output (winnow's determinism contract, spec
// §4.1), and two files differing only in whitespace normalize to the
// same byte stream.
func normalize(buf []byte) []normalizedByte {
	out := make([]normalizedByte, 0, len(buf))
	line := 1
	for _, c := range buf {
		if c == '\n' {
			line++
			continue
		}
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, normalizedByte{c + ('a' - 'A'), line})
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, normalizedByte{c, line})
		case isCodeOperator(c):
			out = append(out, normalizedByte{c, line})
		default:
			// Whitespace, comments punctuation, quotes — collapsed away.
		}
	}
	return out
}

func isCodeOperator(c byte) bool {
	switch c {
	case '+', '-', '*', '/', '%', '=', '<', '>', '!', '&', '|', '^', '~',
		'(', ')', '{', '}', '[', ']', ';', ':', ',', '.':
		return true
	}
	return false
}

// Skip returns true for buffers the winnower must not fingerprint: too
// short, or too sparse in alphanumeric content to be source code
// (skip_snippets in spec §4.1).
func Skip(buf []byte) bool {
	if len(buf) < MinSkipLength {
		return true
	}
	codeBytes := 0
	for _, c := range buf {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			codeBytes++
		}
	}
	return float64(codeBytes)/float64(len(buf)) < MinCodeDensity
}

// Winnow computes the winnowed fingerprint sequence for buf. Fingerprints
// are returned in increasing line order, capped at MaxHashesRead.
func Winnow(buf []byte) []Hash {
	norm := normalize(buf)
	if len(norm) < NGramSize {
		return nil
	}

	grams := computeGramHashes(norm)
	if len(grams) == 0 {
		return nil
	}

	selected := selectLocalMinima(grams, WindowSize)
	if len(selected) > MaxHashesRead {
		selected = selected[:MaxHashesRead]
	}
	return selected
}

// gramHash is a rolling hash over NGramSize normalized bytes, tagged with
// the line of its last contributing byte.
type gramHash struct {
	hash uint64
	line int
}

// computeGramHashes slides an NGramSize-wide window across norm using a
// polynomial rolling hash, mirroring the rolling-hash update used for
// token windows elsewhere in this codebase but operating on normalized
// source bytes instead of a token stream.
func computeGramHashes(norm []normalizedByte) []gramHash {
	n := len(norm)
	if n < NGramSize {
		return nil
	}

	basePow := uint64(1)
	for i := 0; i < NGramSize-1; i++ {
		basePow = (basePow * hashBase) % hashMod
	}

	grams := make([]gramHash, 0, n-NGramSize+1)

	var h uint64
	for i := 0; i < NGramSize; i++ {
		h = (h*hashBase + uint64(norm[i].b)) % hashMod
	}
	grams = append(grams, gramHash{hash: h, line: norm[NGramSize-1].line})

	for i := 1; i <= n-NGramSize; i++ {
		old := uint64(norm[i-1].b)
		next := uint64(norm[i+NGramSize-1].b)
		h = (h + hashMod - (old*basePow)%hashMod) % hashMod
		h = (h*hashBase + next) % hashMod
		grams = append(grams, gramHash{hash: h, line: norm[i+NGramSize-1].line})
	}

	return grams
}

// selectLocalMinima implements the winnowing local-minimum selection: in
// every window of `window` consecutive gram hashes, keep the rightmost
// minimum (ties broken toward the most recent gram), and only emit a
// fingerprint when the selected position differs from the previous
// selection. This is what makes overlapping windows between near-duplicate
// files converge on the same sparse fingerprint set.
func selectLocalMinima(grams []gramHash, window int) []Hash {
	if window < 1 {
		window = 1
	}
	if len(grams) <= window {
		window = len(grams)
	}

	var out []Hash
	lastSelected := -1

	for start := 0; start+window <= len(grams); start++ {
		minIdx := start
		for i := start + 1; i < start+window; i++ {
			if grams[i].hash <= grams[minIdx].hash {
				minIdx = i
			}
		}
		if minIdx != lastSelected {
			out = append(out, Hash{
				Fingerprint: Fingerprint(uint32(grams[minIdx].hash)),
				Line:        grams[minIdx].line,
			})
			lastSelected = minIdx
		}
	}

	return out
}
