package digest

import (
	"strings"
	"testing"
)

func TestWinnow_Determinism(t *testing.T) {
	src := []byte(strings.Repeat("func addTwoNumbers(a, b int) int {\n\treturn a + b\n}\n\n", 5))

	h1 := Winnow(src)
	h2 := Winnow(src)

	if len(h1) != len(h2) {
		t.Fatalf("non-deterministic hash count: %d vs %d", len(h1), len(h2))
	}
	for i := range h1 {
		if h1[i] != h2[i] {
			t.Fatalf("non-deterministic hash at %d: %+v vs %+v", i, h1[i], h2[i])
		}
	}
}

func TestWinnow_WhitespaceInsensitive(t *testing.T) {
	a := []byte("func addTwoNumbers(a, b int) int {\n\treturn a + b\n}\n")
	b := []byte("func   addTwoNumbers(a,b int)   int{\nreturn a+b\n}\n")

	ha := Winnow(a)
	hb := Winnow(b)

	if len(ha) == 0 || len(hb) == 0 {
		t.Fatalf("expected non-empty fingerprint sets, got %d and %d", len(ha), len(hb))
	}

	setA := make(map[Fingerprint]bool)
	for _, h := range ha {
		setA[h.Fingerprint] = true
	}
	overlap := 0
	for _, h := range hb {
		if setA[h.Fingerprint] {
			overlap++
		}
	}
	if overlap == 0 {
		t.Fatalf("expected overlapping fingerprints between whitespace variants, got none")
	}
}

func TestWinnow_LineNumbersMonotonic(t *testing.T) {
	src := []byte(strings.Repeat("x := compute(a, b, c)\n", 40))

	hashes := Winnow(src)
	if len(hashes) == 0 {
		t.Fatal("expected fingerprints")
	}
	for i := 1; i < len(hashes); i++ {
		if hashes[i].Line < hashes[i-1].Line {
			t.Fatalf("line numbers not monotonic at %d: %d then %d", i, hashes[i-1].Line, hashes[i].Line)
		}
	}
}

func TestSkip_EmptyAndBinary(t *testing.T) {
	if !Skip(nil) {
		t.Error("expected Skip(nil) to be true")
	}
	if !Skip([]byte("!@#$%^&*()!@#$%^&*()!@#$%^&*()")) {
		t.Error("expected punctuation-only buffer to be skipped")
	}
	if Skip([]byte(strings.Repeat("func sum(a, b int) int { return a + b }\n", 3))) {
		t.Error("expected real source code not to be skipped")
	}
}

func TestWinnow_MaxHashesReadCap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 5000; i++ {
		sb.WriteString("value := nextToken()\n")
	}
	hashes := Winnow([]byte(sb.String()))
	if len(hashes) > MaxHashesRead {
		t.Fatalf("expected at most %d hashes, got %d", MaxHashesRead, len(hashes))
	}
}
