package digest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileDigest_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	d, err := FileDigest(path)
	if err != nil {
		t.Fatalf("FileDigest: %v", err)
	}
	if !d.IsEmpty() {
		t.Fatalf("expected empty-file digest, got %s", d)
	}
}

func TestFileDigest_Unreadable(t *testing.T) {
	_, err := FileDigest(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != ErrUnreadable {
		t.Fatalf("expected ErrUnreadable, got %v", err)
	}
}

func TestDigest_KeySubkeySplit(t *testing.T) {
	d, err := FromHex("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if len(d.Key()) != KeyLen {
		t.Fatalf("expected key len %d, got %d", KeyLen, len(d.Key()))
	}
	if len(d.Subkey()) != Len-KeyLen {
		t.Fatalf("expected subkey len %d, got %d", Len-KeyLen, len(d.Subkey()))
	}
}

func TestBytesDigest_MatchesFileDigest(t *testing.T) {
	content := []byte("package main\n\nfunc main() {}\n")
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fromFile, err := FileDigest(path)
	if err != nil {
		t.Fatalf("FileDigest: %v", err)
	}
	fromBytes := BytesDigest(content)
	if fromFile != fromBytes {
		t.Fatalf("digest mismatch: file=%s bytes=%s", fromFile, fromBytes)
	}
}
