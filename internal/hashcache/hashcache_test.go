package hashcache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDigestStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(path, []byte("first"), 0644); err != nil {
		t.Fatal(err)
	}

	cache, err := Open(filepath.Join(dir, "cache", "hashes.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer cache.Close()

	d1, err := cache.Digest(path)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if len(d1) != DigestLength {
		t.Fatalf("digest length = %d", len(d1))
	}

	d2, err := cache.Digest(path)
	if err != nil || d2 != d1 {
		t.Fatalf("second digest = %q (%v), want %q", d2, err, d1)
	}

	plain, err := FileDigest(path)
	if err != nil || plain != d1 {
		t.Fatalf("FileDigest = %q (%v), want %q", plain, err, d1)
	}
}

func TestDigestChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(path, []byte("first"), 0644); err != nil {
		t.Fatal(err)
	}

	var cache *Cache
	before, err := cache.Digest(path)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}

	if err := os.WriteFile(path, []byte("second, longer"), 0644); err != nil {
		t.Fatal(err)
	}
	after, err := cache.Digest(path)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if before == after {
		t.Fatal("digest should change with content")
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "hashes.db")

	cache, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := cache.Put("k", "abcdef12"); err != nil {
		t.Fatalf("put: %v", err)
	}
	cache.Close()

	cache, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer cache.Close()
	if v, ok := cache.Get("k"); !ok || v != "abcdef12" {
		t.Fatalf("get = %q, %v", v, ok)
	}
}
