package hashcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// DigestLength is the number of hex characters kept from the content hash.
const DigestLength = 8

var bucketName = []byte("content-hashes")

// Cache remembers content digests keyed by path, size and modification time
// so unchanged inputs are not re-read on every run.
type Cache struct {
	db *bbolt.DB
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open hash cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init hash cache: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the database. A nil cache is a no-op.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached digest for key.
func (c *Cache) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	var digest string
	_ = c.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(key)); v != nil {
			digest = string(v)
		}
		return nil
	})
	return digest, digest != ""
}

// Put stores digest under key.
func (c *Cache) Put(key, digest string) error {
	if c == nil {
		return nil
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(digest))
	})
}

// Digest returns the content hash of path, consulting the cache first.
func (c *Cache) Digest(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	key := cacheKey(path, info)
	if digest, ok := c.Get(key); ok {
		return digest, nil
	}

	digest, err := FileDigest(path)
	if err != nil {
		return "", err
	}
	if err := c.Put(key, digest); err != nil {
		return "", fmt.Errorf("store digest: %w", err)
	}
	return digest, nil
}

// FileDigest hashes the file contents and truncates to DigestLength.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil))[:DigestLength], nil
}

// cacheKey returns a key that changes whenever the file is rewritten.
func cacheKey(path string, info os.FileInfo) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return fmt.Sprintf("%s:%d:%d", path, info.Size(), info.ModTime().UnixNano())
}
