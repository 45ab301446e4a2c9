// Package docstore implements the tiered document retrieval pipeline: an
// on-disk byte cache in front of the signed-URL fetch and the ordered
// alternative-source fallback chain.
package docstore

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// unsafeChars matches everything not allowed in a cache file name.
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// CachedFile describes one on-disk cache entry for the admin surface.
type CachedFile struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// DiskCache stores retrieved document bytes under
// {documentID}_{sanitizedName}. Entries are written once per successful
// retrieval and never evicted except by explicit admin purge. Concurrent
// identical writes to the same path are tolerated: content is deterministic
// per document ID.
type DiskCache struct {
	dir string
}

// NewDiskCache creates the cache directory if needed.
func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "docstore: create cache dir %s", dir)
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache directory path.
func (c *DiskCache) Dir() string {
	return c.dir
}

// Key returns the cache file name for a document.
func (c *DiskCache) Key(documentID, name string) string {
	sanitized := unsafeChars.ReplaceAllString(name, "_")
	if sanitized == "" {
		sanitized = "document"
	}
	return sanitizeID(documentID) + "_" + sanitized
}

func sanitizeID(id string) string {
	return unsafeChars.ReplaceAllString(id, "_")
}

// Read returns the cached bytes for a document ID, matching on the ID
// prefix so the caller does not need to know the document's name.
func (c *DiskCache) Read(documentID string) ([]byte, bool) {
	path, ok := c.findByID(documentID)
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Write persists document bytes. Failures here are the caller's to log and
// swallow: a failed cache write must not fail the retrieval.
func (c *DiskCache) Write(documentID, name string, data []byte) error {
	path := filepath.Join(c.dir, c.Key(documentID, name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "docstore: write cache entry %s", path)
	}
	return nil
}

// List returns all cache entries sorted by name.
func (c *DiskCache) List() ([]CachedFile, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: read cache dir %s", c.dir)
	}

	var files []CachedFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, CachedFile{
			Name:     e.Name(),
			Size:     info.Size(),
			Created:  info.ModTime(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// TotalSize returns the summed size of all cache entries.
func (c *DiskCache) TotalSize() (int64, error) {
	files, err := c.List()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total, nil
}

// PurgeOlderThan deletes entries last modified before the cutoff age.
// A zero maxAge deletes everything. Returns the number of entries removed.
func (c *DiskCache) PurgeOlderThan(maxAge time.Duration) (int, error) {
	files, err := c.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, f := range files {
		if maxAge > 0 && f.Modified.After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, f.Name)); err != nil {
			return removed, eris.Wrapf(err, "docstore: remove %s", f.Name)
		}
		removed++
	}
	return removed, nil
}

// DeleteByID removes the cache entry whose name starts with the document ID.
func (c *DiskCache) DeleteByID(documentID string) (bool, error) {
	path, ok := c.findByID(documentID)
	if !ok {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, eris.Wrapf(err, "docstore: remove %s", path)
	}
	return true, nil
}

func (c *DiskCache) findByID(documentID string) (string, bool) {
	prefix := sanitizeID(documentID) + "_"
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			return filepath.Join(c.dir, e.Name()), true
		}
	}
	return "", false
}
