package tle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// ErrNoCache is returned by LoadLatest when the cache holds no usable file.
var ErrNoCache = errors.New("no cache files found")

const (
	cachePrefix = "tle_"
	cacheSuffix = ".txt"
	cacheLayout = "2006-01-02_1504" // retrieval time, minute resolution, UTC
)

// Cache keeps raw TLE text on disk, one tle_<YYYY-MM-DD_HHMM>.txt file per
// retrieval. Only the newest maxFiles are kept.
type Cache struct {
	dir      string
	maxFiles int
}

// NewCache returns a Cache rooted at dir. maxFiles <= 0 keeps five files.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{dir: dir, maxFiles: maxFiles}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

func cacheName(ts time.Time) string {
	return cachePrefix + ts.UTC().Format(cacheLayout) + cacheSuffix
}

// Write stores data as retrieved at ts, then prunes old files. The file
// appears atomically; readers never see a partial catalog.
func (c *Cache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".tle-*.tmp")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	_, werr := tmp.Write(data)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), filepath.Join(c.dir, cacheName(ts)))
	}
	if werr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache file: %w", werr)
	}

	return c.prune()
}

// LoadLatest returns the newest readable file and its retrieval time.
func (c *Cache) LoadLatest() ([]byte, time.Time, error) {
	files, err := c.listFiles()
	if err != nil {
		return nil, time.Time{}, err
	}

	var errs []error
	for i := len(files) - 1; i >= 0; i-- {
		data, err := os.ReadFile(files[i].path)
		if err == nil {
			return data, files[i].ts, nil
		}
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, time.Time{}, fmt.Errorf("reading cache file: %w", errors.Join(errs...))
	}
	return nil, time.Time{}, ErrNoCache
}

type cacheFile struct {
	path string
	ts   time.Time
}

// listFiles returns the cache files oldest first. Names that do not carry
// a valid timestamp are ignored.
func (c *Cache) listFiles() ([]cacheFile, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, cachePrefix+"*"+cacheSuffix))
	if err != nil {
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	files := make([]cacheFile, 0, len(matches))
	for _, path := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), cachePrefix), cacheSuffix)
		ts, err := time.Parse(cacheLayout, stamp)
		if err != nil {
			continue
		}
		files = append(files, cacheFile{path: path, ts: ts})
	}
	slices.SortFunc(files, func(a, b cacheFile) int { return a.ts.Compare(b.ts) })
	return files, nil
}

func (c *Cache) prune() error {
	files, err := c.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= c.maxFiles {
		return nil
	}

	var errs []error
	for _, f := range files[:len(files)-c.maxFiles] {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("pruning cache: %w", errors.Join(errs...))
	}
	return nil
}
