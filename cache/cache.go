package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// File-backed cache for rendered book pages. Entries are keyed by the
// request path; the xxhash suffix keeps filenames safe and collision-free.

const cacheRoot = "cache"

func PagePath(requestPath string) string {
	hash := xxhash.Sum64String(requestPath)
	name := strings.Trim(strings.ReplaceAll(requestPath, "/", "_"), "_")
	return filepath.Join(cacheRoot, fmt.Sprintf("%s_%016x.html", name, hash))
}

func ensureCacheDir() error {
	return os.MkdirAll(cacheRoot, 0755)
}

// WritePage stores rendered HTML for a request path.
func WritePage(requestPath, html string) error {
	if err := ensureCacheDir(); err != nil {
		return err
	}
	return os.WriteFile(PagePath(requestPath), []byte(html), 0644)
}

// ReadPage returns cached HTML if present and younger than maxAge.
func ReadPage(requestPath string, maxAge time.Duration) (string, bool) {
	path := PagePath(requestPath)

	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}

	if time.Since(info.ModTime()) > maxAge {
		return "", false
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	return string(content), true
}

// ClearPage removes the cached entry for a request path.
func ClearPage(requestPath string) error {
	err := os.Remove(PagePath(requestPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ClearBook drops the cached detail page of a book. Called on every
// mutation that changes what the page shows (edit, delete, new comment).
func ClearBook(bookID int) error {
	return ClearPage(fmt.Sprintf("/book/%d", bookID))
}

// ClearAll wipes the whole page cache.
func ClearAll() error {
	return os.RemoveAll(cacheRoot)
}

// ClearOld removes cache files older than maxAge.
func ClearOld(maxAge time.Duration) error {
	return filepath.Walk(cacheRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		if info.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}

		if time.Since(info.ModTime()) > maxAge {
			os.Remove(path)
		}

		return nil
	})
}
