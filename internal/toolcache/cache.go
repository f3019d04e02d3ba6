// Package toolcache stores extracted tools under a stable, per-key directory
// and makes new entries visible atomically.
//
// Layout: <root>/<toolID>/<version>/<arch>. An entry only ever appears through
// a rename of a fully populated staging directory, so a directory at the key
// path is always complete.
package toolcache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrCommitFailed is returned when an entry could not be committed.
	ErrCommitFailed = errors.New("tool cache commit failed")

	// ErrInvalidKey is returned for key components that would escape the cache root.
	ErrInvalidKey = errors.New("invalid tool cache key")
)

const stagingPrefix = ".staging-"

// Cache is a tool cache rooted at a directory.
type Cache struct {
	root string
}

// New creates a cache rooted at root. The directory is created lazily on commit.
func New(root string) (*Cache, error) {
	if root == "" {
		return nil, fmt.Errorf("tool cache root is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve tool cache root: %w", err)
	}

	return &Cache{root: abs}, nil
}

// Root returns the absolute cache root.
func (c *Cache) Root() string {
	return c.root
}

// Path returns the directory an entry for the key lives at.
func (c *Cache) Path(toolID, version, arch string) (string, error) {
	for _, part := range []string{toolID, version, arch} {
		if err := validateKeyPart(part); err != nil {
			return "", err
		}
	}
	return filepath.Join(c.root, toolID, version, arch), nil
}

// Lookup returns the directory of a committed entry. It never modifies the cache.
func (c *Cache) Lookup(toolID, version, arch string) (string, bool) {
	dir, err := c.Path(toolID, version, arch)
	if err != nil {
		return "", false
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}

	return dir, true
}

// Commit moves sourceDir into the cache under the key and returns the entry path.
//
// The content is first staged in a sibling directory of the key path and then
// renamed into place. If another process committed the same key first, the
// staged copy is discarded and the existing entry is returned. On failure no
// partial entry is left behind.
func (c *Cache) Commit(toolID, version, arch, sourceDir string) (string, error) {
	dest, err := c.Path(toolID, version, arch)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	info, err := os.Stat(sourceDir)
	if err != nil {
		return "", fmt.Errorf("%w: stat source: %w", ErrCommitFailed, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: source %s is not a directory", ErrCommitFailed, sourceDir)
	}

	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("%w: create cache dir: %w", ErrCommitFailed, err)
	}

	staging := filepath.Join(parent, stagingPrefix+arch+"-"+uuid.New().String())

	// Track whether the staging dir still needs to be removed
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			_ = os.RemoveAll(staging)
		}
	}()

	if err := stage(sourceDir, staging); err != nil {
		return "", fmt.Errorf("%w: stage %s: %w", ErrCommitFailed, sourceDir, err)
	}

	if err := os.Rename(staging, dest); err != nil {
		if existing, ok := c.Lookup(toolID, version, arch); ok {
			return existing, nil
		}
		return "", fmt.Errorf("%w: rename into place: %w", ErrCommitFailed, err)
	}

	cleanupNeeded = false
	return dest, nil
}

// stage moves src to dst, falling back to a deep copy when a rename is not
// possible (e.g. src lives on another filesystem).
func stage(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyTree(src, dst)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }() // read-only

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}

func validateKeyPart(part string) error {
	if part == "" || part == "." || part == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, part)
	}
	if strings.ContainsAny(part, `/\`) || strings.HasPrefix(part, stagingPrefix) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, part)
	}
	return nil
}
