// Package archive unpacks downloaded tool archives.
//
// The archive format is a property of the host family: Windows hosts get zip
// archives, POSIX hosts get gzip-compressed tarballs. The extractor is chosen
// from the platform.Flavor, never by inspecting the file, so a mismatched
// archive is an extraction error.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/platform"
)

const (
	// DefaultMaxEntrySize bounds the uncompressed size of one archive entry.
	DefaultMaxEntrySize int64 = 4 << 30
	// DefaultMaxTotalSize bounds the uncompressed size of a whole archive.
	DefaultMaxTotalSize int64 = 16 << 30
)

var (
	// ErrExtractionFailed is returned for any extraction failure.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrUnsupportedFormat is returned by ForFormat for unknown formats.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
)

// Extractor unpacks one archive format.
type Extractor interface {
	// Format is platform.ArchiveZip or platform.ArchiveTar.
	Format() string
	// Extract unpacks archivePath into targetDir, which must not exist yet,
	// and returns targetDir. On failure nothing is left at targetDir.
	Extract(archivePath, targetDir string) (string, error)
}

// Limits bounds the amount of data an archive may expand to.
type Limits struct {
	MaxEntrySize int64
	MaxTotalSize int64
}

// DefaultLimits returns the default extraction limits.
func DefaultLimits() Limits {
	return Limits{MaxEntrySize: DefaultMaxEntrySize, MaxTotalSize: DefaultMaxTotalSize}
}

// ForFlavor returns the extractor for the host family.
func ForFlavor(f platform.Flavor) Extractor {
	e, err := ForFormat(f.ArchiveFormat(), DefaultLimits())
	if err != nil {
		return NewTarGz(DefaultLimits())
	}
	return e
}

// ForFormat returns the extractor for format.
func ForFormat(format string, limits Limits) (Extractor, error) {
	switch format {
	case platform.ArchiveZip:
		return NewZip(limits), nil
	case platform.ArchiveTar:
		return NewTarGz(limits), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// extractVia runs fill against a temporary sibling of targetDir and renames
// it into place once fill succeeds.
func extractVia(format, archivePath, targetDir string, fill func(root string) error) (string, error) {
	if _, err := os.Lstat(targetDir); err == nil {
		return "", fmt.Errorf("%w: target %s already exists", ErrExtractionFailed, targetDir)
	}

	parent := filepath.Dir(targetDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("%w: create parent dir: %w", ErrExtractionFailed, err)
	}

	tmp, err := os.MkdirTemp(parent, ".extract-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp dir: %w", ErrExtractionFailed, err)
	}

	// Track whether the temp dir still needs to be removed
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			_ = os.RemoveAll(tmp)
		}
	}()

	if err := fill(tmp); err != nil {
		return "", fmt.Errorf("%w: %s archive %s: %w", ErrExtractionFailed, format, archivePath, err)
	}
	if err := verifyLinks(tmp); err != nil {
		return "", fmt.Errorf("%w: %s archive %s: %w", ErrExtractionFailed, format, archivePath, err)
	}

	if err := os.Rename(tmp, targetDir); err != nil {
		return "", fmt.Errorf("%w: rename into place: %w", ErrExtractionFailed, err)
	}

	cleanupNeeded = false
	return targetDir, nil
}

// safeJoin resolves an entry name inside root. Names that are absolute, climb
// out of root or pass through a symlink extracted earlier are rejected, so
// every write lands where its name says.
func safeJoin(root, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty entry name")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}

	target := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, target) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}

	resolved, err := securejoin.SecureJoin(root, filepath.FromSlash(name))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	if resolved != target {
		return "", fmt.Errorf("illegal file path: %s passes through a symlink", name)
	}
	return target, nil
}

func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(os.PathSeparator))
}

// checkLink verifies that a link at target pointing to linkname stays inside root.
func checkLink(root, target, linkname string) error {
	if filepath.IsAbs(linkname) || strings.HasPrefix(linkname, "/") {
		return fmt.Errorf("illegal link target %s -> %s", target, linkname)
	}

	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))
	if !within(root, resolved) {
		return fmt.Errorf("illegal link target %s -> %s", target, linkname)
	}
	return nil
}

// verifyLinks checks every symlink of the extracted tree once all of it is on
// disk. checkLink only sees a link's own text; chained links can still point
// above root.
func verifyLinks(root string) error {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}

		dest, err := filepath.EvalSymlinks(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return checkDangling(root, path)
		case err != nil:
			return fmt.Errorf("resolve link %s: %w", path, err)
		case !within(realRoot, dest):
			return fmt.Errorf("link %s resolves outside the archive", path)
		}
		return nil
	})
}

// checkDangling walks the text of a link whose destination does not exist.
// It must stay inside root and must not pass through another link.
func checkDangling(root, path string) error {
	linkname, err := os.Readlink(path)
	if err != nil {
		return fmt.Errorf("read link %s: %w", path, err)
	}

	cur := filepath.Dir(path)
	for _, part := range strings.Split(filepath.ToSlash(linkname), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
		default:
			cur = filepath.Join(cur, part)
		}
		if !within(root, cur) {
			return fmt.Errorf("link %s resolves outside the archive", path)
		}

		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("resolve link %s: %w", path, err)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("dangling link %s passes through %s", path, cur)
		}
	}
	return nil
}

// budget tracks the remaining uncompressed bytes of an archive.
type budget struct {
	limits    Limits
	remaining int64
}

func newBudget(l Limits) *budget {
	return &budget{limits: l, remaining: l.MaxTotalSize}
}

// writeFile copies r into a new file at target, enforcing the size limits.
func (b *budget) writeFile(target string, r io.Reader, perm os.FileMode) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o600)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	limit := b.limits.MaxEntrySize
	if b.remaining < limit {
		limit = b.remaining
	}

	n, err := io.CopyN(out, r, limit+1)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if n > limit {
		return fmt.Errorf("entry %s exceeds size limit", target)
	}

	b.remaining -= n
	return nil
}
