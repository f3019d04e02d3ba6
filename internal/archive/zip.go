package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/platform"
)

// maxLinkTarget bounds the size of a symlink entry's content.
const maxLinkTarget = 4096

// Zip extracts zip archives.
type Zip struct {
	limits Limits
}

// NewZip creates a zip extractor.
func NewZip(limits Limits) *Zip {
	return &Zip{limits: limits}
}

// Format returns platform.ArchiveZip.
func (e *Zip) Format() string { return platform.ArchiveZip }

// Extract unpacks archivePath into targetDir.
func (e *Zip) Extract(archivePath, targetDir string) (string, error) {
	return extractVia(e.Format(), archivePath, targetDir, func(root string) error {
		return e.extract(archivePath, root)
	})
}

func (e *Zip) extract(archivePath, root string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = reader.Close() }()

	b := newBudget(e.limits)

	for _, f := range reader.File {
		name := strings.ReplaceAll(f.Name, `\`, "/")
		target, err := safeJoin(root, name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir() || strings.HasSuffix(name, "/"):
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}

		case mode&os.ModeSymlink != 0:
			if err := extractZipSymlink(root, target, f); err != nil {
				return err
			}

		default:
			if err := extractZipFile(b, target, f, mode.Perm()); err != nil {
				return err
			}
		}
	}

	return nil
}

func extractZipFile(b *budget, target string, f *zip.File, perm os.FileMode) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	if perm == 0 {
		perm = 0o644
	}
	return b.writeFile(target, rc, perm)
}

func extractZipSymlink(root, target string, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, maxLinkTarget))
	if err != nil {
		return fmt.Errorf("read link %s: %w", f.Name, err)
	}
	linkname := string(data)

	if err := checkLink(root, target, linkname); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("create symlink %s: %w", target, err)
	}
	return nil
}
