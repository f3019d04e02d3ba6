package testutil

import (
	"archive/tar"
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// Entry is one member of a test archive. A non-empty Link makes it a symlink,
// a non-empty HardLink a tar hard link to another member.
type Entry struct {
	Name     string
	Content  string
	Mode     os.FileMode
	Link     string
	HardLink string
	Dir      bool
}

// Files converts a name → content map into regular file entries in a stable order.
func Files(files map[string]string) []Entry {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, Entry{Name: name, Content: files[name]})
	}
	return entries
}

// WriteTarGz creates a gzip-compressed tarball at dir/name.
func WriteTarGz(t *testing.T, dir, name string, entries []Entry) string {
	t.Helper()

	archivePath := filepath.Join(dir, name)
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer func() { _ = archiveFile.Close() }()

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, e := range entries {
		header := &tar.Header{Name: e.Name, Mode: int64(modeOr(e.Mode, 0o644))}
		switch {
		case e.Dir:
			header.Typeflag = tar.TypeDir
			header.Mode = 0o755
		case e.Link != "":
			header.Typeflag = tar.TypeSymlink
			header.Linkname = e.Link
		case e.HardLink != "":
			header.Typeflag = tar.TypeLink
			header.Linkname = e.HardLink
		default:
			header.Typeflag = tar.TypeReg
			header.Size = int64(len(e.Content))
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			t.Fatalf("failed to write header for %s: %v", e.Name, err)
		}
		if header.Typeflag == tar.TypeReg {
			if _, err := tarWriter.Write([]byte(e.Content)); err != nil {
				t.Fatalf("failed to write content for %s: %v", e.Name, err)
			}
		}
	}

	if err := tarWriter.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
	if err := gzipWriter.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
	return archivePath
}

// WriteZip creates a zip archive at dir/name.
func WriteZip(t *testing.T, dir, name string, entries []Entry) string {
	t.Helper()

	archivePath := filepath.Join(dir, name)
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer func() { _ = archiveFile.Close() }()

	zipWriter := zip.NewWriter(archiveFile)

	for _, e := range entries {
		if e.HardLink != "" {
			t.Fatalf("zip archives cannot hold hard link %s", e.Name)
		}
		header := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		content := e.Content
		switch {
		case e.Dir:
			header.SetMode(os.ModeDir | 0o755)
		case e.Link != "":
			header.SetMode(os.ModeSymlink | 0o777)
			content = e.Link
		default:
			header.SetMode(modeOr(e.Mode, 0o644))
		}

		w, err := zipWriter.CreateHeader(header)
		if err != nil {
			t.Fatalf("failed to write header for %s: %v", e.Name, err)
		}
		if !e.Dir {
			if _, err := w.Write([]byte(content)); err != nil {
				t.Fatalf("failed to write content for %s: %v", e.Name, err)
			}
		}
	}

	if err := zipWriter.Close(); err != nil {
		t.Fatalf("failed to close zip writer: %v", err)
	}
	return archivePath
}

func modeOr(m, def os.FileMode) os.FileMode {
	if m == 0 {
		return def
	}
	return m
}
