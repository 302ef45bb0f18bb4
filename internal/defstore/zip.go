package defstore

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxBundleFiles    = 512
	maxBundleFileSize = 16 << 20
)

// ExtractBundleZip unpacks an uploaded bundle archive into destDir.
// Entries escaping destDir, symlinks and oversized files are rejected
// before anything of the archive is trusted.
func ExtractBundleZip(data []byte, destDir string) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("uploaded file is not a zip archive: %w", err)
	}
	if len(reader.File) > maxBundleFiles {
		return fmt.Errorf("archive has %d entries, limit is %d", len(reader.File), maxBundleFiles)
	}

	for _, f := range reader.File {
		if err := extractEntry(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, destDir string) error {
	name := filepath.Clean(f.Name)
	if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
		return fmt.Errorf("archive entry %q escapes the bundle directory", f.Name)
	}
	target := filepath.Join(destDir, name)

	mode := f.Mode()
	if mode&os.ModeSymlink != 0 {
		return fmt.Errorf("archive entry %q is a symlink", f.Name)
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if f.UncompressedSize64 > maxBundleFileSize {
		return fmt.Errorf("archive entry %q exceeds the size limit", f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to read archive entry %q: %w", f.Name, err)
	}
	defer in.Close()

	perm := os.FileMode(0o644)
	if mode&0o100 != 0 {
		perm = 0o755
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create bundle file %q: %w", name, err)
	}
	if _, err := io.Copy(out, io.LimitReader(in, maxBundleFileSize+1)); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract archive entry %q: %w", f.Name, err)
	}
	return out.Close()
}
