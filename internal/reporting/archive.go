package reporting

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// ArchiveExt is appended to the experiment name to form the archive name.
const ArchiveExt = ".tar.zst"

// WriteArchive packs every file under dir into dir/<name>.tar.zst, skipping
// the archive itself, and returns the archive path. A partial archive is
// removed on failure.
func WriteArchive(dir, name string) (path string, err error) {
	path = filepath.Join(dir, name+ArchiveExt)
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return "", rmErr
	}
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	zw, err := zstd.NewWriter(file)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := zw.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	tw := tar.NewWriter(zw)
	defer func() {
		if closeErr := tw.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || p == path {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		return copyFile(tw, p)
	})
	if walkErr != nil {
		return "", fmt.Errorf("archiving %s: %w", dir, walkErr)
	}
	return path, nil
}

func copyFile(w io.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}

// ListArchive returns the entry names of a .tar.zst archive in order.
func ListArchive(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	zr, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var names []string
	tr := tar.NewReader(zr)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, h.Name)
	}
}
