// Package uploader copies finished run directories to object storage.
package uploader

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spboyer/sqleval/internal/config"
)

// Uploader copies a run directory and returns where it landed.
type Uploader interface {
	Enabled() bool
	UploadDir(ctx context.Context, dir string) (string, error)
}

type NoopUploader struct{}

func (NoopUploader) Enabled() bool { return false }

func (NoopUploader) UploadDir(context.Context, string) (string, error) { return "", nil }

// Multi fans an upload out to several backends in order.
type Multi []Uploader

func (m Multi) Enabled() bool {
	for _, u := range m {
		if u.Enabled() {
			return true
		}
	}
	return false
}

// UploadDir uploads to every enabled backend and returns their locations
// separated by ", ". It continues past failures and joins the errors.
func (m Multi) UploadDir(ctx context.Context, dir string) (string, error) {
	var locs []string
	var errs []error
	for _, u := range m {
		if !u.Enabled() {
			continue
		}
		loc, err := u.UploadDir(ctx, dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if loc != "" {
			locs = append(locs, loc)
		}
	}
	return strings.Join(locs, ", "), errors.Join(errs...)
}

// New builds the uploaders enabled in cfg. With none enabled it returns a
// NoopUploader.
func New(ctx context.Context, cfg config.UploadConfig) (Uploader, error) {
	var m Multi
	if cfg.S3.Enabled {
		u, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		m = append(m, u)
	}
	if cfg.GCS.Enabled {
		u, err := NewGCS(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		m = append(m, u)
	}
	if cfg.Azure.Enabled {
		u, err := NewAzure(cfg.Azure, nil)
		if err != nil {
			return nil, err
		}
		m = append(m, u)
	}
	if len(m) == 0 {
		return NoopUploader{}, nil
	}
	return m, nil
}

type localFile struct {
	path string
	key  string
}

// collect lists regular files under dir with object keys of the form
// <prefix>/<base(dir)>/<relative path>.
func collect(dir, prefix string) (files []localFile, keyRoot string, err error) {
	keyRoot = filepath.Base(dir)
	if p := strings.Trim(prefix, "/"); p != "" {
		keyRoot = p + "/" + keyRoot
	}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, localFile{path: path, key: keyRoot + "/" + filepath.ToSlash(rel)})
		return nil
	})
	return files, keyRoot, err
}
