package uploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/spboyer/sqleval/internal/config"
	"google.golang.org/api/option"
)

// GCSUploader uploads run directories to Google Cloud Storage.
type GCSUploader struct {
	cfg    config.GCSConfig
	client *storage.Client
}

// NewGCS constructs an uploader from GCS configuration.
func NewGCS(ctx context.Context, cfg config.GCSConfig) (*GCSUploader, error) {
	if !cfg.Enabled {
		return &GCSUploader{cfg: cfg}, nil
	}
	var opts []option.ClientOption
	if creds := strings.TrimSpace(cfg.CredentialsFile); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	return &GCSUploader{cfg: cfg, client: client}, nil
}

func (u *GCSUploader) Enabled() bool {
	return u.cfg.Enabled
}

// UploadDir uploads every file under dir and returns the gs:// prefix.
func (u *GCSUploader) UploadDir(ctx context.Context, dir string) (string, error) {
	if !u.cfg.Enabled {
		return "", nil
	}
	if u.client == nil {
		return "", fmt.Errorf("gcs uploader is not initialized")
	}
	files, root, err := collect(dir, u.cfg.Prefix)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if err := u.uploadFile(ctx, f); err != nil {
			return "", fmt.Errorf("gcs upload %s: %w", f.key, err)
		}
	}
	return fmt.Sprintf("gs://%s/%s/", u.cfg.Bucket, root), nil
}

func (u *GCSUploader) uploadFile(ctx context.Context, f localFile) error {
	file, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := u.client.Bucket(u.cfg.Bucket).Object(f.key).NewWriter(ctx)
	if _, err := io.Copy(writer, file); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}
