package uploader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/spboyer/sqleval/internal/config"
)

type blobFileUploader interface {
	UploadFile(ctx context.Context, containerName, blobName string, file *os.File, o *azblob.UploadFileOptions) (azblob.UploadFileResponse, error)
}

// AzureUploader uploads run directories to an Azure Blob Storage container.
type AzureUploader struct {
	cfg    config.AzureConfig
	client blobFileUploader
}

// NewAzure constructs an uploader. A nil cred uses the default Azure
// credential chain.
func NewAzure(cfg config.AzureConfig, cred azcore.TokenCredential) (*AzureUploader, error) {
	if !cfg.Enabled {
		return &AzureUploader{cfg: cfg}, nil
	}
	if cred == nil {
		c, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("creating azure credential: %w", err)
		}
		cred = c
	}
	client, err := azblob.NewClient(cfg.AccountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating azure blob client: %w", err)
	}
	return &AzureUploader{cfg: cfg, client: client}, nil
}

func (u *AzureUploader) Enabled() bool {
	return u.cfg.Enabled
}

// UploadDir uploads every file under dir and returns the container URL prefix.
func (u *AzureUploader) UploadDir(ctx context.Context, dir string) (string, error) {
	if !u.cfg.Enabled {
		return "", nil
	}
	if u.client == nil {
		return "", fmt.Errorf("azure uploader is not initialized")
	}
	files, root, err := collect(dir, u.cfg.Prefix)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if err := u.uploadFile(ctx, f); err != nil {
			return "", fmt.Errorf("azure upload %s: %w", f.key, err)
		}
	}
	return fmt.Sprintf("%s/%s/%s/", strings.TrimRight(u.cfg.AccountURL, "/"), u.cfg.Container, root), nil
}

func (u *AzureUploader) uploadFile(ctx context.Context, f localFile) error {
	file, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = u.client.UploadFile(ctx, u.cfg.Container, f.key, file, nil)
	return err
}
