package gallery

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/lck-sdk/recorder/internal/config"
)

// Azure uploads recordings to a blob container.
type Azure struct {
	container string
	client    *azblob.Client
}

func NewAzure(cfg config.AzureConfig) (*Azure, error) {
	if cfg.Container == "" {
		return nil, errors.New("azure container is required")
	}
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, err
	}
	return &Azure{container: cfg.Container, client: client}, nil
}

func (a *Azure) Name() string { return "azure" }

func (a *Azure) Save(ctx context.Context, srcPath, album string) (string, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	key := objectKey(album, srcPath)
	if _, err := a.client.UploadFile(ctx, a.container, key, f, nil); err != nil {
		return "", fmt.Errorf("azure upload %s: %w", key, err)
	}
	return a.client.URL() + a.container + "/" + key, nil
}
