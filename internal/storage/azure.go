package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// Environment variables carrying Azure credentials.
const (
	EnvAzureAccount   = "AZURE_STORAGE_ACCOUNT"
	EnvAzureKey       = "AZURE_STORAGE_KEY"
	EnvAzureContainer = "AZURE_STORAGE_CONTAINER"
)

// AzureConfig identifies the storage account and container the feed lives in.
type AzureConfig struct {
	Account   string
	Key       string
	Container string
}

// AzureConfigFromEnv reads credentials from the environment. Missing values
// are a startup failure: the error names every absent variable so a broken
// deployment fails before any I/O rather than no-oping.
func AzureConfigFromEnv() (AzureConfig, error) {
	cfg := AzureConfig{
		Account:   os.Getenv(EnvAzureAccount),
		Key:       os.Getenv(EnvAzureKey),
		Container: os.Getenv(EnvAzureContainer),
	}
	var missing []string
	if cfg.Account == "" {
		missing = append(missing, EnvAzureAccount)
	}
	if cfg.Key == "" {
		missing = append(missing, EnvAzureKey)
	}
	if cfg.Container == "" {
		missing = append(missing, EnvAzureContainer)
	}
	if len(missing) > 0 {
		return AzureConfig{}, fmt.Errorf("storage: missing environment: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// AzureStore serves blobs from one Azure Blob Storage container.
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore builds a shared-key client for the configured account.
func NewAzureStore(cfg AzureConfig) (*AzureStore, error) {
	cred, err := azblob.NewSharedKeyCredential(cfg.Account, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("storage: credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: client: %w", err)
	}
	return &AzureStore{client: client, container: cfg.Container}, nil
}

func (s *AzureStore) Download(ctx context.Context, name string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: download %s: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: download %s: %w", name, err)
	}
	return data, nil
}

// Upload replaces the blob in a single PutBlob-style call; Azure commits the
// new content atomically, so feed consumers see either the old blob or the
// new one.
func (s *AzureStore) Upload(ctx context.Context, name string, data []byte, overwrite bool) error {
	var opts *azblob.UploadBufferOptions
	if !overwrite {
		opts = &azblob.UploadBufferOptions{
			AccessConditions: &blob.AccessConditions{
				ModifiedAccessConditions: &blob.ModifiedAccessConditions{
					IfNoneMatch: to.Ptr(azcore.ETagAny),
				},
			},
		}
	}
	_, err := s.client.UploadBuffer(ctx, s.container, name, data, opts)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
			return ErrExists
		}
		return fmt.Errorf("storage: upload %s: %w", name, err)
	}
	return nil
}
