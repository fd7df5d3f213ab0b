package bundlestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"pkt.systems/pslog"
	"pkt.systems/resultnav/internal/loggingutil"
)

// AzureConfig configures an Azure Blob store. Either AccountKey or SASToken
// is required.
type AzureConfig struct {
	Account    string
	AccountKey string
	SASToken   string
	// Endpoint defaults to https://<account>.blob.core.windows.net.
	Endpoint  string
	Container string
	Prefix    string
	Sealer    *Sealer
	Logger    pslog.Logger
}

// Azure stores bundles as block blobs in one container.
type Azure struct {
	client    *azblob.Client
	container string
	prefix    string
	sealer    *Sealer
	logger    pslog.Logger
}

// NewAzure builds the blob client and creates the container when missing.
func NewAzure(ctx context.Context, cfg AzureConfig) (*Azure, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	endpoint := cfg.endpoint()
	var (
		client *azblob.Client
		err    error
	)
	if cfg.SASToken != "" {
		withSAS, serr := appendSASToken(endpoint, cfg.SASToken)
		if serr != nil {
			return nil, serr
		}
		client, err = azblob.NewClientWithNoCredential(withSAS, nil)
	} else {
		cred, credErr := azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("bundlestore: azure credentials: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("bundlestore: azure client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := client.CreateContainer(ctx, cfg.Container, nil); err != nil && !isContainerExists(err) {
		return nil, fmt.Errorf("bundlestore: azure create container: %w", err)
	}
	return &Azure{
		client:    client,
		container: cfg.Container,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		sealer:    cfg.Sealer,
		logger:    loggingutil.WithSubsystem(cfg.Logger, "bundlestore", "azure"),
	}, nil
}

func (c AzureConfig) validate() error {
	switch {
	case c.Account == "":
		return errors.New("bundlestore: azure account required")
	case c.Container == "":
		return errors.New("bundlestore: azure container required")
	case c.AccountKey == "" && c.SASToken == "":
		return errors.New("bundlestore: azure account key or SAS token required")
	}
	return nil
}

func (c AzureConfig) endpoint() string {
	if c.Endpoint != "" {
		return strings.TrimRight(c.Endpoint, "/")
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net", c.Account)
}

func (a *Azure) blobName(key string) string {
	return path.Join(a.prefix, "bundles", key+diskExt)
}

// Save uploads bundle under key.
func (a *Azure) Save(ctx context.Context, key string, bundle map[string]string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	payload, err := sealEncode(a.sealer, key, bundle)
	if err != nil {
		return err
	}
	name := a.blobName(key)
	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr("application/yaml")},
	}
	if _, err := a.client.UploadStream(ctx, a.container, name, bytes.NewReader(payload), opts); err != nil {
		a.logger.Warn("bundlestore.azure.upload_failed", "key", key, "blob", name, "error", err)
		return fmt.Errorf("bundlestore: azure upload %q: %w", key, err)
	}
	return nil
}

// Load downloads the bundle stored under key.
func (a *Azure) Load(ctx context.Context, key string) (map[string]string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	resp, err := a.client.DownloadStream(ctx, a.container, a.blobName(key), nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bundlestore: azure download %q: %w", key, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleBytes))
	if err != nil {
		return nil, fmt.Errorf("bundlestore: azure read %q: %w", key, err)
	}
	return openDecode(a.sealer, key, payload)
}

// Delete removes the blob for key.
func (a *Azure) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := a.client.DeleteBlob(ctx, a.container, a.blobName(key), nil); err != nil {
		if isAzureNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("bundlestore: azure delete %q: %w", key, err)
	}
	return nil
}

// Close is a no-op for the blob client.
func (a *Azure) Close() error { return nil }

func appendSASToken(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("bundlestore: azure endpoint %q: %w", endpoint, err)
	}
	u.RawQuery = strings.TrimPrefix(token, "?")
	return u.String(), nil
}

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}

func isContainerExists(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusConflict && strings.EqualFold(respErr.ErrorCode, "ContainerAlreadyExists")
	}
	return false
}
