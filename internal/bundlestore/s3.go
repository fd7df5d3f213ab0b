package bundlestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"pkt.systems/pslog"
	"pkt.systems/resultnav/internal/loggingutil"
)

const maxBundleBytes = 1 << 20

// S3Config configures an S3 store.
type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	Insecure       bool
	ForcePathStyle bool
	// Creds overrides the default environment/file/IAM credential chain.
	Creds     *credentials.Credentials
	Transport http.RoundTripper
	Sealer    *Sealer
	Logger    pslog.Logger
}

// S3 stores bundles as objects in an S3-compatible bucket.
type S3 struct {
	client *minio.Client
	cfg    S3Config
	logger pslog.Logger
}

// NewS3 builds a minio client for cfg. The bucket must already exist.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bundlestore: s3 bucket required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.Region != "" {
			endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
		} else {
			endpoint = "s3.amazonaws.com"
		}
	}
	creds := cfg.Creds
	if creds == nil {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}
	options := &minio.Options{
		Creds:     creds,
		Secure:    !cfg.Insecure,
		Region:    cfg.Region,
		Transport: cfg.Transport,
	}
	if cfg.ForcePathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}
	client, err := minio.New(endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("bundlestore: s3 client: %w", err)
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &S3{
		client: client,
		cfg:    cfg,
		logger: loggingutil.WithSubsystem(cfg.Logger, "bundlestore", "s3"),
	}, nil
}

// Ready reports an error when the bucket is unreachable or missing.
func (s *S3) Ready(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bundlestore: s3 bucket %q: %w", s.cfg.Bucket, err)
	}
	if !ok {
		return fmt.Errorf("bundlestore: s3 bucket %q does not exist", s.cfg.Bucket)
	}
	return nil
}

func (s *S3) object(key string) string {
	return path.Join(s.cfg.Prefix, "bundles", key+diskExt)
}

// Save uploads bundle under key.
func (s *S3) Save(ctx context.Context, key string, bundle map[string]string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	payload, err := sealEncode(s.cfg.Sealer, key, bundle)
	if err != nil {
		return err
	}
	object := s.object(key)
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, object, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/yaml"})
	if err != nil {
		s.logger.Warn("bundlestore.s3.put_failed", "key", key, "object", object, "error", err)
		return fmt.Errorf("bundlestore: s3 put %q: %w", key, err)
	}
	s.logger.Trace("bundlestore.s3.saved", "key", key, "object", object, "bytes", len(payload))
	return nil
}

// Load downloads the bundle stored under key.
func (s *S3) Load(ctx context.Context, key string) (map[string]string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.object(key), minio.GetObjectOptions{})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bundlestore: s3 get %q: %w", key, err)
	}
	defer obj.Close()
	payload, err := io.ReadAll(io.LimitReader(obj, maxBundleBytes))
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bundlestore: s3 read %q: %w", key, err)
	}
	return openDecode(s.cfg.Sealer, key, payload)
}

// Delete removes the object for key.
func (s *S3) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	object := s.object(key)
	if _, err := s.client.StatObject(ctx, s.cfg.Bucket, object, minio.StatObjectOptions{}); err != nil {
		if isS3NotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("bundlestore: s3 stat %q: %w", key, err)
	}
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, object, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("bundlestore: s3 remove %q: %w", key, err)
	}
	return nil
}

// Close is a no-op for the S3 client.
func (s *S3) Close() error { return nil }

func isS3NotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound {
		return true
	}
	switch resp.Code {
	case "NoSuchKey", "NoSuchObject":
		return true
	}
	return false
}
