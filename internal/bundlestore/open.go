package bundlestore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pkt.systems/pslog"
)

// Options apply to every backend Open builds.
type Options struct {
	// Sealer encrypts bundles in the disk and object backends.
	Sealer *Sealer
	Logger pslog.Logger
}

// Open builds the store described by rawURL:
//
//	mem://                                  process memory (default)
//	disk:///var/lib/resultnav/bundles       YAML files under a directory
//	s3://host:9000/bucket/prefix?insecure=1 S3-compatible object storage
//	azure://account/container/prefix        Azure Blob Storage
//
// A bare filesystem path is treated as a disk URL.
func Open(ctx context.Context, rawURL string, opts Options) (Store, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL != "" && !strings.Contains(rawURL, "://") {
		return NewDisk(DiskConfig{Root: rawURL, Sealer: opts.Sealer, Logger: opts.Logger})
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("bundlestore: parse %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "", "mem", "memory":
		return NewMemory(), nil
	case "disk":
		cfg, err := ParseDiskURL(u)
		if err != nil {
			return nil, err
		}
		cfg.Sealer, cfg.Logger = opts.Sealer, opts.Logger
		return NewDisk(cfg)
	case "s3":
		cfg, err := ParseS3URL(u)
		if err != nil {
			return nil, err
		}
		cfg.Sealer, cfg.Logger = opts.Sealer, opts.Logger
		store, err := NewS3(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.Ready(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "azure":
		cfg, err := ParseAzureURL(u)
		if err != nil {
			return nil, err
		}
		cfg.Sealer, cfg.Logger = opts.Sealer, opts.Logger
		return NewAzure(ctx, cfg)
	default:
		return nil, fmt.Errorf("bundlestore: scheme %q not supported", u.Scheme)
	}
}

// ParseDiskURL parses disk:///abs/path. disk://rel/path is taken as /rel/path.
func ParseDiskURL(u *url.URL) (DiskConfig, error) {
	pathPart := strings.TrimSpace(u.Path)
	if host := strings.TrimSpace(u.Host); host != "" {
		pathPart = "/" + host + "/" + strings.TrimPrefix(pathPart, "/")
	}
	if pathPart == "" || pathPart == "/" {
		return DiskConfig{}, fmt.Errorf("bundlestore: disk path required (e.g. disk:///var/lib/resultnav/bundles)")
	}
	return DiskConfig{Root: filepath.Clean(pathPart)}, nil
}

// ParseS3URL parses s3://host[:port]/bucket[/prefix]. Query parameters:
// insecure, path-style, region.
func ParseS3URL(u *url.URL) (S3Config, error) {
	endpoint := strings.TrimSpace(u.Host)
	if endpoint == "" {
		return S3Config{}, fmt.Errorf("bundlestore: s3 URL missing host (expected s3://host[:port]/bucket[/prefix])")
	}
	bucket, prefix := splitBucketPath(u.Path)
	if bucket == "" {
		return S3Config{}, fmt.Errorf("bundlestore: s3 URL missing bucket (expected s3://host[:port]/bucket[/prefix])")
	}
	query := u.Query()
	cfg := S3Config{
		Endpoint: endpoint,
		Bucket:   bucket,
		Prefix:   prefix,
		Region:   strings.TrimSpace(query.Get("region")),
	}
	if v := query.Get("insecure"); v != "" {
		ok, err := strconv.ParseBool(v)
		if err != nil {
			return S3Config{}, fmt.Errorf("bundlestore: s3 insecure=%q: %w", v, err)
		}
		cfg.Insecure = ok
	}
	if v := query.Get("path-style"); v != "" {
		ok, err := strconv.ParseBool(v)
		if err != nil {
			return S3Config{}, fmt.Errorf("bundlestore: s3 path-style=%q: %w", v, err)
		}
		cfg.ForcePathStyle = ok
	}
	return cfg, nil
}

// ParseAzureURL parses azure://account/container[/prefix]. Credentials come
// from the sas query parameter or the usual AZURE_STORAGE_* variables.
func ParseAzureURL(u *url.URL) (AzureConfig, error) {
	account := strings.TrimSpace(u.Host)
	if account == "" {
		account = firstEnv("AZURE_STORAGE_ACCOUNT", "AZURE_STORAGE_ACCOUNT_NAME")
	}
	if account == "" {
		return AzureConfig{}, fmt.Errorf("bundlestore: azure account required (azure://account/container or AZURE_STORAGE_ACCOUNT)")
	}
	container, prefix := splitBucketPath(u.Path)
	if container == "" {
		return AzureConfig{}, fmt.Errorf("bundlestore: azure URL missing container (expected azure://account/container[/prefix])")
	}
	query := u.Query()
	sas := strings.TrimSpace(query.Get("sas"))
	if sas == "" {
		sas = firstEnv("RESULTNAV_AZURE_SAS_TOKEN", "AZURE_STORAGE_SAS_TOKEN")
	}
	return AzureConfig{
		Account:    account,
		AccountKey: firstEnv("RESULTNAV_AZURE_ACCOUNT_KEY", "AZURE_STORAGE_ACCOUNT_KEY", "AZURE_STORAGE_KEY"),
		SASToken:   sas,
		Endpoint:   strings.TrimSpace(query.Get("endpoint")),
		Container:  container,
		Prefix:     prefix,
	}, nil
}

func splitBucketPath(p string) (string, string) {
	p = strings.Trim(strings.TrimPrefix(p, "/"), "/")
	if p == "" {
		return "", ""
	}
	parts := strings.SplitN(p, "/", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.Trim(parts[1], "/")
	}
	return strings.TrimSpace(parts[0]), ""
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}
