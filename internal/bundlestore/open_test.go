package bundlestore

import (
	"context"
	"net/url"
	"path/filepath"
	"testing"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestOpenMemoryByDefault(t *testing.T) {
	for _, raw := range []string{"", "mem://", "memory://"} {
		store, err := Open(context.Background(), raw, Options{})
		if err != nil {
			t.Fatalf("open %q: %v", raw, err)
		}
		if _, ok := store.(*Memory); !ok {
			t.Fatalf("expected *Memory for %q, got %T", raw, store)
		}
	}
}

func TestOpenDiskFromPathAndURL(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(context.Background(), dir, Options{})
	if err != nil {
		t.Fatalf("open path: %v", err)
	}
	disk, ok := store.(*Disk)
	if !ok {
		t.Fatalf("expected *Disk, got %T", store)
	}
	if disk.Root() != filepath.Clean(dir) {
		t.Fatalf("expected root %s, got %s", dir, disk.Root())
	}

	store, err = Open(context.Background(), "disk://"+filepath.ToSlash(dir), Options{})
	if err != nil {
		t.Fatalf("open url: %v", err)
	}
	if _, ok := store.(*Disk); !ok {
		t.Fatalf("expected *Disk, got %T", store)
	}
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	if _, err := Open(context.Background(), "ftp://host/x", Options{}); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

func TestParseDiskURL(t *testing.T) {
	cfg, err := ParseDiskURL(mustURL(t, "disk://var/lib/bundles/"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Root != filepath.Clean("/var/lib/bundles") {
		t.Fatalf("unexpected root %q", cfg.Root)
	}
	if _, err := ParseDiskURL(mustURL(t, "disk:///")); err == nil {
		t.Fatalf("expected missing path error")
	}
}

func TestParseS3URL(t *testing.T) {
	cfg, err := ParseS3URL(mustURL(t, "s3://localhost:9000/bundles/prod/eu?insecure=1&path-style=true&region=eu-north-1"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Endpoint != "localhost:9000" || cfg.Bucket != "bundles" || cfg.Prefix != "prod/eu" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.Insecure || !cfg.ForcePathStyle || cfg.Region != "eu-north-1" {
		t.Fatalf("unexpected flags %+v", cfg)
	}
	if _, err := ParseS3URL(mustURL(t, "s3://localhost:9000/")); err == nil {
		t.Fatalf("expected missing bucket error")
	}
	if _, err := ParseS3URL(mustURL(t, "s3://localhost/b?insecure=maybe")); err == nil {
		t.Fatalf("expected invalid insecure value error")
	}
}

func TestParseAzureURL(t *testing.T) {
	t.Setenv("AZURE_STORAGE_KEY", "a2V5")
	t.Setenv("RESULTNAV_AZURE_ACCOUNT_KEY", "")
	t.Setenv("AZURE_STORAGE_ACCOUNT_KEY", "")
	cfg, err := ParseAzureURL(mustURL(t, "azure://acct/bundles/dev?endpoint=http://127.0.0.1:10000/acct"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Account != "acct" || cfg.Container != "bundles" || cfg.Prefix != "dev" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.AccountKey != "a2V5" || cfg.Endpoint != "http://127.0.0.1:10000/acct" {
		t.Fatalf("unexpected credentials %+v", cfg)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	cfg.AccountKey = ""
	if err := cfg.validate(); err == nil {
		t.Fatalf("expected missing credential error")
	}
}

func TestAppendSASToken(t *testing.T) {
	got, err := appendSASToken("https://acct.blob.core.windows.net", "?sv=1&sig=x")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if got != "https://acct.blob.core.windows.net?sv=1&sig=x" {
		t.Fatalf("unexpected endpoint %q", got)
	}
}
