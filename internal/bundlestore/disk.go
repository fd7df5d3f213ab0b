package bundlestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pkt.systems/pslog"
	"pkt.systems/resultnav/internal/loggingutil"
)

const diskExt = ".yaml"

// DiskConfig configures a Disk store.
type DiskConfig struct {
	// Root is the directory holding one file per bundle.
	Root string
	// Sealer encrypts files at rest when set.
	Sealer *Sealer
	Logger pslog.Logger
}

// Disk stores each bundle as a file under a root directory. Writes go through
// a temp file and rename, so readers never see a partial bundle.
type Disk struct {
	root   string
	tmpDir string
	sealer *Sealer
	logger pslog.Logger
}

// NewDisk prepares the root directory and returns a Disk store.
func NewDisk(cfg DiskConfig) (*Disk, error) {
	if cfg.Root == "" {
		return nil, errors.New("bundlestore: disk root required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("bundlestore: resolve %q: %w", cfg.Root, err)
	}
	tmpDir := filepath.Join(root, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("bundlestore: prepare %q: %w", root, err)
	}
	return &Disk{
		root:   root,
		tmpDir: tmpDir,
		sealer: cfg.Sealer,
		logger: loggingutil.WithSubsystem(cfg.Logger, "bundlestore", "disk"),
	}, nil
}

// Root returns the absolute root directory.
func (d *Disk) Root() string { return d.root }

func (d *Disk) path(key string) string {
	return filepath.Join(d.root, key+diskExt)
}

// Save writes bundle under key, replacing any previous file.
func (d *Disk) Save(_ context.Context, key string, bundle map[string]string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	payload, err := sealEncode(d.sealer, key, bundle)
	if err != nil {
		return err
	}
	if err := d.writeAtomic(d.path(key), payload); err != nil {
		d.logger.Warn("bundlestore.disk.save_failed", "key", key, "error", err)
		return fmt.Errorf("bundlestore: write %q: %w", key, err)
	}
	d.logger.Trace("bundlestore.disk.saved", "key", key, "bytes", len(payload), "sealed", d.sealer != nil)
	return nil
}

// Load reads the bundle stored under key.
func (d *Disk) Load(_ context.Context, key string) (map[string]string, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bundlestore: read %q: %w", key, err)
	}
	return openDecode(d.sealer, key, data)
}

// Delete removes the file for key.
func (d *Disk) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(d.path(key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("bundlestore: remove %q: %w", key, err)
	}
	return nil
}

// Close is a no-op.
func (d *Disk) Close() error { return nil }

func (d *Disk) writeAtomic(dest string, payload []byte) error {
	tmp, err := os.CreateTemp(d.tmpDir, "bundle-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
