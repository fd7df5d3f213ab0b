// Package bundlestore keeps the persistence bundles of tombstoned units until
// they are recreated. Backends: process memory, a local directory of YAML
// files, S3-compatible object storage and Azure Blob Storage. The disk and
// object backends can seal bundles with kryptograf envelope encryption.
package bundlestore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound indicates no bundle is stored under the key.
var ErrNotFound = errors.New("bundlestore: not found")

// Store persists string-keyed bundles under a key.
type Store interface {
	Save(ctx context.Context, key string, bundle map[string]string) error
	Load(ctx context.Context, key string) (map[string]string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// document is the on-wire form of a bundle.
type document struct {
	Key    string            `yaml:"key"`
	Values map[string]string `yaml:"values,omitempty"`
}

func validateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return errors.New("bundlestore: key required")
	case strings.ContainsAny(key, `/\`), strings.Contains(key, ".."):
		return fmt.Errorf("bundlestore: invalid key %q", key)
	}
	return nil
}

func encode(key string, bundle map[string]string) ([]byte, error) {
	data, err := yaml.Marshal(document{Key: key, Values: bundle})
	if err != nil {
		return nil, fmt.Errorf("bundlestore: encode %q: %w", key, err)
	}
	return data, nil
}

func decode(key string, data []byte) (map[string]string, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("bundlestore: decode %q: %w", key, err)
	}
	if doc.Key != "" && doc.Key != key {
		return nil, fmt.Errorf("bundlestore: %q holds bundle for %q", key, doc.Key)
	}
	out := make(map[string]string, len(doc.Values))
	maps.Copy(out, doc.Values)
	return out, nil
}

// sealEncode encodes bundle and seals it when sealer is non-nil.
func sealEncode(sealer *Sealer, key string, bundle map[string]string) ([]byte, error) {
	data, err := encode(key, bundle)
	if err != nil {
		return nil, err
	}
	if sealer == nil {
		return data, nil
	}
	return sealer.Seal(key, data)
}

func openDecode(sealer *Sealer, key string, data []byte) (map[string]string, error) {
	if sealer != nil {
		plain, err := sealer.Open(key, data)
		if err != nil {
			return nil, err
		}
		data = plain
	}
	return decode(key, data)
}
