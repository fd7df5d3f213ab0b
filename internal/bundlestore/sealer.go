package bundlestore

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"pkt.systems/kryptograf"
	"pkt.systems/kryptograf/keymgmt"
)

const sealContextPrefix = "resultnav/bundle/"

// Sealer encrypts bundle payloads with a data key minted per bundle from a
// root key. The data key descriptor travels with the ciphertext; the root key
// never leaves the process.
type Sealer struct {
	kg kryptograf.Kryptograf
}

// NewSealer returns a Sealer deriving data keys from root.
func NewSealer(root keymgmt.RootKey) (*Sealer, error) {
	if root == (keymgmt.RootKey{}) {
		return nil, errors.New("bundlestore: root key required")
	}
	return &Sealer{kg: kryptograf.New(root)}, nil
}

// NewEphemeralSealer generates a fresh root key. Bundles it seals can only be
// opened by the same process.
func NewEphemeralSealer() (*Sealer, error) {
	root, err := keymgmt.GenerateRootKey()
	if err != nil {
		return nil, fmt.Errorf("bundlestore: generate root key: %w", err)
	}
	return NewSealer(root)
}

type sealedEnvelope struct {
	Descriptor string `yaml:"descriptor"`
	Ciphertext string `yaml:"ciphertext"`
}

// Seal encrypts plaintext for key. The key is bound into the data key
// context, so a sealed bundle cannot be opened under another key.
func (s *Sealer) Seal(key string, plaintext []byte) ([]byte, error) {
	mat, err := s.kg.MintDEK([]byte(sealContextPrefix + key))
	if err != nil {
		return nil, fmt.Errorf("bundlestore: mint key for %q: %w", key, err)
	}
	defer mat.Zero()
	desc, err := mat.Descriptor.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("bundlestore: marshal descriptor for %q: %w", key, err)
	}
	var buf bytes.Buffer
	writer, err := s.kg.EncryptWriter(&buf, mat)
	if err != nil {
		return nil, fmt.Errorf("bundlestore: encrypt %q: %w", key, err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		writer.Close()
		return nil, fmt.Errorf("bundlestore: encrypt %q write: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("bundlestore: encrypt %q close: %w", key, err)
	}
	out, err := yaml.Marshal(sealedEnvelope{
		Descriptor: base64.StdEncoding.EncodeToString(desc),
		Ciphertext: base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if err != nil {
		return nil, fmt.Errorf("bundlestore: encode envelope for %q: %w", key, err)
	}
	return out, nil
}

// Open reverses Seal.
func (s *Sealer) Open(key string, sealed []byte) ([]byte, error) {
	var env sealedEnvelope
	if err := yaml.Unmarshal(sealed, &env); err != nil {
		return nil, fmt.Errorf("bundlestore: decode envelope for %q: %w", key, err)
	}
	descBytes, err := base64.StdEncoding.DecodeString(env.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("bundlestore: decode descriptor for %q: %w", key, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("bundlestore: decode ciphertext for %q: %w", key, err)
	}
	var desc keymgmt.Descriptor
	if err := desc.UnmarshalBinary(descBytes); err != nil {
		return nil, fmt.Errorf("bundlestore: descriptor for %q: %w", key, err)
	}
	mat, err := s.kg.ReconstructDEK([]byte(sealContextPrefix+key), desc)
	if err != nil {
		return nil, fmt.Errorf("bundlestore: reconstruct key for %q: %w", key, err)
	}
	defer mat.Zero()
	reader, err := s.kg.DecryptReader(bytes.NewReader(ciphertext), mat)
	if err != nil {
		return nil, fmt.Errorf("bundlestore: decrypt %q: %w", key, err)
	}
	defer reader.Close()
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("bundlestore: decrypt %q read: %w", key, err)
	}
	return plaintext, nil
}
