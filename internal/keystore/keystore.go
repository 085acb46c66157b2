// Package keystore persists a node's keypair as the two files named in
// §6: key.pub (base64 of the concatenated x||y hex) and key.sk (base64 of
// the hex-encoded secret). Grounded on the teacher's
// wallet/wallets.go LoadFile/SaveFile pattern, adapted from gob to this
// spec's base64(hex) format.
package keystore

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pbcoin/pbcoin/internal/address"
)

const (
	publicKeyFile = "key.pub"
	secretKeyFile = "key.sk"
)

// LoadOrGenerate reads an existing keypair from dir, or generates and
// persists a fresh one if none exists.
func LoadOrGenerate(dir string) (*address.KeyPair, error) {
	secretPath := filepath.Join(dir, secretKeyFile)
	if _, err := os.Stat(secretPath); err == nil {
		return Load(dir)
	}
	kp, err := address.Generate()
	if err != nil {
		return nil, err
	}
	if err := Save(dir, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// Load reads a keypair from dir's key.sk file (key.pub is redundant with
// it and is not consulted).
func Load(dir string) (*address.KeyPair, error) {
	raw, err := os.ReadFile(filepath.Join(dir, secretKeyFile))
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", secretKeyFile, err)
	}
	hexBytes, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("keystore: decode %s: %w", secretKeyFile, err)
	}
	secret, err := hex.DecodeString(string(hexBytes))
	if err != nil {
		return nil, fmt.Errorf("keystore: decode %s: %w", secretKeyFile, err)
	}
	return address.FromSecretBytes(secret), nil
}

// Save writes kp's key.pub and key.sk files under dir, creating dir if
// necessary.
func Save(dir string, kp *address.KeyPair) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("keystore: mkdir %s: %w", dir, err)
	}

	secretHex := hex.EncodeToString(kp.Secret.Serialize())
	secretB64 := base64.StdEncoding.EncodeToString([]byte(secretHex))
	if err := os.WriteFile(filepath.Join(dir, secretKeyFile), []byte(secretB64), 0o600); err != nil {
		return fmt.Errorf("keystore: write %s: %w", secretKeyFile, err)
	}

	publicB64 := address.EncodePublicB64(kp.Public)
	if err := os.WriteFile(filepath.Join(dir, publicKeyFile), []byte(publicB64), 0o644); err != nil {
		return fmt.Errorf("keystore: write %s: %w", publicKeyFile, err)
	}
	return nil
}
