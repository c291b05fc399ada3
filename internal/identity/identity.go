// Package identity persists the engine's long-lived Ed25519 signing
// keypair: load-or-none, generate-and-save, and the load-or-generate
// combinator the engine uses at startup.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// CheckKeyFilePermissions verifies that a key file is not readable by
// group or others.
func CheckKeyFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil // Windows file permissions work differently
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("identity: cannot stat key file %s: %w", path, err)
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("identity: key file %s has insecure permissions %04o (expected 0600); fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// LoadOrNone reads and decodes the keypair at path. A missing file returns
// (nil, false, nil) rather than an error; any other read or decode failure
// is returned as an error.
func LoadOrNone(path string) (crypto.PrivKey, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("identity: read key file %s: %w", path, err)
	}
	if err := CheckKeyFilePermissions(path); err != nil {
		return nil, false, err
	}
	priv, err := crypto.UnmarshalPrivateKey(data)
	if err != nil {
		return nil, false, fmt.Errorf("identity: unmarshal key from %s: %w", path, err)
	}
	return priv, true, nil
}

// GenerateAndSave creates a new Ed25519 keypair, creates the parent
// directory if needed, and writes the protobuf encoding to path with
// owner-only permissions.
func GenerateAndSave(path string) (crypto.PrivKey, error) {
	priv, _, err := crypto.GenerateKeyPair(crypto.Ed25519, -1)
	if err != nil {
		return nil, fmt.Errorf("identity: generate keypair: %w", err)
	}
	data, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal private key: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("identity: create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("identity: save key to %s: %w", path, err)
	}
	return priv, nil
}

// LoadOrGenerate loads the keypair at path, generating and persisting a
// new one if the file does not exist.
func LoadOrGenerate(path string) (crypto.PrivKey, error) {
	priv, ok, err := LoadOrNone(path)
	if err != nil {
		return nil, err
	}
	if ok {
		return priv, nil
	}
	return GenerateAndSave(path)
}

// Delete removes the key file at path. Removing an absent file is not an
// error.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("identity: delete key file %s: %w", path, err)
	}
	return nil
}

// PeerIDFromKeyFile loads (or generates) a key file and returns the
// derived peer ID.
func PeerIDFromKeyFile(path string) (peer.ID, error) {
	priv, err := LoadOrGenerate(path)
	if err != nil {
		return "", err
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("identity: derive peer ID: %w", err)
	}
	return id, nil
}
