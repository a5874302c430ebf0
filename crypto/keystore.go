package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

var (
	errNilKey       = errors.New("crypto: nil private key")
	errEmptyKeyPath = errors.New("crypto: empty keystore path")
)

// WriteKeystore persists the key to path as a v3 keystore file encrypted with
// passphrase, using the standard scrypt parameters.
func WriteKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil || key.PrivateKey == nil {
		return errNilKey
	}
	if path == "" {
		return errEmptyKeyPath
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("crypto: create keystore dir: %w", err)
	}
	// ImportECDSA only writes into a directory it manages, so stage the file
	// in a scratch directory and move it to the requested path.
	scratch, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return fmt.Errorf("crypto: create keystore staging dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	ks := keystore.NewKeyStore(scratch, keystore.StandardScryptN, keystore.StandardScryptP)
	if _, err := ks.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return fmt.Errorf("crypto: encrypt key: %w", err)
	}
	entries, err := os.ReadDir(scratch)
	if err != nil {
		return fmt.Errorf("crypto: read keystore staging dir: %w", err)
	}
	if len(entries) != 1 {
		return fmt.Errorf("crypto: keystore staging produced %d files", len(entries))
	}
	staged := filepath.Join(scratch, entries[0].Name())
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("crypto: replace keystore file: %w", err)
	}
	if err := os.Rename(staged, path); err != nil {
		return fmt.Errorf("crypto: move keystore file: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("crypto: restrict keystore permissions: %w", err)
	}
	return nil
}

// ReadKeystore decrypts the v3 keystore file at path with passphrase.
func ReadKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errEmptyKeyPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: read keystore file: %w", err)
	}
	decrypted, err := keystore.DecryptKey(raw, passphrase)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt keystore file: %w", err)
	}
	return &PrivateKey{decrypted.PrivateKey}, nil
}
