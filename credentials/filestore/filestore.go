// Package filestore is a durable credentials.Store backed by a single
// encrypted file, standing in for a device keychain. The whole record is
// sealed with ChaCha20-Poly1305 and rewritten atomically on every change, so
// a crash mid-write leaves either the old record or the new one, never a mix.
package filestore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/shiftlyhq/shiftly-go/credentials"
)

var _ credentials.Store = (*Store)(nil)

// Store reads and writes an encrypted key/value file.
type Store struct {
	path string
	key  []byte
}

// DeriveKey stretches an application secret into a sealing key via
// HKDF-SHA256. The salt binds the key to one installation.
func DeriveKey(secret, salt []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, secret, salt, []byte("shiftly credential store"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Wrap(err, "[DeriveKey] hkdf read")
	}
	return key, nil
}

// New creates a file store sealing with the given 32-byte key. The file is
// created lazily on first Set.
func New(path string, key []byte) (*Store, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Errorf("[filestore.New] key must be %d bytes", chacha20poly1305.KeySize)
	}
	return &Store{path: path, key: key}, nil
}

// Get returns the stored value for key. Any failure to read or decrypt the
// file reports absence; callers cannot distinguish a missing entry from a
// corrupt store, and must not.
func (s *Store) Get(key string) (string, bool) {
	record, err := s.load()
	if err != nil {
		return "", false
	}
	value, ok := record[key]
	return value, ok
}

// Set overwrites the value for key and rewrites the sealed file.
func (s *Store) Set(key, value string) error {
	record, err := s.load()
	if err != nil {
		// Unreadable or corrupt record: start over rather than refuse writes.
		record = map[string]string{}
	}
	record[key] = value
	if err := s.save(record); err != nil {
		return &credentials.StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Delete removes the entry for key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	record, err := s.load()
	if err != nil {
		return nil
	}
	if _, ok := record[key]; !ok {
		return nil
	}
	delete(record, key)
	if err := s.save(record); err != nil {
		return &credentials.StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (s *Store) load() (map[string]string, error) {
	sealed, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("[filestore.load] record truncated")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[filestore.load] open")
	}
	record := map[string]string{}
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, errors.Wrap(err, "[filestore.load] unmarshal")
	}
	return record, nil
}

func (s *Store) save(record map[string]string) error {
	plaintext, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "[filestore.save] marshal")
	}
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return errors.Wrap(err, "[filestore.save] aead")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "[filestore.save] nonce")
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "[filestore.save] mkdir")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return errors.Wrap(err, "[filestore.save] temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[filestore.save] write")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[filestore.save] chmod")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "[filestore.save] close")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "[filestore.save] rename")
	}
	return nil
}
