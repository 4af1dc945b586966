package storage

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	fileFormatVersion = 1
	saltSize          = 16
	nonceSize         = 24
	keySize           = 32
)

var ErrDecrypt = errors.New("failed to decrypt stored value")

type fileContents struct {
	Version   int               `json:"version"`
	Encrypted bool              `json:"encrypted"`
	Salt      string            `json:"salt,omitempty"`
	Entries   map[string]string `json:"entries"`
}

// FileStore persists entries as a JSON document. When a secret is configured
// values are sealed with NaCl secretbox under a scrypt-derived key.
type FileStore struct {
	mu      sync.Mutex
	path    string
	key     *[keySize]byte
	salt    []byte
	entries map[string]string
}

// OpenFileStore loads path, creating parent directories as needed. A missing file is an empty store.
func OpenFileStore(path, secret string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &FileStore{path: path, entries: make(map[string]string)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read store: %w", err)
	default:
		var contents fileContents
		if err := json.Unmarshal(data, &contents); err != nil {
			return nil, fmt.Errorf("failed to parse store %s: %w", path, err)
		}
		if contents.Version != fileFormatVersion {
			return nil, fmt.Errorf("unsupported store version %d", contents.Version)
		}
		if contents.Encrypted && secret == "" {
			return nil, fmt.Errorf("store %s is encrypted but no secret was provided", path)
		}
		if contents.Salt != "" {
			s.salt, err = base64.StdEncoding.DecodeString(contents.Salt)
			if err != nil {
				return nil, fmt.Errorf("invalid store salt: %w", err)
			}
		}
		if contents.Entries != nil {
			s.entries = contents.Entries
		}
		if !contents.Encrypted && secret != "" && len(s.entries) > 0 {
			return nil, fmt.Errorf("store %s holds plaintext entries; remove it before enabling encryption", path)
		}
	}

	if secret != "" {
		if s.salt == nil {
			s.salt = make([]byte, saltSize)
			if _, err := io.ReadFull(rand.Reader, s.salt); err != nil {
				return nil, fmt.Errorf("failed to generate salt: %w", err)
			}
		}
		derived, err := scrypt.Key([]byte(secret), s.salt, 1<<15, 8, 1, keySize)
		if err != nil {
			return nil, fmt.Errorf("failed to derive store key: %w", err)
		}
		s.key = new([keySize]byte)
		copy(s.key[:], derived)
	}

	return s, nil
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	value, err := s.open(raw)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := s.seal(value)
	if err != nil {
		return err
	}

	prev, existed := s.entries[key]
	s.entries[key] = sealed
	if err := s.flush(); err != nil {
		if existed {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

// SetMany seals every value and writes the file once
func (s *FileStore) SetMany(_ context.Context, entries map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed := make(map[string]string, len(entries))
	for k, v := range entries {
		raw, err := s.seal(v)
		if err != nil {
			return err
		}
		sealed[k] = raw
	}

	prev := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		prev[k] = v
	}
	for k, v := range sealed {
		s.entries[k] = v
	}
	if err := s.flush(); err != nil {
		s.entries = prev
		return err
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, k := range keys {
		if _, ok := s.entries[k]; ok {
			delete(s.entries, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.flush()
}

func (s *FileStore) seal(value string) (string, error) {
	if s.key == nil {
		return value, nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(value), &nonce, s.key)
	return base64.StdEncoding.EncodeToString(box), nil
}

func (s *FileStore) open(raw string) (string, error) {
	if s.key == nil {
		return raw, nil
	}
	box, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, s.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// flush writes the store atomically; callers hold s.mu
func (s *FileStore) flush() error {
	contents := fileContents{
		Version:   fileFormatVersion,
		Encrypted: s.key != nil,
		Entries:   s.entries,
	}
	if s.key != nil {
		contents.Salt = base64.StdEncoding.EncodeToString(s.salt)
	}

	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".store-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set store permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace store: %w", err)
	}
	return nil
}
