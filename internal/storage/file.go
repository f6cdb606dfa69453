package storage

import (
	"context"
	"crypto/rand"
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
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

// fileEnvelope is the on-disk layout. Plain files carry Values, encrypted
// files carry Salt and Sealed (nonce followed by the secretbox output).
type fileEnvelope struct {
	Values map[string]string `json:"values,omitempty"`
	Salt   []byte            `json:"salt,omitempty"`
	Sealed []byte            `json:"sealed,omitempty"`
}

// FileStorage keeps values in a single JSON file, rewritten on every change.
// With a secret the values are sealed with NaCl secretbox under a scrypt key.
type FileStorage struct {
	mu     sync.Mutex
	path   string
	secret string
	salt   []byte
	key    *[keySize]byte
	data   map[string]string
}

// OpenFileStorage loads path if it exists. An empty secret stores plain JSON.
func OpenFileStorage(path, secret string) (*FileStorage, error) {
	if path == "" {
		return nil, errors.New("file storage path is required")
	}

	s := &FileStorage{
		path:   path,
		secret: secret,
		data:   make(map[string]string),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read storage file: %w", err)
	}
	if len(raw) == 0 {
		return s, nil
	}

	var env fileEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse storage file: %w", err)
	}

	if env.Sealed == nil {
		if env.Values != nil {
			s.data = env.Values
		}
		return s, nil
	}

	if secret == "" {
		return nil, ErrDecrypt
	}
	s.salt = env.Salt
	if err := s.deriveKey(); err != nil {
		return nil, err
	}
	if len(env.Sealed) < nonceSize {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], env.Sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, env.Sealed[nonceSize:], &nonce, s.key)
	if !ok {
		return nil, ErrDecrypt
	}
	if err := json.Unmarshal(plain, &s.data); err != nil {
		return nil, fmt.Errorf("parse decrypted storage: %w", err)
	}
	return s, nil
}

func (s *FileStorage) deriveKey() error {
	if s.salt == nil {
		s.salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, s.salt); err != nil {
			return fmt.Errorf("generate salt: %w", err)
		}
	}
	k, err := scrypt.Key([]byte(s.secret), s.salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return fmt.Errorf("derive storage key: %w", err)
	}
	s.key = new([keySize]byte)
	copy(s.key[:], k)
	return nil
}

func (s *FileStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	return v, ok, nil
}

func (s *FileStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return s.flush()
}

func (s *FileStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flush()
}

func (s *FileStorage) Close() error { return nil }

// flush writes the file atomically. Caller holds mu.
func (s *FileStorage) flush() error {
	env := fileEnvelope{Values: s.data}

	if s.secret != "" {
		if s.key == nil {
			if err := s.deriveKey(); err != nil {
				return err
			}
		}
		plain, err := json.Marshal(s.data)
		if err != nil {
			return err
		}
		var nonce [nonceSize]byte
		if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
			return fmt.Errorf("generate nonce: %w", err)
		}
		env = fileEnvelope{
			Salt:   s.salt,
			Sealed: secretbox.Seal(nonce[:], plain, &nonce, s.key),
		}
	}

	raw, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write storage file: %w", err)
	}
	return os.Rename(tmp, s.path)
}
