// Package secrets keeps credentials out of config.yaml. Values live one per
// file under a secrets directory next to the config; on Windows they are
// sealed with DPAPI for the local machine.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var ErrNotFound = errors.New("secret not found")

const (
	KeyDBPassword   = "db.password"
	KeyJWTSecret    = "jwt.secret"
	KeyServiceToken = "service.token"
)

var unsafeKey = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Keys lists the secrets the config loader reads.
func Keys() []string {
	return []string{KeyDBPassword, KeyJWTSecret, KeyServiceToken}
}

func KnownKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DirFor is the secrets directory belonging to a config file.
func DirFor(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "secrets")
}

func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	key = unsafeKey.ReplaceAllString(key, "_")
	if key == "" {
		return "empty"
	}
	return key
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".bin")
}

func (s *Store) Set(key string, value []byte) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}

	sealed, err := encrypt(value)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.dir, "secret-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_ = tmp.Chmod(0o600)

	_, writeErr := tmp.Write(sealed)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *Store) Get(key string) ([]byte, error) {
	b, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	plain, err := decrypt(b)
	if err != nil {
		return nil, fmt.Errorf("unseal %s: %w", key, err)
	}
	return plain, nil
}

func (s *Store) Delete(key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
