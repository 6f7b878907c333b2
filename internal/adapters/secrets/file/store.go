package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/bnema/agentmon/internal/domain"
	"github.com/bnema/agentmon/internal/ports"
)

const (
	dirMode  os.FileMode = 0o700
	fileMode os.FileMode = 0o600
)

var errEmptyKey = errors.New("secret key is empty")

type Store struct {
	root string
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	path, err := s.resolve(ctx, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("create secret dir for %q: %w", key, err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(value)); err != nil {
		return fmt.Errorf("write secret %q: %w", key, err)
	}
	// atomic.WriteFile creates the temp file with the default mode.
	if err := os.Chmod(path, fileMode); err != nil {
		return fmt.Errorf("restrict secret %q: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	path, err := s.resolve(ctx, key)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("secret %q in %s: %w", key, s.root, domain.ErrSecretNotFound)
	case err != nil:
		return "", fmt.Errorf("read secret %q: %w", key, err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(ctx, key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete secret %q: %w", key, err)
	}
	return nil
}

func (s *Store) resolve(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", errEmptyKey
	}
	if !filepath.IsLocal(key) {
		return "", fmt.Errorf("invalid secret key %q: must be a relative path below the secrets dir", key)
	}
	return filepath.Join(s.root, key), nil
}
