package chain

import (
	"context"
	"errors"
	"fmt"
	"slices"

	filestore "github.com/bnema/agentmon/internal/adapters/secrets/file"
	passstore "github.com/bnema/agentmon/internal/adapters/secrets/pass"
	"github.com/bnema/agentmon/internal/ports"
)

type Backend struct {
	Name  string
	Store ports.SecretStore
}

type Store struct {
	backends []Backend
}

var _ ports.SecretStore = (*Store)(nil)

var errNoBackends = errors.New("secret chain has no backends")

func New(backends ...Backend) (*Store, error) {
	if len(backends) == 0 {
		return nil, errNoBackends
	}
	for i, backend := range backends {
		if backend.Store == nil {
			return nil, fmt.Errorf("secret backend %d (%s) is nil", i, backend.Name)
		}
	}
	return &Store{backends: slices.Clone(backends)}, nil
}

func NewPassFirstWithFileFallback(fileRoot string) (*Store, error) {
	return New(
		Backend{Name: "pass", Store: passstore.NewStore()},
		Backend{Name: "file", Store: filestore.NewStore(fileRoot)},
	)
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	var failed failures
	for _, backend := range s.backends {
		err := backend.Store.Put(ctx, key, value)
		if err == nil {
			return nil
		}
		if interrupted(err) {
			return err
		}
		failed.add(backend.Name, "put", err)
	}
	return failed.err()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var failed failures
	for _, backend := range s.backends {
		value, err := backend.Store.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if interrupted(err) {
			return "", err
		}
		failed.add(backend.Name, "get", err)
	}
	return "", failed.err()
}

// Every backend is cleared so a stale copy cannot resurface through a later one.
func (s *Store) Delete(ctx context.Context, key string) error {
	var failed failures
	for _, backend := range s.backends {
		err := backend.Store.Delete(ctx, key)
		if err == nil {
			continue
		}
		if interrupted(err) {
			return err
		}
		failed.add(backend.Name, "delete", err)
	}
	return errors.Join(failed.errs...)
}

type failures struct {
	errs        []error
	unavailable error
}

func (f *failures) add(name, op string, err error) {
	if errors.Is(err, passstore.ErrUnavailable) {
		f.unavailable = err
		return
	}
	f.errs = append(f.errs, fmt.Errorf("%s %s: %w", name, op, err))
}

func (f failures) err() error {
	switch len(f.errs) {
	case 0:
		return f.unavailable
	case 1:
		return f.errs[0]
	default:
		return errors.Join(f.errs...)
	}
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
