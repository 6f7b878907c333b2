package pass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/agentmon/internal/domain"
	"github.com/bnema/agentmon/internal/ports"
)

var ErrUnavailable = errors.New("pass command unavailable")

const (
	binary     = "pass"
	notInStore = "is not in the password store"
)

type runFunc func(ctx context.Context, input string, args ...string) (stdout string, stderr string, err error)

type Store struct {
	run runFunc
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{run: runPass}
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	_, err := s.call(ctx, key, value+"\n", "insert", "--multiline", "--force", key)
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	out, err := s.call(ctx, key, "", "show", key)
	if err != nil {
		return "", err
	}
	first, _, _ := strings.Cut(out, "\n")
	return strings.TrimSuffix(first, "\r"), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.call(ctx, key, "", "rm", "--force", key)
	if errors.Is(err, domain.ErrSecretNotFound) {
		return nil
	}
	return err
}

func (s *Store) call(ctx context.Context, key, input string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stdout, stderr, err := s.run(ctx, input, args...)
	switch {
	case err == nil:
		return stdout, nil
	case errors.Is(err, ErrUnavailable):
		return "", err
	case strings.Contains(stderr, notInStore):
		return "", fmt.Errorf("pass %s %q: %w", args[0], key, domain.ErrSecretNotFound)
	case stderr != "":
		return "", fmt.Errorf("pass %s %q: %w: %s", args[0], key, err, stderr)
	default:
		return "", fmt.Errorf("pass %s %q: %w", args[0], key, err)
	}
}

func runPass(ctx context.Context, input string, args ...string) (string, string, error) {
	path, err := exec.LookPath(binary)
	if errors.Is(err, exec.ErrNotFound) {
		return "", "", ErrUnavailable
	}
	if err != nil {
		return "", "", fmt.Errorf("locate %s: %w", binary, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}
