package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Outcome string

const (
	OutcomeStarted Outcome = "started"
	OutcomeTimeout Outcome = "timeout"
	OutcomeFailed  Outcome = "failed"
)

const (
	defaultDeadline = 5 * time.Second
	pollInitial     = 25 * time.Millisecond
	pollMax         = 250 * time.Millisecond
)

var ErrExited = errors.New("process exited before becoming ready")

type LaunchConfig struct {
	Path     string
	Args     []string
	Env      []string
	LogFile  string
	Deadline time.Duration
	Ready    func(ctx context.Context) error
}

type Result struct {
	Outcome Outcome
	PID     int
	Elapsed time.Duration
	Err     error
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s after %s: %v", r.Outcome, r.Elapsed.Round(time.Millisecond), r.Err)
	}
	return fmt.Sprintf("%s (pid %d) after %s", r.Outcome, r.PID, r.Elapsed.Round(time.Millisecond))
}

func Launch(ctx context.Context, cfg LaunchConfig) Result {
	started := time.Now()
	result := func(outcome Outcome, pid int, err error) Result {
		return Result{Outcome: outcome, PID: pid, Elapsed: time.Since(started), Err: err}
	}

	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}

	output, closeOutput, err := openOutput(cfg.LogFile)
	if err != nil {
		return result(OutcomeFailed, 0, err)
	}
	defer closeOutput()

	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Stdout = output
	cmd.Stderr = output
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return result(OutcomeFailed, 0, fmt.Errorf("start %s: %w", filepath.Base(cfg.Path), err))
	}
	pid := cmd.Process.Pid

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	if cfg.Ready == nil {
		return result(OutcomeStarted, pid, nil)
	}

	pollCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	err = backoff.Retry(func() error {
		select {
		case waitErr := <-exited:
			exited <- waitErr
			if waitErr != nil {
				return backoff.Permanent(fmt.Errorf("%w: %w", ErrExited, waitErr))
			}
			return backoff.Permanent(ErrExited)
		default:
		}
		return cfg.Ready(pollCtx)
	}, backoff.WithContext(pollPolicy(), pollCtx))
	if err == nil {
		return result(OutcomeStarted, pid, nil)
	}

	if errors.Is(err, ErrExited) {
		return result(OutcomeFailed, pid, err)
	}

	_ = cmd.Process.Kill()
	<-exited
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return result(OutcomeTimeout, pid, fmt.Errorf("not ready within %s", deadline))
	}
	return result(OutcomeFailed, pid, err)
}

func pollPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = pollInitial
	policy.MaxInterval = pollMax
	policy.MaxElapsedTime = 0
	return policy
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
