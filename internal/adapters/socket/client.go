package socket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bnema/agentmon/internal/application"
	"github.com/cenkalti/backoff/v4"
)

var (
	ErrDaemonUnavailable  = errors.New("daemon is not running")
	ErrSubscriptionClosed = errors.New("subscription closed by daemon")
)

const defaultDialTimeout = 2 * time.Second

type RemoteError struct {
	Code           application.Code
	Message        string
	ActiveSessions int
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type Client struct {
	socketPath  string
	dialTimeout time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, dialTimeout: defaultDialTimeout}
}

func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := writeRequest(conn, req); err != nil {
		return Response{}, err
	}

	reader := bufio.NewReader(conn)
	resp, err := readResponse(reader)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, err
	}
	return resp, remoteError(resp)
}

func (c *Client) Ping(ctx context.Context) (Response, error) {
	return c.Do(ctx, Request{Cmd: string(application.CommandPing)})
}

func (c *Client) WaitReady(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 25 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		_, err := c.Ping(ctx)
		var remote *RemoteError
		if errors.As(err, &remote) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
}

func (c *Client) Subscribe(ctx context.Context, onSnapshot func(Response) error, onEvent func(EventMessage) error) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := writeRequest(conn, Request{Cmd: string(application.CommandSubscribe)}); err != nil {
		return err
	}

	reader := bufio.NewReader(conn)
	first, err := readResponse(reader)
	if err != nil {
		return err
	}
	if err := remoteError(first); err != nil {
		return err
	}
	if err := onSnapshot(first); err != nil {
		return err
	}

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return ErrSubscriptionClosed
			}
			return fmt.Errorf("read event: %w", err)
		}

		var ev EventMessage
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := onEvent(ev); err != nil {
			return err
		}
		if ev.Type == EventTypeShutdown {
			return nil
		}
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDaemonUnavailable, err)
	}
	return conn, nil
}

func writeRequest(conn net.Conn, req Request) error {
	line, err := marshalLine(req)
	if err != nil {
		return err
	}
	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func readResponse(reader *bufio.Reader) (Response, error) {
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func remoteError(resp Response) error {
	if resp.Status == StatusErr {
		return &RemoteError{
			Code:           application.Code(resp.Error),
			Message:        resp.Message,
			ActiveSessions: resp.ActiveSessions,
		}
	}
	return nil
}
