package socket

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/agentmon/internal/application"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
)

var ErrAlreadyRunning = errors.New("another daemon is already listening")

const staleDialTimeout = 500 * time.Millisecond

type Reply struct {
	Line       []byte
	Subscribed bool
}

type Dispatcher interface {
	Dispatch(ctx context.Context, cmd application.Command, sub *Subscriber) (Reply, error)
}

type Options struct {
	SocketPath      string
	SubscriberQueue int
	WriteTimeout    time.Duration
	Logger          *log.Logger
}

type Server struct {
	opts       Options
	hub        *Hub
	dispatcher Dispatcher
	logger     *log.Logger

	listener net.Listener
	lock     *os.File
	closed   atomic.Bool

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    conc.WaitGroup
}

func NewServer(opts Options, hub *Hub, dispatcher Dispatcher) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Server{
		opts:       opts,
		hub:        hub,
		dispatcher: dispatcher,
		logger:     logger,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Listen binds the socket. The sibling lock file is held until Close, and a leftover socket
// file is removed only while holding it and only if nothing answers on it.
func (s *Server) Listen() error {
	path := s.opts.SocketPath
	if path == "" {
		return errors.New("socket path is not configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	lock, err := lockSocket(path)
	if err != nil {
		return err
	}
	if err := clearStaleSocket(path); err != nil {
		_ = lock.Close()
		return err
	}

	listener, err := listenUnix(path)
	if err != nil {
		_ = lock.Close()
		return fmt.Errorf("listen on %s: %w", path, err)
	}
	s.listener = listener
	s.lock = lock
	s.logger.Info("listening", "socket", path)
	return nil
}

func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("serve called before listen")
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", "err", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		s.wg.Go(func() {
			defer s.untrack(conn)
			s.handle(ctx, conn)
		})
	}
}

func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if s.listener != nil {
		if closeErr := s.listener.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = fmt.Errorf("close listener: %w", closeErr)
		}
	}
	if removeErr := os.Remove(s.opts.SocketPath); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		err = errors.Join(err, fmt.Errorf("remove socket file: %w", removeErr))
	}
	if s.lock != nil {
		_ = s.lock.Close()
	}
	return err
}

func (s *Server) Shutdown(timeout time.Duration) {
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.mu.Lock()
		pending := len(s.conns)
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		s.logger.Warn("forced connections closed", "pending", pending)
		<-done
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connID := uuid.NewString()
	logger := s.logger.With("conn", connID[:8])
	logger.Debug("connection accepted")

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		cmd, err := DecodeCommand(line)
		if err != nil {
			logger.Debug("rejected request", "err", err)
			if writeErr := s.write(conn, EncodeError(err, 0)); writeErr != nil {
				return
			}
			continue
		}

		var sub *Subscriber
		if _, ok := cmd.(application.SubscribeCommand); ok {
			sub = NewSubscriber(connID, conn, s.opts.SubscriberQueue, s.opts.WriteTimeout)
		}

		reply, err := s.dispatcher.Dispatch(ctx, cmd, sub)
		if err != nil {
			logger.Debug("dispatch aborted", "err", err)
			return
		}

		if reply.Subscribed {
			s.serveSubscriber(conn, sub, logger)
			return
		}

		if err := s.write(conn, reply.Line); err != nil {
			logger.Debug("write reply failed", "err", err)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			tooLong := fmt.Errorf("%w: line exceeds %d bytes", application.ErrInvalidCommand, MaxLineBytes)
			_ = s.write(conn, EncodeError(tooLong, 0))
			return
		}
		if !isClosedOrTimeout(err) {
			logger.Debug("read failed", "err", err)
		}
	}
}

func (s *Server) serveSubscriber(conn net.Conn, sub *Subscriber, logger *log.Logger) {
	logger.Info("subscriber connected")
	s.wg.Go(sub.Run)

	_, _ = io.Copy(io.Discard, conn)

	sub.Close()
	s.hub.Remove(sub)
	logger.Info("subscriber disconnected")
}

func (s *Server) write(conn net.Conn, line []byte) error {
	if s.opts.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	_, err := conn.Write(line)
	return err
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func clearStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat socket: %w", err)
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}

	conn, err := net.DialTimeout("unix", path, staleDialTimeout)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("%w at %s", ErrAlreadyRunning, path)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

func isClosedOrTimeout(err error) bool {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
