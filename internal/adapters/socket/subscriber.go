package socket

import (
	"net"
	"sync"
	"time"
)

type Subscriber struct {
	id           string
	conn         net.Conn
	queue        chan []byte
	writeTimeout time.Duration

	done      chan struct{}
	draining  chan struct{}
	finished  chan struct{}
	closeOnce sync.Once
	drainOnce sync.Once
	startOnce sync.Once
}

func NewSubscriber(id string, conn net.Conn, queueSize int, writeTimeout time.Duration) *Subscriber {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Subscriber{
		id:           id,
		conn:         conn,
		queue:        make(chan []byte, queueSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
		draining:     make(chan struct{}),
		finished:     make(chan struct{}),
	}
}

func (s *Subscriber) ID() string {
	return s.id
}

func (s *Subscriber) Enqueue(line []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.queue <- line:
		return true
	default:
		return false
	}
}

func (s *Subscriber) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *Subscriber) Drain() {
	s.drainOnce.Do(func() { close(s.draining) })
}

func (s *Subscriber) Finished() <-chan struct{} {
	return s.finished
}

func (s *Subscriber) Run() {
	started := false
	s.startOnce.Do(func() { started = true })
	if !started {
		return
	}

	defer close(s.finished)
	defer s.Close()

	for {
		select {
		case <-s.done:
			return
		case line := <-s.queue:
			if err := s.write(line); err != nil {
				return
			}
		case <-s.draining:
			s.flush()
			return
		}
	}
}

func (s *Subscriber) flush() {
	for {
		select {
		case line := <-s.queue:
			if err := s.write(line); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Subscriber) write(line []byte) error {
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := s.conn.Write(line)
	return err
}
