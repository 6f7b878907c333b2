package socket

import (
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscriber
	logger *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Hub{
		subs:   make(map[string]*Subscriber),
		logger: logger,
	}
}

func (h *Hub) Add(sub *Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.Closed() {
		return false
	}
	h.subs[sub.ID()] = sub
	h.logger.Debug("subscriber registered", "subscriber", sub.ID(), "subscribers", len(h.subs))
	return true
}

func (h *Hub) Remove(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.subs[sub.ID()]; ok && current == sub {
		delete(h.subs, sub.ID())
		h.logger.Debug("subscriber removed", "subscriber", sub.ID(), "subscribers", len(h.subs))
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		if sub.Closed() {
			delete(h.subs, id)
		}
	}
	return len(h.subs)
}

// Broadcast queues line on every subscriber without blocking. Subscribers whose queue is full
// are disconnected; their ids are returned.
func (h *Hub) Broadcast(line []byte) []string {
	h.mu.Lock()
	var slow []*Subscriber
	for id, sub := range h.subs {
		if sub.Closed() {
			delete(h.subs, id)
			continue
		}
		if !sub.Enqueue(line) {
			delete(h.subs, id)
			slow = append(slow, sub)
		}
	}
	h.mu.Unlock()

	dropped := make([]string, 0, len(slow))
	for _, sub := range slow {
		sub.Close()
		dropped = append(dropped, sub.ID())
	}
	return dropped
}

func (h *Hub) Shutdown(notice []byte, timeout time.Duration) {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[string]*Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		if notice != nil && !sub.Enqueue(notice) {
			sub.Close()
			continue
		}
		sub.Drain()
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for i, sub := range subs {
		select {
		case <-sub.Finished():
		case <-sub.done:
		case <-deadline.C:
			h.logger.Warn("subscriber flush timed out", "pending", len(subs)-i)
			for _, rest := range subs[i:] {
				rest.Close()
			}
			return
		}
	}
}
