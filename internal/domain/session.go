package domain

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusWorking   Status = "working"
	StatusAttention Status = "attention"
	StatusQuestion  Status = "question"
	StatusClosed    Status = "closed"
)

func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusWorking, StatusAttention, StatusQuestion, StatusClosed:
		return true
	default:
		return false
	}
}

type HistoryEntry struct {
	Status Status
	At     time.Time
}

type Session struct {
	ID          string
	Status      Status
	Priority    uint32
	WorkingDir  *string
	History     []HistoryEntry
	CreatedAt   time.Time
	StatusSince time.Time
}

func (s Session) Elapsed(now time.Time) time.Duration {
	elapsed := now.Sub(s.StatusSince)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func (s Session) Inactive(now time.Time, threshold time.Duration) bool {
	if s.Status == StatusClosed || threshold <= 0 {
		return false
	}
	return s.Elapsed(now) > threshold
}

func (s Session) Active() bool {
	return s.Status != StatusClosed
}

func (s Session) clone() Session {
	out := s
	if s.WorkingDir != nil {
		dir := *s.WorkingDir
		out.WorkingDir = &dir
	}
	out.History = append([]HistoryEntry(nil), s.History...)
	return out
}

func appendHistory(history []HistoryEntry, entry HistoryEntry, capacity int) []HistoryEntry {
	history = append(history, entry)
	if capacity > 0 && len(history) > capacity {
		drop := len(history) - capacity
		history = append(history[:0:0], history[drop:]...)
	}
	return history
}
