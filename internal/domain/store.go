package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

const (
	DefaultHistorySize   = 10
	DefaultInactiveAfter = time.Hour
	DefaultResumeCommand = "claude --resume {session_id}"
)

// statusGroups orders sessions for display. Inactive open sessions share the question group.
var statusGroups = map[Status]int{
	StatusAttention: 0,
	StatusWorking:   1,
	StatusQuestion:  2,
	StatusClosed:    3,
}

const inactiveGroup = 2

type SessionFields struct {
	Status     *Status
	Priority   *uint32
	WorkingDir *string
}

type StoreOptions struct {
	HistorySize   int
	InactiveAfter time.Duration
	ResumeCommand string
}

// Store holds every known session. It is not safe for concurrent use; a single owner
// serializes all calls.
type Store struct {
	sessions      map[string]*Session
	historySize   int
	inactiveAfter time.Duration
	resumeCommand string
}

func NewStore(opts StoreOptions) *Store {
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.InactiveAfter == 0 {
		opts.InactiveAfter = DefaultInactiveAfter
	}
	if strings.TrimSpace(opts.ResumeCommand) == "" {
		opts.ResumeCommand = DefaultResumeCommand
	}

	return &Store{
		sessions:      make(map[string]*Session),
		historySize:   opts.HistorySize,
		inactiveAfter: opts.InactiveAfter,
		resumeCommand: opts.ResumeCommand,
	}
}

func (s *Store) InactiveAfter() time.Duration {
	return s.inactiveAfter
}

// GetOrCreate creates the session when id is unknown, otherwise applies the supplied fields.
// It returns the resulting session, whether it was created, and the priority and status it
// had before the call (zero values on create).
func (s *Store) GetOrCreate(id string, fields SessionFields, now time.Time) (Session, bool, uint32, Status, error) {
	if id == "" {
		return Session{}, false, 0, "", ErrMissingSessionID
	}
	if fields.Status != nil && !fields.Status.Valid() {
		return Session{}, false, 0, "", ErrInvalidStatus
	}

	current, ok := s.sessions[id]
	if !ok {
		if fields.Status == nil {
			return Session{}, false, 0, "", ErrMissingStatus
		}

		session := &Session{
			ID:          id,
			Status:      *fields.Status,
			History:     []HistoryEntry{{Status: *fields.Status, At: now}},
			CreatedAt:   now,
			StatusSince: now,
		}
		if fields.Priority != nil {
			session.Priority = *fields.Priority
		}
		if fields.WorkingDir != nil {
			dir := *fields.WorkingDir
			session.WorkingDir = &dir
		}
		s.sessions[id] = session
		return session.clone(), true, 0, "", nil
	}

	oldPriority, oldStatus := current.Priority, current.Status
	if fields.Status != nil {
		s.applyStatus(current, *fields.Status, now)
	}
	if fields.Priority != nil {
		s.applyPriority(current, *fields.Priority, now)
	}
	if fields.WorkingDir != nil {
		dir := *fields.WorkingDir
		current.WorkingDir = &dir
	}

	return current.clone(), false, oldPriority, oldStatus, nil
}

func (s *Store) UpdateStatus(id string, status Status, now time.Time) (Session, error) {
	if !status.Valid() {
		return Session{}, ErrInvalidStatus
	}
	current, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	s.applyStatus(current, status, now)
	return current.clone(), nil
}

func (s *Store) UpdatePriority(id string, priority uint32, now time.Time) (Session, error) {
	current, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	s.applyPriority(current, priority, now)
	return current.clone(), nil
}

func (s *Store) Close(id string, now time.Time) (Session, error) {
	current, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if current.Status != StatusClosed {
		s.applyStatus(current, StatusClosed, now)
	}
	return current.clone(), nil
}

func (s *Store) Remove(id string) error {
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *Store) Get(id string) (Session, bool) {
	current, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return current.clone(), true
}

func (s *Store) Len() int {
	return len(s.sessions)
}

func (s *Store) ActiveCount() int {
	count := 0
	for _, session := range s.sessions {
		if session.Active() {
			count++
		}
	}
	return count
}

func (s *Store) List(now time.Time) []Session {
	out := make([]Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.clone())
	}
	SortSessions(out, now, s.inactiveAfter)
	return out
}

func SortSessions(sessions []Session, now time.Time, inactiveAfter time.Duration) {
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if ga, gb := displayGroup(a, now, inactiveAfter), displayGroup(b, now, inactiveAfter); ga != gb {
			return ga < gb
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if ea, eb := a.Elapsed(now), b.Elapsed(now); ea != eb {
			return ea > eb
		}
		return a.ID < b.ID
	})
}

func (s *Store) Resurrect(id string) (*string, string, error) {
	current, ok := s.sessions[id]
	if !ok {
		return nil, "", ErrSessionNotFound
	}

	var dir *string
	if current.WorkingDir != nil {
		value := *current.WorkingDir
		dir = &value
	}

	return dir, resumeCommand(s.resumeCommand, id, dir), nil
}

func (s *Store) TrimClosed(max int) []string {
	if max <= 0 {
		return nil
	}

	closed := make([]*Session, 0)
	for _, session := range s.sessions {
		if session.Status == StatusClosed {
			closed = append(closed, session)
		}
	}
	if len(closed) <= max {
		return nil
	}

	sort.Slice(closed, func(i, j int) bool {
		if !closed[i].StatusSince.Equal(closed[j].StatusSince) {
			return closed[i].StatusSince.Before(closed[j].StatusSince)
		}
		return closed[i].ID < closed[j].ID
	})

	evicted := make([]string, 0, len(closed)-max)
	for _, session := range closed[:len(closed)-max] {
		delete(s.sessions, session.ID)
		evicted = append(evicted, session.ID)
	}
	return evicted
}

func (s *Store) applyStatus(session *Session, status Status, now time.Time) {
	if session.Status != status {
		session.Status = status
		session.History = appendHistory(session.History, HistoryEntry{Status: status, At: now}, s.historySize)
	}
	session.StatusSince = now
}

func (s *Store) applyPriority(session *Session, priority uint32, now time.Time) {
	if session.Priority == priority {
		return
	}
	session.Priority = priority
	session.StatusSince = now
}

func displayGroup(session Session, now time.Time, inactiveAfter time.Duration) int {
	if session.Inactive(now, inactiveAfter) {
		return inactiveGroup
	}
	return statusGroups[session.Status]
}

func resumeCommand(template, id string, dir *string) string {
	quotedID := shellquote.Join(id)
	if strings.Contains(template, "{working_dir}") {
		wd := "."
		if dir != nil {
			wd = shellquote.Join(*dir)
		}
		return strings.NewReplacer("{session_id}", quotedID, "{working_dir}", wd).Replace(template)
	}

	command := strings.ReplaceAll(template, "{session_id}", quotedID)
	if dir == nil {
		return command
	}
	return "cd " + shellquote.Join(*dir) + " && " + command
}
