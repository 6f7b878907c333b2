package application

import (
	"time"

	"github.com/bnema/agentmon/internal/domain"
)

type SessionView struct {
	Session  domain.Session
	Elapsed  time.Duration
	Inactive bool
}

func NewSessionView(session domain.Session, now time.Time, inactiveAfter time.Duration) SessionView {
	return SessionView{
		Session:  session,
		Elapsed:  session.Elapsed(now),
		Inactive: session.Inactive(now, inactiveAfter),
	}
}

type Overview struct {
	Sessions []SessionView
	Usage    *domain.Usage
}

type Resurrection struct {
	SessionID  string
	WorkingDir *string
	Command    string
}

type DaemonInfo struct {
	PID            int
	State          string
	Uptime         time.Duration
	Sessions       int
	ActiveSessions int
	Subscribers    int
}

type Result struct {
	Session      *SessionView
	Overview     *Overview
	Resurrection *Resurrection
	Daemon       *DaemonInfo
}

type Outcome struct {
	Command CommandName
	Result  Result
	Err     error
	ActiveSessions int
	Events         []Event
	Subscribe      bool
	Shutdown       bool
}
