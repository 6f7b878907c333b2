package application

import (
	"fmt"
	"time"

	"github.com/bnema/agentmon/internal/domain"
)

type ProcessorOptions struct {
	// MaxClosedSessions bounds retained closed sessions; 0 keeps all of them.
	MaxClosedSessions int
}

type Processor struct {
	store     *domain.Store
	maxClosed int
	usage     *domain.Usage
}

func NewProcessor(store *domain.Store, opts ProcessorOptions) *Processor {
	return &Processor{
		store:     store,
		maxClosed: opts.MaxClosedSessions,
	}
}

func (p *Processor) Apply(cmd Command, now time.Time) Outcome {
	if cmd == nil {
		return Outcome{Err: ErrInvalidCommand}
	}

	var out Outcome
	switch c := cmd.(type) {
	case SetCommand:
		out = p.set(c, now)
	case CloseCommand:
		out = p.close(c, now)
	case RemoveCommand:
		out = p.remove(c)
	case ListCommand:
		overview := p.Overview(now)
		out = Outcome{Result: Result{Overview: &overview}}
	case SubscribeCommand:
		overview := p.Overview(now)
		out = Outcome{Result: Result{Overview: &overview}, Subscribe: true}
	case ResurrectCommand:
		out = p.resurrect(c)
	case StopCommand:
		out = p.stop(c)
	case PingCommand:
		out = Outcome{Result: Result{Daemon: &DaemonInfo{
			Sessions:       p.store.Len(),
			ActiveSessions: p.store.ActiveCount(),
		}}}
	default:
		out = Outcome{Err: fmt.Errorf("%w: %s", ErrInvalidCommand, cmd.Name())}
	}

	out.Command = cmd.Name()
	return out
}

func (p *Processor) Overview(now time.Time) Overview {
	sessions := p.store.List(now)
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, p.view(session, now))
	}

	overview := Overview{Sessions: views}
	if p.usage != nil {
		usage := *p.usage
		overview.Usage = &usage
	}
	return overview
}

func (p *Processor) RecordUsage(usage domain.Usage) Event {
	stored := usage
	p.usage = &stored
	announced := usage
	return Event{Kind: EventUsageChanged, Usage: &announced}
}

func (p *Processor) UpstreamFailure(err error) Event {
	return Event{
		Kind:    EventWarning,
		Code:    CodeUpstreamUnavailable,
		Message: fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err).Error(),
	}
}

func (p *Processor) set(c SetCommand, now time.Time) Outcome {
	previous, existed := p.store.Get(c.SessionID)

	session, created, oldPriority, oldStatus, err := p.store.GetOrCreate(c.SessionID, domain.SessionFields{
		Status:     c.Status,
		Priority:   c.Priority,
		WorkingDir: c.WorkingDir,
	}, now)
	if err != nil {
		return Outcome{Err: fmt.Errorf("set session %q: %w", c.SessionID, err)}
	}

	view := p.view(session, now)
	out := Outcome{Result: Result{Session: &view}}

	closedNow := session.Status == domain.StatusClosed && (created || oldStatus != domain.StatusClosed)
	changed := created ||
		session.Status != oldStatus ||
		session.Priority != oldPriority ||
		(existed && !sameDir(previous.WorkingDir, session.WorkingDir))

	switch {
	case closedNow:
		out.Events = append(out.Events, Event{Kind: EventSessionClosed, Session: &view})
		out.Events = append(out.Events, p.trim()...)
	case changed:
		out.Events = append(out.Events, Event{Kind: EventSessionChanged, Session: &view})
	}

	return out
}

func (p *Processor) close(c CloseCommand, now time.Time) Outcome {
	previous, ok := p.store.Get(c.SessionID)
	if !ok {
		return Outcome{Err: fmt.Errorf("close session %q: %w", c.SessionID, domain.ErrSessionNotFound)}
	}

	session, err := p.store.Close(c.SessionID, now)
	if err != nil {
		return Outcome{Err: fmt.Errorf("close session %q: %w", c.SessionID, err)}
	}

	view := p.view(session, now)
	out := Outcome{Result: Result{Session: &view}}
	if previous.Status != domain.StatusClosed {
		out.Events = append(out.Events, Event{Kind: EventSessionClosed, Session: &view})
		out.Events = append(out.Events, p.trim()...)
	}
	return out
}

func (p *Processor) remove(c RemoveCommand) Outcome {
	if err := p.store.Remove(c.SessionID); err != nil {
		return Outcome{Err: fmt.Errorf("remove session %q: %w", c.SessionID, err)}
	}
	return Outcome{Events: []Event{{Kind: EventSessionDeleted, SessionID: c.SessionID}}}
}

func (p *Processor) resurrect(c ResurrectCommand) Outcome {
	dir, command, err := p.store.Resurrect(c.SessionID)
	if err != nil {
		return Outcome{Err: fmt.Errorf("resurrect session %q: %w", c.SessionID, err)}
	}
	return Outcome{Result: Result{Resurrection: &Resurrection{
		SessionID:  c.SessionID,
		WorkingDir: dir,
		Command:    command,
	}}}
}

func (p *Processor) stop(c StopCommand) Outcome {
	active := p.store.ActiveCount()
	if active > 0 && !c.Confirmed {
		return Outcome{
			Err:            fmt.Errorf("%w (%d active)", ErrUnconfirmed, active),
			ActiveSessions: active,
		}
	}
	return Outcome{Shutdown: true}
}

func (p *Processor) trim() []Event {
	evicted := p.store.TrimClosed(p.maxClosed)
	events := make([]Event, 0, len(evicted))
	for _, id := range evicted {
		events = append(events, Event{Kind: EventSessionDeleted, SessionID: id})
	}
	return events
}

func (p *Processor) view(session domain.Session, now time.Time) SessionView {
	return NewSessionView(session, now, p.store.InactiveAfter())
}

func sameDir(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
