package socket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/agentmon/internal/application"
	"github.com/bnema/agentmon/internal/domain"
	"github.com/tidwall/gjson"
)

const MaxLineBytes = 1 << 20

const (
	StatusOK  = "ok"
	StatusErr = "err"
)

const (
	EventTypeSessionUpdate = "session_update"
	EventTypeDelete        = "delete"
	EventTypeUsageUpdate   = "usage_update"
	EventTypeWarn          = "warn"
	EventTypeShutdown      = "shutdown"
)

type Request struct {
	Cmd        string  `json:"cmd"`
	SessionID  string  `json:"session_id,omitempty"`
	Status     *string `json:"status,omitempty"`
	Priority   *uint32 `json:"priority,omitempty"`
	WorkingDir *string `json:"working_dir,omitempty"`
	Confirmed  bool    `json:"confirmed,omitempty"`
}

type Response struct {
	Status         string          `json:"status"`
	Error          string          `json:"error,omitempty"`
	Message        string          `json:"message,omitempty"`
	ActiveSessions int             `json:"active_sessions,omitempty"`
	Session        *Snapshot       `json:"session,omitempty"`
	Sessions       []Snapshot      `json:"sessions,omitempty"`
	Usage          *UsageSnapshot  `json:"usage,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
	WorkingDir     *string         `json:"working_dir,omitempty"`
	Command        string          `json:"command,omitempty"`
	Daemon         *DaemonSnapshot `json:"daemon,omitempty"`
}

type Snapshot struct {
	SessionID      string            `json:"session_id" yaml:"session_id"`
	Status         domain.Status     `json:"status" yaml:"status"`
	Priority       uint32            `json:"priority" yaml:"priority"`
	WorkingDir     *string           `json:"working_dir" yaml:"working_dir"`
	ElapsedSeconds int64             `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Inactive       bool              `json:"inactive" yaml:"inactive"`
	CreatedAt      time.Time         `json:"created_at" yaml:"created_at"`
	StatusSince    time.Time         `json:"status_since" yaml:"status_since"`
	History        []HistorySnapshot `json:"history" yaml:"history"`
}

type HistorySnapshot struct {
	Status domain.Status `json:"status" yaml:"status"`
	At     time.Time     `json:"at" yaml:"at"`
}

type UsageSnapshot struct {
	PlanType   string           `json:"plan_type,omitempty" yaml:"plan_type,omitempty"`
	CapturedAt time.Time        `json:"captured_at" yaml:"captured_at"`
	Windows    []WindowSnapshot `json:"windows" yaml:"windows"`
}

type WindowSnapshot struct {
	Label         string    `json:"label" yaml:"label"`
	UsedPercent   float64   `json:"used_percent" yaml:"used_percent"`
	WindowSeconds int64     `json:"window_seconds" yaml:"window_seconds"`
	ResetsAt      time.Time `json:"resets_at" yaml:"resets_at"`
}

type DaemonSnapshot struct {
	PID            int    `json:"pid"`
	State          string `json:"state"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Sessions       int    `json:"sessions"`
	ActiveSessions int    `json:"active_sessions"`
	Subscribers    int    `json:"subscribers"`
}

type EventMessage struct {
	Type      string         `json:"type"`
	Session   *Snapshot      `json:"session,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Usage     *UsageSnapshot `json:"usage,omitempty"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

func DecodeCommand(line []byte) (application.Command, error) {
	line = bytes.TrimSpace(line)
	if !gjson.ValidBytes(line) || !gjson.ParseBytes(line).IsObject() {
		return nil, fmt.Errorf("%w: malformed JSON", application.ErrInvalidCommand)
	}

	name := gjson.GetBytes(line, "cmd")
	if name.Type != gjson.String || name.String() == "" {
		return nil, fmt.Errorf("%w: missing cmd", application.ErrInvalidCommand)
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", application.ErrInvalidArgument, err)
	}

	switch application.CommandName(strings.ToUpper(req.Cmd)) {
	case application.CommandSet:
		if err := requireSessionID(req); err != nil {
			return nil, err
		}
		cmd := application.SetCommand{SessionID: req.SessionID, Priority: req.Priority, WorkingDir: req.WorkingDir}
		if req.Status != nil {
			status, err := domain.ParseStatus(*req.Status)
			if err != nil {
				return nil, err
			}
			cmd.Status = &status
		}
		return cmd, nil
	case application.CommandClose:
		if err := requireSessionID(req); err != nil {
			return nil, err
		}
		return application.CloseCommand{SessionID: req.SessionID}, nil
	case application.CommandRemove:
		if err := requireSessionID(req); err != nil {
			return nil, err
		}
		return application.RemoveCommand{SessionID: req.SessionID}, nil
	case application.CommandResurrect:
		if err := requireSessionID(req); err != nil {
			return nil, err
		}
		return application.ResurrectCommand{SessionID: req.SessionID}, nil
	case application.CommandList:
		return application.ListCommand{}, nil
	case application.CommandSubscribe:
		return application.SubscribeCommand{}, nil
	case application.CommandStop:
		return application.StopCommand{Confirmed: req.Confirmed}, nil
	case application.CommandPing:
		return application.PingCommand{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown cmd %q", application.ErrInvalidCommand, req.Cmd)
	}
}

func requireSessionID(req Request) error {
	if strings.TrimSpace(req.SessionID) == "" {
		return fmt.Errorf("%w: %s requires session_id", application.ErrInvalidArgument, strings.ToUpper(req.Cmd))
	}
	return nil
}

type listResponse struct {
	Status   string         `json:"status"`
	Sessions []Snapshot     `json:"sessions"`
	Usage    *UsageSnapshot `json:"usage,omitempty"`
}

type resurrectResponse struct {
	Status     string  `json:"status"`
	SessionID  string  `json:"session_id"`
	WorkingDir *string `json:"working_dir"`
	Command    string  `json:"command"`
}

func EncodeOutcome(out application.Outcome) ([]byte, error) {
	if out.Err != nil {
		return EncodeError(out.Err, out.ActiveSessions), nil
	}

	var payload any
	switch {
	case out.Result.Overview != nil:
		sessions := make([]Snapshot, 0, len(out.Result.Overview.Sessions))
		for _, view := range out.Result.Overview.Sessions {
			sessions = append(sessions, NewSnapshot(view))
		}
		payload = listResponse{Status: StatusOK, Sessions: sessions, Usage: NewUsageSnapshot(out.Result.Overview.Usage)}
	case out.Result.Session != nil:
		snapshot := NewSnapshot(*out.Result.Session)
		payload = Response{Status: StatusOK, Session: &snapshot}
	case out.Result.Resurrection != nil:
		r := out.Result.Resurrection
		payload = resurrectResponse{Status: StatusOK, SessionID: r.SessionID, WorkingDir: r.WorkingDir, Command: r.Command}
	case out.Result.Daemon != nil:
		info := out.Result.Daemon
		payload = Response{Status: StatusOK, Daemon: &DaemonSnapshot{
			PID:            info.PID,
			State:          info.State,
			UptimeSeconds:  int64(info.Uptime / time.Second),
			Sessions:       info.Sessions,
			ActiveSessions: info.ActiveSessions,
			Subscribers:    info.Subscribers,
		}}
	default:
		payload = Response{Status: StatusOK}
	}

	return marshalLine(payload)
}

func EncodeError(err error, activeSessions int) []byte {
	line, marshalErr := marshalLine(Response{
		Status:         StatusErr,
		Error:          string(application.ErrorCode(err)),
		Message:        err.Error(),
		ActiveSessions: activeSessions,
	})
	if marshalErr != nil {
		return []byte(`{"status":"err","error":"internal","message":"encode error"}` + "\n")
	}
	return line
}

func EncodeEvent(ev application.Event) ([]byte, error) {
	msg := EventMessage{}
	switch ev.Kind {
	case application.EventSessionChanged, application.EventSessionClosed:
		if ev.Session == nil {
			return nil, fmt.Errorf("encode %s event: missing session", ev.Kind)
		}
		snapshot := NewSnapshot(*ev.Session)
		msg.Type = EventTypeSessionUpdate
		msg.Session = &snapshot
	case application.EventSessionDeleted:
		msg.Type = EventTypeDelete
		msg.SessionID = ev.SessionID
	case application.EventUsageChanged:
		msg.Type = EventTypeUsageUpdate
		msg.Usage = NewUsageSnapshot(ev.Usage)
	case application.EventWarning:
		msg.Type = EventTypeWarn
		msg.Code = string(ev.Code)
		msg.Message = ev.Message
	case application.EventShutdown:
		msg.Type = EventTypeShutdown
		msg.Reason = ev.Reason
	default:
		return nil, fmt.Errorf("encode event: unknown kind %q", ev.Kind)
	}
	return marshalLine(msg)
}

func NewSnapshot(view application.SessionView) Snapshot {
	s := view.Session
	history := make([]HistorySnapshot, 0, len(s.History))
	for _, entry := range s.History {
		history = append(history, HistorySnapshot{Status: entry.Status, At: entry.At.UTC()})
	}

	var dir *string
	if s.WorkingDir != nil {
		value := *s.WorkingDir
		dir = &value
	}

	return Snapshot{
		SessionID:      s.ID,
		Status:         s.Status,
		Priority:       s.Priority,
		WorkingDir:     dir,
		ElapsedSeconds: int64(view.Elapsed / time.Second),
		Inactive:       view.Inactive,
		CreatedAt:      s.CreatedAt.UTC(),
		StatusSince:    s.StatusSince.UTC(),
		History:        history,
	}
}

func (s Snapshot) View() application.SessionView {
	history := make([]domain.HistoryEntry, 0, len(s.History))
	for _, entry := range s.History {
		history = append(history, domain.HistoryEntry{Status: entry.Status, At: entry.At})
	}

	return application.SessionView{
		Session: domain.Session{
			ID:          s.SessionID,
			Status:      s.Status,
			Priority:    s.Priority,
			WorkingDir:  s.WorkingDir,
			History:     history,
			CreatedAt:   s.CreatedAt,
			StatusSince: s.StatusSince,
		},
		Elapsed:  time.Duration(s.ElapsedSeconds) * time.Second,
		Inactive: s.Inactive,
	}
}

func NewUsageSnapshot(usage *domain.Usage) *UsageSnapshot {
	if usage == nil {
		return nil
	}

	windows := make([]WindowSnapshot, 0, len(usage.Windows))
	for _, w := range usage.Windows {
		windows = append(windows, WindowSnapshot{
			Label:         w.Label,
			UsedPercent:   w.UsedPercent,
			WindowSeconds: w.WindowSeconds,
			ResetsAt:      w.ResetsAt.UTC(),
		})
	}

	return &UsageSnapshot{
		PlanType:   usage.PlanType,
		CapturedAt: usage.CapturedAt.UTC(),
		Windows:    windows,
	}
}

func (u UsageSnapshot) Usage() domain.Usage {
	windows := make([]domain.UsageWindow, 0, len(u.Windows))
	for _, w := range u.Windows {
		windows = append(windows, domain.UsageWindow{
			Label:         w.Label,
			UsedPercent:   w.UsedPercent,
			WindowSeconds: w.WindowSeconds,
			ResetsAt:      w.ResetsAt,
		})
	}
	return domain.Usage{PlanType: u.PlanType, CapturedAt: u.CapturedAt, Windows: windows}
}

func (r Response) Overview() application.Overview {
	views := make([]application.SessionView, 0, len(r.Sessions))
	for _, s := range r.Sessions {
		views = append(views, s.View())
	}

	overview := application.Overview{Sessions: views}
	if r.Usage != nil {
		usage := r.Usage.Usage()
		overview.Usage = &usage
	}
	return overview
}

func marshalLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal line: %w", err)
	}
	return append(data, '\n'), nil
}
