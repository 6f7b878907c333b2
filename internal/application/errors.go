package application

import (
	"errors"

	"github.com/bnema/agentmon/internal/domain"
)

var (
	ErrInvalidCommand      = errors.New("invalid command")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnconfirmed         = errors.New("active sessions exist; resend with confirmation")
	ErrShuttingDown        = errors.New("daemon is shutting down")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

type Code string

const (
	CodeNotFound            Code = "not_found"
	CodeInvalidCommand      Code = "invalid_command"
	CodeInvalidArgument     Code = "invalid_argument"
	CodeInvalidStatus       Code = "invalid_status"
	CodeMissingStatus       Code = "missing_status"
	CodeUnconfirmed         Code = "unconfirmed"
	CodeShuttingDown        Code = "shutting_down"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeInternal            Code = "internal"
)

func ErrorCode(err error) Code {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrInvalidStatus):
		return CodeInvalidStatus
	case errors.Is(err, domain.ErrMissingStatus):
		return CodeMissingStatus
	case errors.Is(err, domain.ErrMissingSessionID), errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrInvalidCommand):
		return CodeInvalidCommand
	case errors.Is(err, ErrUnconfirmed):
		return CodeUnconfirmed
	case errors.Is(err, ErrShuttingDown):
		return CodeShuttingDown
	case errors.Is(err, ErrUpstreamUnavailable):
		return CodeUpstreamUnavailable
	default:
		return CodeInternal
	}
}
