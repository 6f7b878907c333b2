package application

import "github.com/bnema/agentmon/internal/domain"

type CommandName string

const (
	CommandSet       CommandName = "SET"
	CommandClose     CommandName = "CLOSE"
	CommandRemove    CommandName = "RM"
	CommandList      CommandName = "LIST"
	CommandSubscribe CommandName = "SUB"
	CommandResurrect CommandName = "RESURRECT"
	CommandStop      CommandName = "STOP"
	CommandPing      CommandName = "PING"
)

type Command interface {
	Name() CommandName
}

type SetCommand struct {
	SessionID  string
	Status     *domain.Status
	Priority   *uint32
	WorkingDir *string
}

type CloseCommand struct {
	SessionID string
}

type RemoveCommand struct {
	SessionID string
}

type ListCommand struct{}

type SubscribeCommand struct{}

type ResurrectCommand struct {
	SessionID string
}

type StopCommand struct {
	Confirmed bool
}

type PingCommand struct{}

func (SetCommand) Name() CommandName       { return CommandSet }
func (CloseCommand) Name() CommandName     { return CommandClose }
func (RemoveCommand) Name() CommandName    { return CommandRemove }
func (ListCommand) Name() CommandName      { return CommandList }
func (SubscribeCommand) Name() CommandName { return CommandSubscribe }
func (ResurrectCommand) Name() CommandName { return CommandResurrect }
func (StopCommand) Name() CommandName      { return CommandStop }
func (PingCommand) Name() CommandName      { return CommandPing }
