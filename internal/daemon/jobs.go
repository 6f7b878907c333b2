package daemon

import (
	"github.com/bnema/agentmon/internal/adapters/socket"
	"github.com/bnema/agentmon/internal/application"
	"github.com/bnema/agentmon/internal/domain"
	"github.com/charmbracelet/log"
)

type job interface {
	isJob()
}

type commandJob struct {
	cmd   application.Command
	sub   *socket.Subscriber
	reply chan socket.Reply
}

type idleCheckJob struct{}

type usageTickJob struct{}

type usageResultJob struct {
	usage domain.Usage
	err   error
}

type logLevelJob struct {
	level log.Level
}

type drainJob struct{}

func (commandJob) isJob()     {}
func (idleCheckJob) isJob()   {}
func (usageTickJob) isJob()   {}
func (usageResultJob) isJob() {}
func (logLevelJob) isJob()    {}
func (drainJob) isJob()       {}
