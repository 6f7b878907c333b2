package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/agentmon/internal/adapters/socket"
	"github.com/bnema/agentmon/internal/application"
	"github.com/bnema/agentmon/internal/domain"
	"github.com/bnema/agentmon/internal/ports"
	"github.com/charmbracelet/log"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	SocketPath        string
	IdleCheckInterval time.Duration
	IdleTimeout       time.Duration
	InactiveAfter     time.Duration
	HistorySize       int
	SubscriberQueue   int
	CommandQueue      int
	MaxClosedSessions int
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration
	UsageInterval     time.Duration
	UsageTimeout      time.Duration
	ResumeCommand     string
}

type Deps struct {
	Logger *log.Logger
	Clock  ports.Clock
	// Fetcher is optional; nil disables usage polling.
	Fetcher ports.UsageFetcher
}

// Daemon owns the session store. Every command and tick goes through one queue drained by a
// single loop, so the store and processor are only touched from that loop.
type Daemon struct {
	cfg       Config
	logger    *log.Logger
	loggers   []*log.Logger
	clock     ports.Clock
	fetcher   ports.UsageFetcher
	store     *domain.Store
	processor *application.Processor
	hub       *socket.Hub
	server    *socket.Server

	queue    chan job
	ready    chan struct{}
	stopping chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
	reason   string
	closing  atomic.Bool
	state    atomic.Int32

	background  conc.WaitGroup
	fetchCtx    context.Context
	cancelFetch context.CancelFunc

	// Loop-owned.
	startedAt time.Time
	idleSince time.Time
	fetching  bool
	lastFetch time.Time
}

func New(cfg Config, deps Deps) *Daemon {
	cfg = withDefaults(cfg)

	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	clock := deps.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	store := domain.NewStore(domain.StoreOptions{
		HistorySize:   cfg.HistorySize,
		InactiveAfter: cfg.InactiveAfter,
		ResumeCommand: cfg.ResumeCommand,
	})

	daemonLogger := logger.With("component", "daemon")
	hubLogger := logger.With("component", "hub")
	serverLogger := logger.With("component", "socket")

	d := &Daemon{
		cfg:       cfg,
		logger:    daemonLogger,
		loggers:   []*log.Logger{logger, daemonLogger, hubLogger, serverLogger},
		clock:     clock,
		fetcher:   deps.Fetcher,
		store:     store,
		processor: application.NewProcessor(store, application.ProcessorOptions{MaxClosedSessions: cfg.MaxClosedSessions}),
		hub:       socket.NewHub(hubLogger),
		queue:     make(chan job, cfg.CommandQueue),
		ready:     make(chan struct{}),
		stopping:  make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	d.server = socket.NewServer(socket.Options{
		SocketPath:      cfg.SocketPath,
		SubscriberQueue: cfg.SubscriberQueue,
		WriteTimeout:    cfg.WriteTimeout,
		Logger:          serverLogger,
	}, d.hub, d)
	d.fetchCtx, d.cancelFetch = context.WithCancel(context.Background())
	d.state.Store(int32(StateStarting))

	return d
}

func (d *Daemon) Run(ctx context.Context) error {
	d.startedAt = d.clock.Now()
	if err := d.server.Listen(); err != nil {
		d.setState(StateStopping)
		d.cancelFetch()
		return fmt.Errorf("start daemon: %w", err)
	}

	d.setState(StateRunning)
	close(d.ready)
	d.logger.Info("daemon started", "socket", d.cfg.SocketPath, "pid", os.Getpid())

	serveCtx, cancelServe := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelServe()

	var g errgroup.Group
	g.Go(func() error { return d.server.Serve(serveCtx) })
	g.Go(func() error {
		d.loop()
		return nil
	})
	g.Go(func() error {
		d.tick()
		return nil
	})

	select {
	case <-ctx.Done():
		d.Shutdown("signal")
	case <-d.stopping:
	}

	err := d.teardown()
	cancelServe()
	return errors.Join(err, g.Wait())
}

func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

func (d *Daemon) State() State {
	return State(d.state.Load())
}

func (d *Daemon) Shutdown(reason string) {
	d.stopOnce.Do(func() {
		d.closing.Store(true)
		d.setState(StateStopping)
		d.reason = reason
		d.logger.Info("shutting down", "reason", reason)
		close(d.stopping)
	})
}

func (d *Daemon) SetLogLevel(level log.Level) {
	d.submit(logLevelJob{level: level})
}

func (d *Daemon) Dispatch(ctx context.Context, cmd application.Command, sub *socket.Subscriber) (socket.Reply, error) {
	if d.closing.Load() {
		return rejected(), nil
	}

	j := commandJob{cmd: cmd, sub: sub, reply: make(chan socket.Reply, 1)}
	select {
	case d.queue <- j:
	case <-d.loopDone:
		return rejected(), nil
	case <-ctx.Done():
		return socket.Reply{}, ctx.Err()
	}

	select {
	case reply := <-j.reply:
		return reply, nil
	case <-d.loopDone:
		select {
		case reply := <-j.reply:
			return reply, nil
		default:
			return rejected(), nil
		}
	case <-ctx.Done():
		return socket.Reply{}, ctx.Err()
	}
}

func (d *Daemon) teardown() error {
	closeErr := d.server.Close()

	d.queue <- drainJob{}
	<-d.loopDone

	d.cancelFetch()
	d.background.Wait()

	notice, err := socket.EncodeEvent(application.ShutdownEvent(d.reason))
	if err != nil {
		d.logger.Error("encode shutdown notice", "err", err)
	}
	d.hub.Shutdown(notice, d.cfg.ShutdownTimeout)
	d.server.Shutdown(d.cfg.ShutdownTimeout)

	d.logger.Info("daemon stopped", "reason", d.reason)
	return closeErr
}

func (d *Daemon) loop() {
	defer close(d.loopDone)

	d.checkIdle(d.clock.Now())
	for {
		j := <-d.queue
		if _, ok := j.(drainJob); ok {
			return
		}
		d.handle(j)
	}
}

func (d *Daemon) handle(j job) {
	now := d.clock.Now()

	switch j := j.(type) {
	case commandJob:
		d.handleCommand(j, now)
		d.checkIdle(now)
	case idleCheckJob:
		d.checkIdle(now)
	case usageTickJob:
		if d.hub.Len() > 0 {
			d.startFetch(now)
		}
	case usageResultJob:
		d.fetching = false
		if j.err != nil {
			d.logger.Warn("usage fetch failed", "err", j.err)
			d.broadcast(d.processor.UpstreamFailure(j.err))
			return
		}
		usage := j.usage
		if usage.CapturedAt.IsZero() {
			usage.CapturedAt = now
		}
		d.broadcast(d.processor.RecordUsage(usage))
	case logLevelJob:
		for _, logger := range d.loggers {
			logger.SetLevel(j.level)
		}
		d.logger.Info("log level changed", "level", j.level)
	}
}

func (d *Daemon) handleCommand(j commandJob, now time.Time) {
	out := d.processor.Apply(j.cmd, now)
	if out.Result.Daemon != nil {
		out.Result.Daemon.PID = os.Getpid()
		out.Result.Daemon.State = d.State().String()
		out.Result.Daemon.Uptime = now.Sub(d.startedAt)
		out.Result.Daemon.Subscribers = d.hub.Len()
	}

	line, err := socket.EncodeOutcome(out)
	if err != nil {
		d.logger.Error("encode reply", "cmd", out.Command, "err", err)
		line = socket.EncodeError(err, 0)
		out.Subscribe = false
	}

	switch {
	case out.Err != nil:
		d.logger.Debug("command rejected", "cmd", out.Command, "err", out.Err)
		j.reply <- socket.Reply{Line: line}
	case out.Subscribe && j.sub != nil:
		// The snapshot must be the subscriber's first line, ahead of any broadcast.
		if j.sub.Enqueue(line) && d.hub.Add(j.sub) {
			j.reply <- socket.Reply{Subscribed: true}
			d.maybeRefreshUsage(now)
		} else {
			j.reply <- socket.Reply{Line: line}
		}
	default:
		d.logger.Debug("command applied", "cmd", out.Command, "events", len(out.Events))
		j.reply <- socket.Reply{Line: line}
	}

	for _, ev := range out.Events {
		d.broadcast(ev)
	}

	if out.Shutdown {
		d.Shutdown("stop requested")
	}
}

func (d *Daemon) checkIdle(now time.Time) {
	state := d.State()
	if state == StateStopping {
		return
	}

	idle := d.hub.Len() == 0 && d.store.ActiveCount() == 0
	switch {
	case idle && state == StateRunning:
		d.idleSince = now
		d.setState(StateIdlePending)
		d.logger.Info("daemon idle", "shutdown_after", d.cfg.IdleTimeout)
	case !idle && state == StateIdlePending:
		d.setState(StateRunning)
		d.logger.Info("daemon active")
	case idle && state == StateIdlePending && now.Sub(d.idleSince) >= d.cfg.IdleTimeout:
		d.logger.Info("idle timeout reached", "idle_for", now.Sub(d.idleSince))
		d.Shutdown("idle timeout")
	}
}

func (d *Daemon) maybeRefreshUsage(now time.Time) {
	if d.lastFetch.IsZero() || now.Sub(d.lastFetch) >= d.cfg.UsageInterval {
		d.startFetch(now)
	}
}

func (d *Daemon) startFetch(now time.Time) {
	if d.fetcher == nil || d.fetching {
		return
	}
	d.fetching = true
	d.lastFetch = now

	d.background.Go(func() {
		ctx, cancel := context.WithTimeout(d.fetchCtx, d.cfg.UsageTimeout)
		defer cancel()

		usage, err := d.fetcher.Fetch(ctx)
		d.submit(usageResultJob{usage: usage, err: err})
	})
}

func (d *Daemon) broadcast(ev application.Event) {
	line, err := socket.EncodeEvent(ev)
	if err != nil {
		d.logger.Error("encode event", "kind", ev.Kind, "err", err)
		return
	}
	for _, id := range d.hub.Broadcast(line) {
		d.logger.Warn("subscriber too slow, disconnected", "subscriber", id)
	}
}

func (d *Daemon) tick() {
	idle := time.NewTicker(d.cfg.IdleCheckInterval)
	defer idle.Stop()

	var usageTicks <-chan time.Time
	if d.fetcher != nil {
		usage := time.NewTicker(d.cfg.UsageInterval)
		defer usage.Stop()
		usageTicks = usage.C
	}

	for {
		select {
		case <-d.stopping:
			return
		case <-idle.C:
			d.offer(idleCheckJob{})
		case <-usageTicks:
			d.offer(usageTickJob{})
		}
	}
}

func (d *Daemon) offer(j job) {
	select {
	case d.queue <- j:
	default:
		d.logger.Debug("queue full, tick skipped")
	}
}

func (d *Daemon) submit(j job) {
	select {
	case d.queue <- j:
	case <-d.loopDone:
	}
}

func (d *Daemon) setState(state State) {
	d.state.Store(int32(state))
}

func rejected() socket.Reply {
	return socket.Reply{Line: socket.EncodeError(application.ErrShuttingDown, 0)}
}

func withDefaults(cfg Config) Config {
	if cfg.IdleCheckInterval <= 0 {
		cfg.IdleCheckInterval = 60 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Hour
	}
	if cfg.InactiveAfter <= 0 {
		cfg.InactiveAfter = domain.DefaultInactiveAfter
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = domain.DefaultHistorySize
	}
	if cfg.SubscriberQueue <= 0 {
		cfg.SubscriberQueue = 64
	}
	if cfg.CommandQueue <= 0 {
		cfg.CommandQueue = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.UsageInterval <= 0 {
		cfg.UsageInterval = 3 * time.Minute
	}
	if cfg.UsageTimeout <= 0 {
		cfg.UsageTimeout = 15 * time.Second
	}
	return cfg
}
