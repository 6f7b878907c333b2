package application

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/bnema/agentmon/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var processorBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func status(s domain.Status) *domain.Status { return &s }

func priority(v uint32) *uint32 { return &v }

func dir(v string) *string { return &v }

func newTestProcessor(maxClosed int) *Processor {
	store := domain.NewStore(domain.StoreOptions{HistorySize: 10, InactiveAfter: time.Hour})
	return NewProcessor(store, ProcessorOptions{MaxClosedSessions: maxClosed})
}

func TestSetThenListShowsHistory(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(0)
	require.NoError(t, p.Apply(SetCommand{SessionID: "s1", Status: status(domain.StatusWorking)}, processorBase).Err)
	require.NoError(t, p.Apply(SetCommand{SessionID: "s1", Status: status(domain.StatusAttention)}, processorBase.Add(time.Second)).Err)

	out := p.Apply(ListCommand{}, processorBase.Add(2*time.Second))
	require.NoError(t, out.Err)
	require.NotNil(t, out.Result.Overview)
	require.Len(t, out.Result.Overview.Sessions, 1)

	session := out.Result.Overview.Sessions[0].Session
	assert.Equal(t, domain.StatusAttention, session.Status)
	require.Len(t, session.History, 2)
	assert.Equal(t, domain.StatusWorking, session.History[0].Status)
	assert.Equal(t, domain.StatusAttention, session.History[1].Status)
	assert.Equal(t, CommandList, out.Command)
}

func TestSetEvents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		seed  []SetCommand
		cmd   SetCommand
		kinds []EventKind
	}{
		{
			name:  "create",
			cmd:   SetCommand{SessionID: "s1", Status: status(domain.StatusWorking)},
			kinds: []EventKind{EventSessionChanged},
		},
		{
			name:  "status change",
			seed:  []SetCommand{{SessionID: "s1", Status: status(domain.StatusWorking)}},
			cmd:   SetCommand{SessionID: "s1", Status: status(domain.StatusQuestion)},
			kinds: []EventKind{EventSessionChanged},
		},
		{
			name:  "same status refresh is silent",
			seed:  []SetCommand{{SessionID: "s1", Status: status(domain.StatusWorking)}},
			cmd:   SetCommand{SessionID: "s1", Status: status(domain.StatusWorking)},
			kinds: nil,
		},
		{
			name:  "priority change",
			seed:  []SetCommand{{SessionID: "s1", Status: status(domain.StatusWorking)}},
			cmd:   SetCommand{SessionID: "s1", Priority: priority(3)},
			kinds: []EventKind{EventSessionChanged},
		},
		{
			name:  "working dir change",
			seed:  []SetCommand{{SessionID: "s1", Status: status(domain.StatusWorking), WorkingDir: dir("/a")}},
			cmd:   SetCommand{SessionID: "s1", WorkingDir: dir("/b")},
			kinds: []EventKind{EventSessionChanged},
		},
		{
			name:  "same working dir is silent",
			seed:  []SetCommand{{SessionID: "s1", Status: status(domain.StatusWorking), WorkingDir: dir("/a")}},
			cmd:   SetCommand{SessionID: "s1", WorkingDir: dir("/a")},
			kinds: nil,
		},
		{
			name:  "transition into closed",
			seed:  []SetCommand{{SessionID: "s1", Status: status(domain.StatusWorking)}},
			cmd:   SetCommand{SessionID: "s1", Status: status(domain.StatusClosed)},
			kinds: []EventKind{EventSessionClosed},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProcessor(0)
			for _, seed := range tc.seed {
				require.NoError(t, p.Apply(seed, processorBase).Err)
			}

			out := p.Apply(tc.cmd, processorBase.Add(time.Minute))
			require.NoError(t, out.Err)
			require.NotNil(t, out.Result.Session)

			var kinds []EventKind
			for _, ev := range out.Events {
				kinds = append(kinds, ev.Kind)
			}
			assert.Equal(t, tc.kinds, kinds)
		})
	}
}

func TestSetUnknownSessionWithoutStatus(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(0)
	out := p.Apply(SetCommand{SessionID: "s1", Priority: priority(2)}, processorBase)

	require.Error(t, out.Err)
	assert.Equal(t, CodeMissingStatus, ErrorCode(out.Err))
	assert.Empty(t, out.Events)
}

func TestInterleavedFirstTouchSetsProduceOneRecord(t *testing.T) {
	t.Parallel()

	statuses := []domain.Status{domain.StatusWorking, domain.StatusAttention, domain.StatusQuestion}
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 20; round++ {
		p := newTestProcessor(0)
		cmds := make([]SetCommand, 0, 6)
		for i := 0; i < 6; i++ {
			cmds = append(cmds, SetCommand{SessionID: "shared", Status: status(statuses[rng.Intn(len(statuses))])})
		}
		rng.Shuffle(len(cmds), func(i, j int) { cmds[i], cmds[j] = cmds[j], cmds[i] })

		for i, cmd := range cmds {
			require.NoError(t, p.Apply(cmd, processorBase.Add(time.Duration(i)*time.Second)).Err)
		}

		overview := p.Overview(processorBase.Add(time.Minute))
		require.Len(t, overview.Sessions, 1)
		assert.Equal(t, *cmds[len(cmds)-1].Status, overview.Sessions[0].Session.Status)
	}
}

func TestListOrderingHoldsAfterEveryMutation(t *testing.T) {
	t.Parallel()

	groups := map[domain.Status]int{
		domain.StatusAttention: 0,
		domain.StatusWorking:   1,
		domain.StatusQuestion:  2,
		domain.StatusClosed:    3,
	}
	statuses := []domain.Status{domain.StatusWorking, domain.StatusAttention, domain.StatusQuestion, domain.StatusClosed}
	ids := []string{"a", "b", "c", "d", "e"}
	rng := rand.New(rand.NewSource(11))
	p := newTestProcessor(0)

	for i := 0; i < 200; i++ {
		now := processorBase.Add(time.Duration(i) * time.Second)
		cmd := SetCommand{
			SessionID: ids[rng.Intn(len(ids))],
			Status:    status(statuses[rng.Intn(len(statuses))]),
			Priority:  priority(uint32(rng.Intn(3))),
		}
		require.NoError(t, p.Apply(cmd, now).Err)

		views := p.Overview(now).Sessions
		sorted := sort.SliceIsSorted(views, func(i, j int) bool {
			gi, gj := groups[views[i].Session.Status], groups[views[j].Session.Status]
			if gi != gj {
				return gi < gj
			}
			if views[i].Session.Priority != views[j].Session.Priority {
				return views[i].Session.Priority > views[j].Session.Priority
			}
			return views[i].Elapsed > views[j].Elapsed
		})
		require.True(t, sorted, "ordering broken after mutation %d", i)
	}
}

func TestRemoveTwiceReturnsNotFound(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(0)
	require.NoError(t, p.Apply(SetCommand{SessionID: "s1", Status: status(domain.StatusWorking)}, processorBase).Err)

	out := p.Apply(RemoveCommand{SessionID: "s1"}, processorBase)
	require.NoError(t, out.Err)
	require.Len(t, out.Events, 1)
	assert.Equal(t, Event{Kind: EventSessionDeleted, SessionID: "s1"}, out.Events[0])

	again := p.Apply(RemoveCommand{SessionID: "s1"}, processorBase)
	assert.Equal(t, CodeNotFound, ErrorCode(again.Err))
	assert.Empty(t, again.Events)
	assert.Empty(t, p.Overview(processorBase).Sessions)
}

func TestCloseCommand(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(0)
	assert.Equal(t, CodeNotFound, ErrorCode(p.Apply(CloseCommand{SessionID: "s1"}, processorBase).Err))

	require.NoError(t, p.Apply(SetCommand{SessionID: "s1", Status: status(domain.StatusWorking)}, processorBase).Err)

	out := p.Apply(CloseCommand{SessionID: "s1"}, processorBase.Add(time.Second))
	require.NoError(t, out.Err)
	require.Len(t, out.Events, 1)
	assert.Equal(t, EventSessionClosed, out.Events[0].Kind)
	assert.Equal(t, domain.StatusClosed, out.Result.Session.Session.Status)

	again := p.Apply(CloseCommand{SessionID: "s1"}, processorBase.Add(2*time.Second))
	require.NoError(t, again.Err)
	assert.Empty(t, again.Events)
}

func TestClosingTrimsOldestClosedSessions(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(2)
	for i, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, p.Apply(SetCommand{SessionID: id, Status: status(domain.StatusWorking)}, processorBase).Err)
		out := p.Apply(CloseCommand{SessionID: id}, processorBase.Add(time.Duration(i+1)*time.Minute))
		require.NoError(t, out.Err)

		if id == "c3" {
			require.Len(t, out.Events, 2)
			assert.Equal(t, EventSessionClosed, out.Events[0].Kind)
			assert.Equal(t, Event{Kind: EventSessionDeleted, SessionID: "c1"}, out.Events[1])
		}
	}

	assert.Len(t, p.Overview(processorBase).Sessions, 2)
}

func TestStopRequiresConfirmationWithActiveSessions(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(0)
	require.NoError(t, p.Apply(SetCommand{SessionID: "s1", Status: status(domain.StatusWorking)}, processorBase).Err)

	out := p.Apply(StopCommand{}, processorBase)
	require.ErrorIs(t, out.Err, ErrUnconfirmed)
	assert.Equal(t, CodeUnconfirmed, ErrorCode(out.Err))
	assert.Equal(t, 1, out.ActiveSessions)
	assert.False(t, out.Shutdown)

	confirmed := p.Apply(StopCommand{Confirmed: true}, processorBase)
	require.NoError(t, confirmed.Err)
	assert.True(t, confirmed.Shutdown)
}

func TestStopWithOnlyClosedSessions(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(0)
	require.NoError(t, p.Apply(SetCommand{SessionID: "s1", Status: status(domain.StatusClosed)}, processorBase).Err)

	out := p.Apply(StopCommand{}, processorBase)
	require.NoError(t, out.Err)
	assert.True(t, out.Shutdown)
}

func TestSubscribeReturnsSnapshotAndUsage(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(0)
	require.NoError(t, p.Apply(SetCommand{SessionID: "s1", Status: status(domain.StatusWorking)}, processorBase).Err)

	ev := p.RecordUsage(domain.Usage{PlanType: "pro", CapturedAt: processorBase})
	assert.Equal(t, EventUsageChanged, ev.Kind)

	out := p.Apply(SubscribeCommand{}, processorBase)
	require.NoError(t, out.Err)
	assert.True(t, out.Subscribe)
	require.NotNil(t, out.Result.Overview.Usage)
	assert.Equal(t, "pro", out.Result.Overview.Usage.PlanType)
	assert.Len(t, out.Result.Overview.Sessions, 1)
}

func TestResurrectIsReadOnly(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(0)
	require.NoError(t, p.Apply(SetCommand{SessionID: "s1", Status: status(domain.StatusClosed), WorkingDir: dir("/w")}, processorBase).Err)

	out := p.Apply(ResurrectCommand{SessionID: "s1"}, processorBase.Add(time.Hour))
	require.NoError(t, out.Err)
	require.NotNil(t, out.Result.Resurrection)
	assert.Equal(t, "/w", *out.Result.Resurrection.WorkingDir)
	assert.Equal(t, "cd /w && claude --resume s1", out.Result.Resurrection.Command)
	assert.Empty(t, out.Events)

	session := p.Overview(processorBase).Sessions[0].Session
	assert.Equal(t, domain.StatusClosed, session.Status)

	assert.Equal(t, CodeNotFound, ErrorCode(p.Apply(ResurrectCommand{SessionID: "nope"}, processorBase).Err))
}

func TestPingCounts(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(0)
	require.NoError(t, p.Apply(SetCommand{SessionID: "s1", Status: status(domain.StatusWorking)}, processorBase).Err)
	require.NoError(t, p.Apply(SetCommand{SessionID: "s2", Status: status(domain.StatusClosed)}, processorBase).Err)

	out := p.Apply(PingCommand{}, processorBase)
	require.NoError(t, out.Err)
	assert.Equal(t, 2, out.Result.Daemon.Sessions)
	assert.Equal(t, 1, out.Result.Daemon.ActiveSessions)
}

func TestUpstreamFailureWarning(t *testing.T) {
	t.Parallel()

	ev := newTestProcessor(0).UpstreamFailure(errors.New("dial tcp: timeout"))
	assert.Equal(t, EventWarning, ev.Kind)
	assert.Equal(t, CodeUpstreamUnavailable, ev.Code)
	assert.Contains(t, ev.Message, "dial tcp: timeout")
}

func TestErrorCodeMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want Code
	}{
		{err: domain.ErrSessionNotFound, want: CodeNotFound},
		{err: domain.ErrInvalidStatus, want: CodeInvalidStatus},
		{err: domain.ErrMissingStatus, want: CodeMissingStatus},
		{err: domain.ErrMissingSessionID, want: CodeInvalidArgument},
		{err: ErrInvalidArgument, want: CodeInvalidArgument},
		{err: ErrInvalidCommand, want: CodeInvalidCommand},
		{err: ErrUnconfirmed, want: CodeUnconfirmed},
		{err: ErrShuttingDown, want: CodeShuttingDown},
		{err: ErrUpstreamUnavailable, want: CodeUpstreamUnavailable},
		{err: errors.New("boom"), want: CodeInternal},
	}

	for _, tc := range tests {
		t.Run(string(tc.want), func(t *testing.T) {
			assert.Equal(t, tc.want, ErrorCode(tc.err))
		})
	}
}
