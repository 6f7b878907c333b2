package status

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/agentmon/internal/application"
	"github.com/bnema/agentmon/internal/domain"
)

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

func newTestLiveModel(clock *manualClock) liveModel {
	return newLiveModel(LiveOptions{
		RenderOptions: RenderOptions{Plain: true},
		InactiveAfter: time.Hour,
		Clock:         clock.Now,
	})
}

func update(t *testing.T, m liveModel, msg tea.Msg) (liveModel, tea.Cmd) {
	t.Helper()

	next, cmd := m.Update(msg)
	updated, ok := next.(liveModel)
	require.True(t, ok)
	return updated, cmd
}

func sessionIDs(overview application.Overview) []string {
	ids := make([]string, 0, len(overview.Sessions))
	for _, view := range overview.Sessions {
		ids = append(ids, view.Session.ID)
	}
	return ids
}

func TestLiveModelAppliesStream(t *testing.T) {
	clock := &manualClock{now: now}
	m := newTestLiveModel(clock)
	assert.Contains(t, m.View(), "connecting...")

	m, _ = update(t, m, SnapshotMsg{Overview: application.Overview{Sessions: []application.SessionView{
		view("s1", domain.StatusWorking, 0, time.Minute, nil),
		view("s2", domain.StatusQuestion, 0, time.Minute, nil),
	}}})
	assert.Equal(t, []string{"s1", "s2"}, sessionIDs(m.overview()))
	assert.Contains(t, m.View(), "live (q to quit)")

	m, _ = update(t, m, SessionMsg{View: view("s3", domain.StatusAttention, 0, 0, strPtr("/repo"))})
	assert.Equal(t, []string{"s3", "s1", "s2"}, sessionIDs(m.overview()))

	m, _ = update(t, m, DeleteMsg{SessionID: "s1"})
	assert.Equal(t, []string{"s3", "s2"}, sessionIDs(m.overview()))

	m, _ = update(t, m, UsageMsg{Usage: domain.Usage{PlanType: "pro", CapturedAt: now}})
	require.NotNil(t, m.overview().Usage)
	assert.Contains(t, m.View(), "Usage (pro)")

	m, _ = update(t, m, WarnMsg{Message: "usage fetch failed"})
	assert.Contains(t, m.View(), "warning: usage fetch failed")
}

func TestLiveModelSnapshotReplacesState(t *testing.T) {
	m := newTestLiveModel(&manualClock{now: now})

	m, _ = update(t, m, SessionMsg{View: view("old", domain.StatusWorking, 0, 0, nil)})
	m, _ = update(t, m, SnapshotMsg{Overview: application.Overview{Sessions: []application.SessionView{
		view("new", domain.StatusWorking, 0, 0, nil),
	}}})

	assert.Equal(t, []string{"new"}, sessionIDs(m.overview()))
	assert.Nil(t, m.overview().Usage)
}

func TestLiveModelTickRecomputesElapsedAndInactivity(t *testing.T) {
	clock := &manualClock{now: now}
	m := newTestLiveModel(clock)

	m, _ = update(t, m, SnapshotMsg{Overview: application.Overview{Sessions: []application.SessionView{
		view("busy", domain.StatusWorking, 0, 30*time.Minute, nil),
		view("ask", domain.StatusQuestion, 0, time.Minute, nil),
	}}})
	assert.Equal(t, []string{"busy", "ask"}, sessionIDs(m.overview()))

	clock.now = now.Add(45 * time.Minute)
	m, cmd := update(t, m, tickMsg(clock.now))
	require.NotNil(t, cmd)

	overview := m.overview()
	assert.Equal(t, []string{"busy", "ask"}, sessionIDs(overview))
	assert.True(t, overview.Sessions[0].Inactive)
	assert.Equal(t, 75*time.Minute, overview.Sessions[0].Elapsed)
	assert.Contains(t, m.View(), "working (inactive)")
}

func TestLiveModelQuits(t *testing.T) {
	m := newTestLiveModel(&manualClock{now: now})

	m, _ = update(t, m, ShutdownMsg{Reason: "stop requested"})
	done, cmd := update(t, m, FeedDoneMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, done.done)
	assert.NoError(t, done.err)
	assert.Contains(t, done.View(), "daemon stopped (stop requested)")
	assert.NotContains(t, done.View(), "q to quit")

	failed, _ := update(t, m, FeedDoneMsg{Err: errors.New("read event: boom")})
	assert.EqualError(t, failed.err, "read event: boom")

	quit, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, quit.done)

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Nil(t, cmd)
}

func TestRunLiveEndsWithFeed(t *testing.T) {
	var out strings.Builder
	err := RunLive(context.Background(), nil, &out, LiveOptions{
		RenderOptions: RenderOptions{Plain: true},
		Clock:         func() time.Time { return now },
	}, func(ctx context.Context, send func(tea.Msg)) error {
		send(SnapshotMsg{Overview: application.Overview{Sessions: []application.SessionView{
			view("s1", domain.StatusWorking, 0, 0, nil),
		}}})
		send(ShutdownMsg{Reason: "idle"})
		return nil
	})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "daemon stopped (idle)")
}

func TestRunLiveReturnsFeedError(t *testing.T) {
	var out strings.Builder
	err := RunLive(context.Background(), nil, &out, LiveOptions{
		RenderOptions: RenderOptions{Plain: true},
	}, func(context.Context, func(tea.Msg)) error {
		return errors.New("daemon is not running")
	})

	require.EqualError(t, err, "daemon is not running")
}
