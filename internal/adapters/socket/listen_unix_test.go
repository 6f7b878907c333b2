//go:build unix

package socket

import (
	"net"
	"os"
	"testing"

	"github.com/bnema/agentmon/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenKeepsSocketWhileLockIsHeld(t *testing.T) {
	t.Parallel()

	path := testutil.SocketPath(t)
	bound, err := net.Listen("unix", path)
	require.NoError(t, err)
	bound.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, bound.Close())

	holder, err := lockSocket(path)
	require.NoError(t, err)

	server := NewServer(Options{SocketPath: path}, NewHub(nil), &lockedDispatcher{})
	require.ErrorIs(t, server.Listen(), ErrAlreadyRunning)
	_, err = os.Stat(path)
	require.NoError(t, err, "socket file of the lock holder must survive")

	require.NoError(t, holder.Close())
	require.NoError(t, server.Listen())
	require.NoError(t, server.Close())
}

func TestCloseReleasesSocketLock(t *testing.T) {
	t.Parallel()

	path := testutil.SocketPath(t)
	server := NewServer(Options{SocketPath: path}, NewHub(nil), &lockedDispatcher{})
	require.NoError(t, server.Listen())

	_, err := lockSocket(path)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, server.Close())
	lock, err := lockSocket(path)
	require.NoError(t, err)
	assert.NoError(t, lock.Close())
}
