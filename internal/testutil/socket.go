package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SocketPath returns a socket path inside a short directory under /tmp. t.TempDir paths can
// exceed the 108-byte sun_path limit.
func SocketPath(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("/tmp", "agentmon-test-*")
	if err != nil {
		t.Fatalf("create socket dir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(dir)
	})
	return filepath.Join(dir, "d.sock")
}
