package e2e

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/bnema/agentmon/internal/testutil"
)

func TestSmokeFlow(t *testing.T) {
	binaryPath := buildBinary(t)
	env := testEnv(t)
	socketPath := testutil.SocketPath(t)
	env = append(env, "AGENTMON_SOCKET_PATH="+socketPath)

	stdout, stderr, err := runAgentmon(t, binaryPath, env, "", "start")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "daemon started")
	t.Cleanup(func() {
		_, _, _ = runAgentmon(t, binaryPath, env, "", "stop", "--yes")
	})

	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, stderr, err = runAgentmon(t, binaryPath, env,
		`{"session_id":"e2e-1","cwd":"/srv/app","hook_event_name":"UserPromptSubmit"}`, "hook")
	require.NoError(t, err, "stderr: %s", stderr)

	_, stderr, err = runAgentmon(t, binaryPath, env, "", "set", "e2e-2", "--status", "question", "--priority", "3")
	require.NoError(t, err, "stderr: %s", stderr)

	stdout, stderr, err = runAgentmon(t, binaryPath, env, "", "list", "--format", "json")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Equal(t, []any{"e2e-1", "e2e-2"}, gjson.Get(stdout, "sessions.#.session_id").Value())

	stdout, stderr, err = runAgentmon(t, binaryPath, env, "", "resurrect", "e2e-1")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Equal(t, "cd /srv/app && claude --resume e2e-1", strings.TrimSpace(stdout))

	_, _, err = runAgentmon(t, binaryPath, env, "", "stop")
	require.Error(t, err)

	stdout, stderr, err = runAgentmon(t, binaryPath, env, "", "stop", "--yes")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Equal(t, "daemon stopping", strings.TrimSpace(stdout))

	assert.Eventually(t, func() bool {
		_, statErr := os.Stat(socketPath)
		return os.IsNotExist(statErr)
	}, 10*time.Second, 50*time.Millisecond)

	stdout, _, err = runAgentmon(t, binaryPath, env, "", "stop")
	require.NoError(t, err)
	assert.Equal(t, "daemon not running", strings.TrimSpace(stdout))
}

func buildBinary(t *testing.T) string {
	t.Helper()

	binaryPath := filepath.Join(t.TempDir(), "agentmon-e2e")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/agentmon")
	cmd.Dir = repoRoot(t)

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "build agentmon binary: %s", string(output))
	return binaryPath
}

// testEnv isolates config and runtime dirs from the developer's environment.
func testEnv(t *testing.T) []string {
	t.Helper()

	env := make([]string, 0, len(os.Environ())+2)
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "AGENTMON_") || strings.HasPrefix(kv, "XDG_") {
			continue
		}
		env = append(env, kv)
	}
	return append(env,
		"XDG_CONFIG_HOME="+t.TempDir(),
		"AGENTMON_LOG_FILE="+filepath.Join(t.TempDir(), "daemon.log"),
	)
}

func runAgentmon(t *testing.T, binaryPath string, env []string, stdin string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = env
	cmd.Stdin = strings.NewReader(stdin)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func repoRoot(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}
