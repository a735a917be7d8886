package worker

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adilrumy05/SmartPlant-Backend/internal/conf"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// shellWorker builds worker settings that run an inline shell script instead
// of the python classifier.
func shellWorker(script string) conf.WorkerSettings {
	return conf.WorkerSettings{
		Command:        "sh",
		Script:         "-c",
		Args:           []string{script},
		TopK:           5,
		TimeoutSeconds: 5,
	}
}

func TestRunnerEnsureRunningReusesLiveProcess(t *testing.T) {
	requireShell(t)

	runner := NewRunner(shellWorker("cat >/dev/null"), quietLogger(), nil)
	t.Cleanup(runner.Stop)

	first, err := runner.EnsureRunning()
	require.NoError(t, err)
	assert.True(t, first.Alive())

	second, err := runner.EnsureRunning()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestRunnerEnsureRunningReplacesExitedProcess(t *testing.T) {
	requireShell(t)

	runner := NewRunner(shellWorker("cat >/dev/null"), quietLogger(), nil)
	t.Cleanup(runner.Stop)

	first, err := runner.EnsureRunning()
	require.NoError(t, err)

	first.Kill()
	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after kill")
	}

	second, err := runner.EnsureRunning()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, second.Alive())
}

func TestRunnerSpawnFailure(t *testing.T) {
	settings := conf.WorkerSettings{
		Command: "definitely-not-a-real-binary-1b2c3",
		Script:  "worker.py",
	}
	runner := NewRunner(settings, quietLogger(), nil)

	_, err := runner.EnsureRunning()
	require.Error(t, err)
}

func TestSupervisorAgainstShellWorker(t *testing.T) {
	requireShell(t)

	// Reads one request line, ignores it, answers a fixed response. Repeats.
	script := `while read -r line; do printf '{"topk":[{"name":"Shorea macrophylla","confidence":0.88}]}\n'; done`
	runner := NewRunner(shellWorker(script), quietLogger(), nil)
	t.Cleanup(runner.Stop)

	sup := NewSupervisor(runner, 5*time.Second, quietLogger(), nil)

	preds, err := sup.Infer(context.Background(), "/tmp/photo.jpg", 5)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, "Shorea macrophylla", preds[0].Name)
	assert.InDelta(t, 0.88, preds[0].Confidence, 0.0001)
}
