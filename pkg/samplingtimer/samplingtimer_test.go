package samplingtimer

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestZeroIntervalIsInert(t *testing.T) {
	timer := New(0, os.Getpid())
	require.NoError(t, timer.Start())
	require.NoError(t, timer.ScheduleNow())
	require.NoError(t, timer.Pause())
	require.NoError(t, timer.Stop())
}

func TestStartFiresAndDeliversSignal(t *testing.T) {
	timer := New(20*time.Millisecond, os.Getpid())
	require.NoError(t, timer.Start())
	require.NoError(t, timer.ScheduleNow())
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, timer.Stop())
	require.Greater(t, timer.Interrupts(), uint64(0))
}

func TestScheduleNextAdaptsToElapsedTime(t *testing.T) {
	timer := New(50*time.Millisecond, os.Getpid())
	require.NoError(t, timer.Start())
	defer timer.Stop()

	timer.mu.Lock()
	timer.lastInterrupt = time.Now()
	timer.mu.Unlock()

	require.NoError(t, timer.ScheduleNext())
}

// TestWatchSignalsSeparateProcess exercises the real tracer wiring: Tid
// is a distinct process (its own thread group), not the sampler itself,
// so this is the one case a self-signaling test (New(..., os.Getpid()))
// cannot catch. SIGUSR2's default disposition terminates the target, so
// if the signal never arrives (e.g. because it was tgkill'd against the
// sampler's own tgid, which returns ESRCH against a foreign pid) the
// child keeps sleeping for its full duration and the test times out.
func TestWatchSignalsSeparateProcess(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()

	timer := New(10*time.Millisecond, cmd.Process.Pid)
	require.NoError(t, timer.Start())
	defer timer.Stop()
	require.NoError(t, timer.ScheduleNow())

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		require.Error(t, err, "target should have been killed by SIGUSR2, not exited cleanly")
	case <-time.After(2 * time.Second):
		t.Fatal("target process was never interrupted; the timer signaled the wrong process")
	}
}

func TestDoubleStartFails(t *testing.T) {
	timer := New(10*time.Millisecond, os.Getpid())
	require.NoError(t, timer.Start())
	defer timer.Stop()
	require.Error(t, timer.Start())
}
