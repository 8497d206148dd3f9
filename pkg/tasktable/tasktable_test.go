package tasktable

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTracksRoot(t *testing.T) {
	pid := os.Getpid()
	table, err := New(pid)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	require.True(t, table.Exists(pid))
	// The root task is never "a thread of root" by definition, so it is
	// tracked as a non-thread task, same as the C original.
	require.True(t, table.IsNonThread(pid))
}

func TestAddUnknownTidFails(t *testing.T) {
	table, err := New(os.Getpid())
	require.NoError(t, err)
	require.Error(t, table.Add(1<<30))
}

func TestRemoveAndExists(t *testing.T) {
	table, err := New(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, table.Remove(os.Getpid()))
	require.Equal(t, 0, table.Len())
	require.False(t, table.Exists(os.Getpid()))
	require.Error(t, table.Remove(os.Getpid()))
}

func TestIsNonThreadUnknownTidIsFalse(t *testing.T) {
	table, err := New(os.Getpid())
	require.NoError(t, err)
	require.False(t, table.IsNonThread(1<<30))
}

func TestCPUTimeReadsSchedstat(t *testing.T) {
	table, err := New(os.Getpid())
	require.NoError(t, err)
	task := table.At(0)
	_, err = task.CPUTime()
	require.NoError(t, err)
}
