package launch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromFifoRRFifoWins(t *testing.T) {
	s, ok := FromFifoRR(50, 10)
	require.True(t, ok)
	require.Equal(t, schedFIFO, s.Policy)
	require.Equal(t, 50, s.Priority)
}

func TestFromFifoRRFifoOnly(t *testing.T) {
	s, ok := FromFifoRR(50, 0)
	require.True(t, ok)
	require.Equal(t, schedFIFO, s.Policy)
	require.Equal(t, 50, s.Priority)
}

func TestFromFifoRRNeitherIsDisabled(t *testing.T) {
	_, ok := FromFifoRR(0, 0)
	require.False(t, ok)
}

func TestOnlineCPUsReadsAtLeastOne(t *testing.T) {
	ids, err := OnlineCPUs()
	require.NoError(t, err)
	require.NotEmpty(t, ids)
}

func TestIsolationMasksReservesLastCPU(t *testing.T) {
	sampler, target, err := IsolationMasks([]int{0, 1, 2})
	require.NoError(t, err)
	require.True(t, sampler.IsSet(2))
	require.False(t, sampler.IsSet(0))
	require.True(t, target.IsSet(0))
	require.True(t, target.IsSet(1))
	require.False(t, target.IsSet(2))
}

func TestIsolationMasksSingleCoreFallsBackToSharedCore(t *testing.T) {
	sampler, target, err := IsolationMasks([]int{0})
	require.NoError(t, err)
	require.True(t, sampler.IsSet(0))
	require.True(t, target.IsSet(0))
}

func TestIsolationMasksNoCPUsErrors(t *testing.T) {
	_, _, err := IsolationMasks(nil)
	require.Error(t, err)
}
