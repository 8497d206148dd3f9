package regs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPCOnUntracedTidFails(t *testing.T) {
	// A pid that is not being ptrace-stopped by us must fail; we never
	// expect to successfully read registers of a process we don't
	// control.
	_, err := PC(1)
	require.Error(t, err)
}
