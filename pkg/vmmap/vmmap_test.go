package vmmap

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectSelfHasExecutableMappings(t *testing.T) {
	maps, err := Collect(context.Background(), os.Getpid(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, maps)
	for _, m := range maps {
		require.NotEmpty(t, m.Label)
		require.False(t, m.Label[0] == '[')
	}
}

func TestCollectRespectsLimit(t *testing.T) {
	maps, err := Collect(context.Background(), os.Getpid(), 1)
	require.NoError(t, err)
	require.Len(t, maps, 1)
}

func TestContainsDedup(t *testing.T) {
	maps := Maps{{Addr: 10, Size: 5, Label: "a"}}
	require.True(t, maps.Contains(10, 15, "a"))
	require.False(t, maps.Contains(10, 15, "b"))
	require.False(t, maps.Contains(10, 16, "a"))
}

func TestCollision(t *testing.T) {
	a := Maps{{Addr: 0, Size: 10}}
	b := Maps{{Addr: 5, Size: 10}}
	require.True(t, Collision(a, b))

	c := Maps{{Addr: 20, Size: 5}}
	require.False(t, Collision(a, c))
}

func TestParseLine(t *testing.T) {
	addr, end, perms, path, ok := parseLine("00400000-00452000 r-xp 00000000 08:02 173521      /usr/bin/dummy")
	require.True(t, ok)
	require.Equal(t, uint64(0x00400000), addr)
	require.Equal(t, uint64(0x00452000), end)
	require.Equal(t, "r-xp", perms)
	require.Equal(t, "/usr/bin/dummy", path)

	_, _, _, _, ok = parseLine("not a maps line")
	require.False(t, ok)
}
