package rapl

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDomain(t *testing.T, dir, id, maxEnergy, energy string) {
	t.Helper()
	d := filepath.Join(dir, "intel-rapl:"+id)
	require.NoError(t, os.MkdirAll(d, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(d, "max_energy_range_uj"), []byte(maxEnergy+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(d, "energy_uj"), []byte(energy+"\n"), 0o644))
}

func TestInitAndReadReportsZeroOnFirstSample(t *testing.T) {
	dir := t.TempDir()
	writeDomain(t, dir, "0", "1000000", "500")
	orig := basePath
	basePath = filepath.Join(dir, "intel-rapl:")
	defer func() { basePath = orig }()

	dev := New()
	require.NoError(t, dev.Init("0"))

	buf, err := dev.Read()
	require.NoError(t, err)
	require.Len(t, buf, 8)
	require.Equal(t, 0.0, math.Float64frombits(binary.LittleEndian.Uint64(buf)))
}

func TestInitRejectsEmptyArg(t *testing.T) {
	dev := New()
	require.Error(t, dev.Init(""))
}

func TestInitRejectsMissingDomain(t *testing.T) {
	dir := t.TempDir()
	orig := basePath
	basePath = filepath.Join(dir, "intel-rapl:")
	defer func() { basePath = orig }()

	dev := New()
	require.Error(t, dev.Init("0"))
}

func TestWraparoundDoesNotUnderflow(t *testing.T) {
	dir := t.TempDir()
	writeDomain(t, dir, "0", "1000", "900")
	orig := basePath
	basePath = filepath.Join(dir, "intel-rapl:")
	defer func() { basePath = orig }()

	dev := New()
	require.NoError(t, dev.Init("0"))

	// simulate the counter wrapping: energy_uj now reads lower than lastEnergy
	require.NoError(t, os.WriteFile(filepath.Join(dir, "intel-rapl:0", "energy_uj"), []byte("100\n"), 0o644))
	buf, err := dev.Read()
	require.NoError(t, err)
	val := math.Float64frombits(uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
		uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56)
	require.GreaterOrEqual(t, val, 0.0)
}
