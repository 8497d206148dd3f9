package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EECS-NTNU/pperf/pkg/pmu"
	"github.com/EECS-NTNU/pperf/pkg/vmmap"
)

func TestWriteThenReadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.bin")
	f, err := os.Create(path)
	require.NoError(t, err)

	wr, err := NewWriter(f, pmu.Power, 8)
	require.NoError(t, err)

	require.NoError(t, wr.WriteSample(Sample{
		TimeUs:  1000,
		PMUData: make([]byte, 8),
		Tasks:   []Task{{Tid: 42, PC: 0xdeadbeef, CPUTime: 123}},
	}))
	require.NoError(t, wr.WriteSample(Sample{
		TimeUs:  2000,
		PMUData: make([]byte, 8),
		Tasks:   []Task{{Tid: 42, PC: 0xdeadc0de, CPUTime: 456}},
	}))

	maps := vmmap.Maps{{Addr: 0x400000, Size: 0x1000, Label: "dummy"}}
	require.NoError(t, wr.Close(5000, 100, maps))
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	h, err := ReadHeader(f)
	require.NoError(t, err)
	require.Equal(t, pmu.Power, h.Magic)
	require.Equal(t, uint64(5000), h.TotalWallTime)
	require.Equal(t, uint64(100), h.TotalLatency)
	require.Equal(t, uint64(2), h.Samples)
	require.Equal(t, uint32(8), h.PMUDataSize)
	require.Equal(t, uint32(1), h.VMMapCount)

	s1, err := ReadSample(f, h.PMUDataSize)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), s1.TimeUs)
	require.Len(t, s1.Tasks, 1)
	require.Equal(t, uint32(42), s1.Tasks[0].Tid)
	require.Equal(t, uint64(0xdeadbeef), s1.Tasks[0].PC)

	s2, err := ReadSample(f, h.PMUDataSize)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), s2.TimeUs)

	m, err := ReadVMMap(f)
	require.NoError(t, err)
	require.Equal(t, "dummy", m.Label)
	require.Equal(t, uint64(0x400000), m.Addr)
}

func TestWriteSampleRejectsWrongPMUDataSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	wr, err := NewWriter(f, pmu.Custom, 8)
	require.NoError(t, err)
	err = wr.WriteSample(Sample{TimeUs: 1, PMUData: make([]byte, 4)})
	require.Error(t, err)
}

func TestHeaderSizeIsFixed(t *testing.T) {
	require.Equal(t, 36, HeaderSize)
}
