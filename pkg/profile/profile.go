// Package profile writes and reads the fixed binary profile format: a
// 36-byte header, N sample records, then M VMMap records.
//
// Grounded on original_source/pperf.c's final fwrite sequence (magic,
// wall time, latency, samples, PMU data size, VMMap count, then
// per-sample records, then VMMap records) and vmmap.h's packed
// struct VMMap.
package profile

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/EECS-NTNU/pperf/pkg/pmu"
	"github.com/EECS-NTNU/pperf/pkg/vmmap"
)

// HeaderSize is the fixed, reserved size of the profile header in bytes.
const HeaderSize = 36

// VMMapLabelSize is the fixed, NUL-padded label width of an on-disk
// VMMap record.
const VMMapLabelSize = 256

// Header is the 36-byte fixed profile header.
type Header struct {
	Magic         pmu.Kind
	TotalWallTime uint64 // microseconds
	TotalLatency  uint64 // microseconds
	Samples       uint64
	PMUDataSize   uint32
	VMMapCount    uint32
}

// Task is one thread's reading within a Sample.
type Task struct {
	Tid     uint32
	PC      uint64
	CPUTime uint64
}

// Sample is one tick's worth of data: a wall-clock timestamp, the PMU
// reading taken at that instant, and every tracked task's PC/cputime.
type Sample struct {
	TimeUs  uint64
	PMUData []byte
	Tasks   []Task
}

// Writer streams sample records to w, reserving space for the header up
// front and backfilling it on Close. Mirrors the original's fseek past
// the header, then streamed fwrites, then a final rewind-and-overwrite.
type Writer struct {
	w           io.WriteSeeker
	pmuDataSize uint32
	magic       pmu.Kind
	samples     uint64
}

// NewWriter reserves HeaderSize bytes at the start of w for the header
// to be written later by Close.
func NewWriter(w io.WriteSeeker, magic pmu.Kind, pmuDataSize uint32) (*Writer, error) {
	if _, err := w.Seek(HeaderSize, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "profile: reserve header")
	}
	return &Writer{w: w, pmuDataSize: pmuDataSize, magic: magic}, nil
}

// WriteSample appends one sample record.
func (wr *Writer) WriteSample(s Sample) error {
	if uint32(len(s.PMUData)) != wr.pmuDataSize {
		return errors.Errorf("profile: sample pmu data is %d bytes, want %d", len(s.PMUData), wr.pmuDataSize)
	}
	if err := binary.Write(wr.w, binary.LittleEndian, s.TimeUs); err != nil {
		return errors.Wrap(err, "profile: write sample time")
	}
	if _, err := wr.w.Write(s.PMUData); err != nil {
		return errors.Wrap(err, "profile: write sample pmu data")
	}
	if err := binary.Write(wr.w, binary.LittleEndian, uint32(len(s.Tasks))); err != nil {
		return errors.Wrap(err, "profile: write sample task count")
	}
	for _, t := range s.Tasks {
		if err := binary.Write(wr.w, binary.LittleEndian, t); err != nil {
			return errors.Wrap(err, "profile: write sample task")
		}
	}
	wr.samples++
	return nil
}

// Close writes the VMMap block, then rewinds and writes the header.
// Mirrors the original's tail: fwrite(vmmaps), fseek(0), fwrite(header).
func (wr *Writer) Close(totalWallTimeUs, totalLatencyUs uint64, maps vmmap.Maps) error {
	for _, m := range maps {
		rec := vmmapRecord{Addr: m.Addr, Size: m.Size}
		copy(rec.Label[:], m.Label)
		if err := binary.Write(wr.w, binary.LittleEndian, rec); err != nil {
			return errors.Wrap(err, "profile: write vmmap record")
		}
	}

	if _, err := wr.w.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "profile: rewind for header")
	}
	h := Header{
		Magic:         wr.magic,
		TotalWallTime: totalWallTimeUs,
		TotalLatency:  totalLatencyUs,
		Samples:       wr.samples,
		PMUDataSize:   wr.pmuDataSize,
		VMMapCount:    uint32(len(maps)),
	}
	return writeHeader(wr.w, h)
}

type vmmapRecord struct {
	Addr  uint64
	Size  uint64
	Label [VMMapLabelSize]byte
}

func writeHeader(w io.Writer, h Header) error {
	fields := []any{
		uint32(h.Magic),
		h.TotalWallTime,
		h.TotalLatency,
		h.Samples,
		h.PMUDataSize,
		h.VMMapCount,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return errors.Wrap(err, "profile: write header field")
		}
	}
	return nil
}

// ReadHeader reads the fixed 36-byte header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	var magic uint32
	for _, f := range []any{
		&magic,
		&h.TotalWallTime,
		&h.TotalLatency,
		&h.Samples,
		&h.PMUDataSize,
		&h.VMMapCount,
	} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return Header{}, errors.Wrap(err, "profile: read header field")
		}
	}
	h.Magic = pmu.Kind(magic)
	return h, nil
}

// ReadSample reads one sample record, given the PMU data size recorded
// in the header.
func ReadSample(r io.Reader, pmuDataSize uint32) (Sample, error) {
	var s Sample
	if err := binary.Read(r, binary.LittleEndian, &s.TimeUs); err != nil {
		return Sample{}, errors.Wrap(err, "profile: read sample time")
	}
	s.PMUData = make([]byte, pmuDataSize)
	if _, err := io.ReadFull(r, s.PMUData); err != nil {
		return Sample{}, errors.Wrap(err, "profile: read sample pmu data")
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return Sample{}, errors.Wrap(err, "profile: read sample task count")
	}
	s.Tasks = make([]Task, count)
	for i := range s.Tasks {
		if err := binary.Read(r, binary.LittleEndian, &s.Tasks[i]); err != nil {
			return Sample{}, errors.Wrap(err, "profile: read sample task")
		}
	}
	return s, nil
}

// ReadVMMap reads one VMMap record.
func ReadVMMap(r io.Reader) (vmmap.Map, error) {
	var rec vmmapRecord
	if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
		return vmmap.Map{}, errors.Wrap(err, "profile: read vmmap record")
	}
	n := 0
	for n < len(rec.Label) && rec.Label[n] != 0 {
		n++
	}
	return vmmap.Map{Addr: rec.Addr, Size: rec.Size, Label: string(rec.Label[:n])}, nil
}
