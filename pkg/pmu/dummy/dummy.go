// Package dummy implements a pmu.Device that always reports zero.
//
// Grounded on original_source/pmu/dummy.c.
package dummy

import (
	"encoding/binary"
	"math"

	"github.com/EECS-NTNU/pperf/pkg/pmu"
)

const dataSize = 8 // sizeof(double)

// Device always reports 0.0 as a Power reading.
type Device struct{}

// New returns a Device. Init's argument is accepted for interface
// uniformity and ignored, matching pmuInit's (void) pmuArg.
func New() *Device { return &Device{} }

func (d *Device) Init(string) error { return nil }

func (d *Device) Read() ([]byte, error) {
	buf := make([]byte, dataSize)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(0.0))
	return buf, nil
}

func (d *Device) DataSize() uint32 { return dataSize }

func (d *Device) Kind() pmu.Kind { return pmu.Power }

func (d *Device) Release() error { return nil }

var _ pmu.Device = (*Device)(nil)
