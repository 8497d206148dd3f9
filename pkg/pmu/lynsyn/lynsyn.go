// Package lynsyn models a pmu.Device for the NTNU Lynsyn v3 USB power
// measurement board.
//
// Grounded on original_source/pmu/lynsyn.c. The original links liblynsyn
// via cgo to talk to the board over USB; no Go binding for that hardware
// exists in the retrieval pack, and one is not fabricated here. Init
// parses the same sensor-selection argument and validation range the C
// version does, then fails with a descriptive error — this keeps the
// Device's surface and argument contract real while being honest that
// this build cannot drive the hardware.
package lynsyn

import (
	"fmt"
	"strconv"

	"github.com/EECS-NTNU/pperf/pkg/pmu"
)

// MaxSensors mirrors LYNSYN_MAX_SENSORS.
const MaxSensors = 7

const dataSize = 8

// Device targets a Lynsyn v3 board. Without the vendor driver, it always
// fails to initialize.
type Device struct {
	sensor int
}

// New returns an uninitialized Device.
func New() *Device { return &Device{} }

func (d *Device) Init(arg string) error {
	sensor, err := strconv.Atoi(arg)
	if err != nil || sensor < 1 || sensor > MaxSensors {
		return fmt.Errorf("lynsyn: invalid pmu-arg, valid range 1 to %d", MaxSensors)
	}
	d.sensor = sensor - 1
	return fmt.Errorf("lynsyn: device not available in this build (no liblynsyn binding)")
}

func (d *Device) Read() ([]byte, error) {
	return nil, fmt.Errorf("lynsyn: device not initialized")
}

func (d *Device) DataSize() uint32 { return dataSize }

func (d *Device) Kind() pmu.Kind { return pmu.Power }

func (d *Device) Release() error { return nil }

var _ pmu.Device = (*Device)(nil)
