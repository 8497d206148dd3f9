// Package pmu defines the measurement-device interface sampled once per
// profiler tick, and the fixed-size data it produces.
package pmu

// Kind identifies what a Device measures. The numeric value becomes the
// on-disk profile's magic number, matching enum PMU_WHAT.
type Kind uint32

const (
	Custom Kind = iota
	Current
	Voltage
	Power
)

func (k Kind) String() string {
	switch k {
	case Custom:
		return "custom"
	case Current:
		return "current"
	case Voltage:
		return "voltage"
	case Power:
		return "power"
	default:
		return "unknown"
	}
}

// Device is a measurement source sampled once per tick of the sampler
// loop. It mirrors the four pmu* function-pointer operations: init once
// before sampling, read once per sample, report what it measures, and
// release once after sampling or on error.
type Device interface {
	// Init prepares the device using the given backend-specific argument
	// string (e.g. a comma-separated RAPL domain list, or a sensor index).
	Init(arg string) error
	// Read returns the device's current reading. Its length is constant
	// across calls for the lifetime of a Device and equals DataSize().
	Read() ([]byte, error)
	// DataSize reports the fixed byte length of a Read() result.
	DataSize() uint32
	// Kind reports what this device measures.
	Kind() Kind
	// Release frees any resources acquired by Init.
	Release() error
}
