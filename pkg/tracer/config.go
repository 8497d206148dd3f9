// Package tracer implements the ptrace-based fork/exec/sample/write
// event loop: the core of the profiler.
//
// Grounded step for step on original_source/pperf.c's main() (the
// canonical latest revision per spec.md's revision-divergence note) and
// structurally on the teacher's thread.wait/attach/init method shapes
// (IreliaTable-gvisor/pkg/sentry/platform/systrap/subprocess.go).
package tracer

import (
	"io"
	"time"

	"github.com/EECS-NTNU/pperf/pkg/launch"
	"github.com/EECS-NTNU/pperf/pkg/pmu"
)

// Config holds every user-facing knob for one sampling run.
type Config struct {
	// Output, if non-nil, receives the binary profile. A nil Output
	// means "don't write a profile", matching the original's NULL
	// output file handling (every fwrite call is skipped).
	Output io.WriteSeeker

	// Device is the PMU backend read once per sample.
	Device pmu.Device

	// Frequency is the sampling frequency in Hz. 0 disables periodic
	// sampling: the sampler blocks in wait4 until the target exits.
	Frequency float64

	// Randomize phases the first sample uniformly within
	// [0, interval) instead of firing it immediately.
	Randomize bool

	// Scheduler, if non-nil, is applied to both the sampler and the
	// target before fork.
	Scheduler *launch.Scheduler

	// CoreIsolation pins the sampler to the last online CPU and the
	// target to every other online CPU.
	CoreIsolation bool

	// Verbose requests end-of-run statistics.
	Verbose bool

	// Args is the target command and its arguments (argv[0] is the
	// executable).
	Args []string
}

// Stats summarizes one completed run, the data behind the --verbose
// report.
type Stats struct {
	TotalWallTime    time.Duration
	TotalLatency     time.Duration
	Samples          uint64
	Interrupts       uint64
	SamplingInterval time.Duration
	Frequency        float64
}
