// Package launch sets up real-time scheduling class and CPU-affinity
// core isolation before the tracer forks its target.
//
// Grounded on original_source/pperf.c's getOnlineCPUIds and the
// sched_setscheduler/sched_setaffinity blocks in main(): one mask
// reserves the last online CPU for the sampler, the complement is
// handed to the traced target.
package launch

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// schedParam mirrors struct sched_param, which golang.org/x/sys/unix does
// not wrap directly; sched_setscheduler is invoked via raw syscall using
// this layout (a single int32 priority field, kernel ABI stable since
// Linux 2.6).
type schedParam struct {
	Priority int32
}

func schedSetscheduler(pid, policy int, param *schedParam) error {
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, uintptr(pid), uintptr(policy), uintptr(unsafe.Pointer(param)))
	if errno != 0 {
		return errno
	}
	return nil
}

// Linux scheduling policies, not wrapped by golang.org/x/sys/unix.
const (
	schedFIFO = 1
	schedRR   = 2
)

// Scheduler selects a real-time scheduling policy to apply to the
// sampler and its target before fork.
type Scheduler struct {
	Policy   int // schedFIFO or schedRR
	Priority int
}

// FromFifoRR builds a Scheduler from the CLI's mutually-exclusive
// --fifo/--rr priorities: if fifo is set it zeroes rr, so fifo wins when
// both are given.
func FromFifoRR(fifo, rr int) (*Scheduler, bool) {
	if fifo != 0 {
		rr = 0
	}
	prio := rr + fifo
	if prio == 0 {
		return nil, false
	}
	policy := schedRR
	if fifo != 0 {
		policy = schedFIFO
	}
	return &Scheduler{Policy: policy, Priority: prio}, true
}

// Apply applies the scheduler to pid (0 means the calling process).
func (s *Scheduler) Apply(pid int) error {
	if s == nil {
		return nil
	}
	if err := schedSetscheduler(pid, s.Policy, &schedParam{Priority: int32(s.Priority)}); err != nil {
		return errors.Wrapf(err, "launch: sched_setscheduler(policy=%d, priority=%d)", s.Policy, s.Priority)
	}
	return nil
}

// OnlineCPUs reads /proc/cpuinfo and returns the set of online CPU ids,
// in file order. Mirrors getOnlineCPUIds.
func OnlineCPUs() ([]int, error) {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return nil, errors.Wrap(err, "launch: open /proc/cpuinfo")
	}
	defer f.Close()

	var ids []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "processor") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "launch: scan /proc/cpuinfo")
	}
	return ids, nil
}

// IsolationMasks splits the online CPU set into a sampler mask (the
// single last CPU) and a target mask (every other CPU), matching the
// original's core-isolation feature: the sampler is pinned to one
// reserved core, the target gets the rest. With a single CPU, both masks
// hold that CPU.
func IsolationMasks(cpus []int) (sampler, target unix.CPUSet, err error) {
	if len(cpus) == 0 {
		return unix.CPUSet{}, unix.CPUSet{}, fmt.Errorf("launch: no online cpu cores were detected")
	}
	sampler.Zero()
	sampler.Set(cpus[len(cpus)-1])

	target.Zero()
	if len(cpus) > 1 {
		for _, id := range cpus[:len(cpus)-1] {
			target.Set(id)
		}
	} else {
		target.Set(cpus[0])
	}
	return sampler, target, nil
}

// SetAffinity pins pid (0 means the calling process) to mask.
func SetAffinity(pid int, mask unix.CPUSet) error {
	if err := unix.SchedSetaffinity(pid, &mask); err != nil {
		return errors.Wrap(err, "launch: sched_setaffinity")
	}
	return nil
}
