package tracer

import (
	"context"
	"math/rand"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/EECS-NTNU/pperf/pkg/launch"
	"github.com/EECS-NTNU/pperf/pkg/pmu"
	"github.com/EECS-NTNU/pperf/pkg/profile"
	"github.com/EECS-NTNU/pperf/pkg/ptime"
	"github.com/EECS-NTNU/pperf/pkg/regs"
	"github.com/EECS-NTNU/pperf/pkg/samplingtimer"
	"github.com/EECS-NTNU/pperf/pkg/tasktable"
	"github.com/EECS-NTNU/pperf/pkg/vmmap"
)

const ptraceOptions = unix.PTRACE_O_TRACECLONE | unix.PTRACE_O_TRACEFORK |
	unix.PTRACE_O_TRACEVFORK | unix.PTRACE_O_TRACEEXIT | unix.PTRACE_O_EXITKILL

// ExitCode classifies the outcome of Run, matching spec.md §6's exit
// code contract: 0 success, 1 general/fatal error, 2 target never
// started or stopped unexpectedly.
type ExitCode int

const (
	ExitSuccess        ExitCode = 0
	ExitFatal          ExitCode = 1
	ExitTargetAbnormal ExitCode = 2
)

// RunError carries the exit code a caller should surface alongside the
// underlying error.
type RunError struct {
	Code ExitCode
	Err  error
}

func (e *RunError) Error() string { return e.Err.Error() }
func (e *RunError) Unwrap() error { return e.Err }

func fatal(err error) error    { return &RunError{Code: ExitFatal, Err: err} }
func abnormal(err error) error { return &RunError{Code: ExitTargetAbnormal, Err: err} }

// Run launches cfg.Args under ptrace, samples it at cfg.Frequency until
// it exits, and writes a profile to cfg.Output if configured. It must be
// called from a goroutine that will not be reused for anything else:
// ptrace state is per-OS-thread, and Run locks itself to its OS thread
// for its entire duration.
//
// cfg.Device is assumed already initialized: PMU init happens before
// fork and is fatal on failure, per spec.md's startup sequence, so it is
// the caller's responsibility, not Run's.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	target := exec.Command(cfg.Args[0], cfg.Args[1:]...)
	target.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
	target.Stdin, target.Stdout, target.Stderr = nil, nil, nil

	if cfg.Scheduler != nil {
		if err := cfg.Scheduler.Apply(0); err != nil {
			return Stats{}, fatal(err)
		}
	}

	var targetMask *unix.CPUSet
	if cfg.CoreIsolation {
		cpus, err := launch.OnlineCPUs()
		if err != nil {
			return Stats{}, fatal(err)
		}
		samplerMask, tMask, err := launch.IsolationMasks(cpus)
		if err != nil {
			return Stats{}, fatal(err)
		}
		if err := launch.SetAffinity(0, samplerMask); err != nil {
			return Stats{}, fatal(err)
		}
		targetMask = &tMask
	}

	if err := target.Start(); err != nil {
		return Stats{}, fatal(errors.Wrap(err, "tracer: fork/exec target"))
	}
	root := target.Process.Pid

	if targetMask != nil {
		if err := launch.SetAffinity(root, *targetMask); err != nil {
			_ = killAndDetach(root)
			return Stats{}, fatal(err)
		}
	}

	var status unix.WaitStatus
	rootIntrTarget, err := wait4Retry(root, &status)
	if err != nil {
		return Stats{}, fatal(errors.Wrap(err, "tracer: initial wait"))
	}
	if status.Exited() {
		return Stats{}, abnormal(errors.New("tracer: unexpected process termination"))
	}
	if rootIntrTarget != root {
		_ = killAndDetach(root)
		return Stats{}, abnormal(errors.New("tracer: unexpected pid stopped"))
	}

	if err := unix.PtraceSetOptions(root, ptraceOptions); err != nil {
		_ = killAndDetach(root)
		return Stats{}, fatal(errors.Wrap(err, "tracer: ptrace setoptions"))
	}

	// Prove the address space is readable; the authoritative VMMap is
	// captured at target exit.
	if probe, err := vmmap.Collect(ctx, root, 1); err != nil || len(probe) == 0 {
		_ = killAndDetach(root)
		return Stats{}, fatal(errors.New("tracer: could not detect process vmmap"))
	}

	table, err := tasktable.New(root)
	if err != nil {
		_ = killAndDetach(root)
		return Stats{}, fatal(errors.Wrap(err, "tracer: add root task"))
	}

	var writer *profile.Writer
	if cfg.Output != nil {
		writer, err = profile.NewWriter(cfg.Output, cfg.Device.Kind(), cfg.Device.DataSize())
		if err != nil {
			_ = killAndDetach(root)
			return Stats{}, fatal(err)
		}
	}

	interval := ptime.FrequencyToInterval(cfg.Frequency)
	timer := samplingtimer.New(interval, root)
	if err := timer.Start(); err != nil {
		_ = killAndDetach(root)
		return Stats{}, fatal(errors.Wrap(err, "tracer: start timer"))
	}

	samplerStart := time.Now()

	if cfg.Randomize {
		if err := timer.ScheduleIn(time.Duration(rand.Int63n(max(int64(interval), 1)))); err != nil {
			_ = killAndDetach(root)
			return Stats{}, fatal(err)
		}
	} else {
		if err := timer.ScheduleNow(); err != nil {
			_ = killAndDetach(root)
			return Stats{}, fatal(err)
		}
	}

	if err := ptraceContRetry(root, 0); err != nil {
		_ = killAndDetach(root)
		return Stats{}, fatal(errors.Wrap(err, "tracer: initial ptrace cont"))
	}

	l := &loop{
		root:   root,
		table:  table,
		timer:  timer,
		device: cfg.Device,
		writer: writer,
	}
	runErr := l.run()

	if stopErr := timer.Stop(); stopErr != nil && runErr == nil {
		runErr = fatal(errors.Wrap(stopErr, "tracer: stop timer"))
	}

	stats := Stats{
		TotalWallTime:    time.Since(samplerStart),
		TotalLatency:     l.totalLatency,
		Samples:          l.samples,
		Interrupts:       l.interrupts,
		SamplingInterval: interval,
		Frequency:        cfg.Frequency,
	}

	if runErr != nil {
		return stats, runErr
	}

	if len(l.processMaps) == 0 {
		return stats, fatal(errors.New("tracer: no process map was read, process exit was not reported"))
	}

	if writer != nil {
		if err := writer.Close(ptime.Microseconds(stats.TotalWallTime), ptime.Microseconds(stats.TotalLatency), l.processMaps); err != nil {
			return stats, fatal(err)
		}
	}

	return stats, nil
}

// loop holds the mutable state of one run's event loop: the task table,
// timer, accumulated VMMaps, and counters. Split out of Run so Phase A
// and Phase B can share state without a long parameter list.
type loop struct {
	root   int
	table  *tasktable.Table
	timer  *samplingtimer.Timer
	device pmu.Device
	writer *profile.Writer

	processMaps  vmmap.Maps
	samples      uint64
	interrupts   uint64
	totalLatency time.Duration
}

// run drives the event loop (Phase A then Phase B, repeated) until the
// task table empties or a fatal condition is hit.
func (l *loop) run() error {
	for l.table.Len() > 0 {
		groupStop := false
		stopCount := 0
		var latencyStart time.Time

	phaseA:
		for l.table.Len() > 0 {
			var status unix.WaitStatus
			intrTarget, err := wait4Retry(-1, &status)
			if err != nil {
				return fatal(errors.Wrap(err, "tracer: wait4"))
			}

			if status.Exited() {
				if l.table.Len() == 1 || intrTarget == l.root {
					return nil // exitSampler: the root or the last tracee exited
				}
				if err := l.table.Remove(intrTarget); err != nil {
					return fatal(errors.Wrap(err, "tracer: remove exited task"))
				}
				if groupStop && stopCount >= l.table.Len() {
					// we waited for this thread to stop, but it died;
					// sample with whoever is left.
					break phaseA
				}
				continue phaseA
			}

			if !status.Stopped() {
				return abnormal(errors.Errorf("tracer: unexpected process state of tid %d", intrTarget))
			}

			signal := status.StopSignal()
			cont := int(signal)

			if signal == samplingtimer.InterruptSignal && !groupStop {
				l.table.GroupStopNonThreadTasks()
				cont = int(unix.SIGSTOP)
				groupStop = true
				stopCount = 0
				latencyStart = time.Now()
			} else if signal == unix.SIGSTOP {
				cont = 0
				if !l.table.Exists(intrTarget) {
					if err := l.table.Add(intrTarget); err != nil {
						return fatal(errors.Wrap(err, "tracer: add new task"))
					}
				}
				if groupStop {
					stopCount++
					if stopCount == l.table.Len() {
						break phaseA
					}
					continue phaseA
				}
			} else {
				eventStatus := int(status) >> 16
				switch {
				case signal == unix.SIGTRAP && eventStatus == unix.PTRACE_EVENT_EXIT && l.table.IsNonThread(intrTarget):
					if maps, err := vmmap.Collect(context.Background(), intrTarget, 0); err == nil {
						l.processMaps = mergeMaps(l.processMaps, maps)
					}
					cont = 0
				case signal == unix.SIGTRAP && (eventStatus == unix.PTRACE_EVENT_CLONE ||
					eventStatus == unix.PTRACE_EVENT_FORK || eventStatus == unix.PTRACE_EVENT_VFORK):
					cont = 0
				default:
					l.interrupts++
				}
			}

			if err := ptraceContRetry(intrTarget, cont); err != nil {
				if isESRCH(err) {
					_ = l.table.Remove(intrTarget)
				} else {
					return fatal(err)
				}
			}
		}

		if err := l.sample(latencyStart); err != nil {
			return err
		}
	}
	return nil
}

// sample implements Phase B: take the measurement, write the record,
// rearm the timer, and continue every surviving task.
func (l *loop) sample(latencyStart time.Time) error {
	sampleWallTime := time.Now()

	var pmuData []byte
	if l.device != nil {
		var err error
		pmuData, err = l.device.Read()
		if err != nil {
			return fatal(errors.Wrap(err, "tracer: pmu read"))
		}
	}

	var sampleTasks []profile.Task
	for i := 0; i < l.table.Len(); {
		task := l.table.At(i)
		pc, err := regs.PC(task.Tid)
		if err != nil {
			if isESRCH(err) {
				if rmErr := l.table.RemoveIndex(i); rmErr != nil {
					return fatal(rmErr)
				}
				continue
			}
			return fatal(errors.Wrap(err, "tracer: read registers"))
		}
		cputime, err := task.CPUTime()
		if err != nil {
			return fatal(err)
		}
		sampleTasks = append(sampleTasks, profile.Task{Tid: uint32(task.Tid), PC: pc, CPUTime: cputime})
		i++
	}

	if l.writer != nil {
		if err := l.writer.WriteSample(profile.Sample{
			TimeUs:  uint64(sampleWallTime.UnixMicro()),
			PMUData: pmuData,
			Tasks:   sampleTasks,
		}); err != nil {
			return fatal(err)
		}
	}

	l.samples++

	if err := l.timer.ScheduleNext(); err != nil {
		return fatal(errors.Wrap(err, "tracer: schedule next interrupt"))
	}

	if !latencyStart.IsZero() {
		l.totalLatency += time.Since(latencyStart)
	}

	for i := 0; i < l.table.Len(); {
		task := l.table.At(i)
		err := ptraceContRetry(task.Tid, 0)
		if err != nil && isESRCH(err) {
			if rmErr := l.table.RemoveIndex(i); rmErr != nil {
				return fatal(rmErr)
			}
			continue
		} else if err != nil {
			return fatal(err)
		}
		i++
	}
	return nil
}

func mergeMaps(existing, fresh vmmap.Maps) vmmap.Maps {
	result := existing
	for _, m := range fresh {
		if !result.Contains(m.Addr, m.Addr+m.Size, m.Label) {
			result = append(result, m)
		}
	}
	return result
}

func wait4Retry(pid int, status *unix.WaitStatus) (int, error) {
	for {
		wpid, err := unix.Wait4(pid, status, unix.WALL, nil)
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		return wpid, err
	}
}

func ptraceContRetry(tid, signal int) error {
	for {
		err := unix.PtraceCont(tid, signal)
		if err == nil {
			return nil
		}
		if err == unix.EBUSY || err == unix.EFAULT || err == unix.ESRCH {
			if err == unix.ESRCH {
				return err
			}
			continue
		}
		return err
	}
}

func isESRCH(err error) bool {
	return errors.Is(err, unix.ESRCH)
}

func killAndDetach(pid int) error {
	_ = unix.Kill(pid, unix.SIGKILL)
	return unix.PtraceDetach(pid)
}
