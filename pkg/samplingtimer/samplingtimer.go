// Package samplingtimer provides the adaptive interval timer that drives
// the sampler's tick rate.
//
// Grounded on original_source/pperf.c's struct timerData / timerCallback
// / pauseTimer / scheduleInterruptNow / scheduleInterruptIn /
// scheduleNextInterrupt / startTimer / stopTimer.
//
// The original installs a SIGALRM handler via sigaction and arms a POSIX
// interval timer (timer_create/timer_settime); the handler's only job is
// to kill() the interrupt signal to the sampling target and stamp the
// last-interrupt time. Go's runtime owns signal delivery and does not
// permit installing a raw async-signal-safe handler, so this is
// reimplemented on Linux timerfd: a dedicated goroutine blocks on a read
// of the timerfd and performs exactly those two actions when it wakes.
package samplingtimer

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// InterruptSignal is the signal sent to the target to break it out of
// PTRACE_CONT for a sample, matching TRACEE_INTERUPT_SIGNAL (SIGUSR2).
const InterruptSignal = unix.SIGUSR2

// Timer is an adaptive, re-armable interval timer. A Timer with a zero
// SamplingInterval is inert: every operation is a no-op, matching the
// original's "frequency 0 disables the timer" behavior.
type Timer struct {
	// SamplingInterval is the nominal period between interrupts.
	SamplingInterval time.Duration
	// Tid is the tid signaled on every expiry.
	Tid int

	mu             sync.Mutex
	fd             int
	active         bool
	lastInterrupt  time.Time
	stopCh         chan struct{}
	wg             sync.WaitGroup
	interruptCount uint64
}

// New returns a Timer for the given sampling interval and target tid.
func New(interval time.Duration, tid int) *Timer {
	return &Timer{SamplingInterval: interval, Tid: tid, fd: -1}
}

// Start arms the timer and launches its watcher goroutine. It is a
// no-op if SamplingInterval is 0. Mirrors startTimer.
func (t *Timer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.SamplingInterval == 0 {
		return nil
	}
	if t.active {
		return errors.New("samplingtimer: already active")
	}

	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, 0)
	if err != nil {
		return errors.Wrap(err, "samplingtimer: timerfd_create")
	}
	t.fd = fd
	t.active = true
	t.stopCh = make(chan struct{})

	t.wg.Add(1)
	go t.watch(fd)
	return nil
}

// Stop disarms the timer and stops its watcher goroutine. Mirrors
// stopTimer.
//
// watch's unix.Read blocks on the fd and only checks stopCh between
// expiries, and closing the fd does not release that read (the pending
// read keeps the timerfd open). Stop therefore arms the timer to fire at
// once before closing the fd: watch wakes, sees stopCh closed, and
// returns without signaling Tid. Without that, Stop could hang forever
// when no further expiry was going to arrive (e.g. after Pause or a
// one-shot that already fired).
func (t *Timer) Stop() error {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return nil
	}
	t.active = false
	close(t.stopCh)
	fd := t.fd
	t.fd = -1
	t.mu.Unlock()

	var closeErr error
	if fd >= 0 {
		_ = armRelative(fd, time.Nanosecond)
		closeErr = unix.Close(fd)
	}
	t.wg.Wait()
	if closeErr != nil {
		return errors.Wrap(closeErr, "samplingtimer: close timerfd")
	}
	return nil
}

// Pause disarms the timer without stopping the watcher goroutine.
// Mirrors pauseTimer.
func (t *Timer) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return nil
	}
	return armRelative(t.fd, 0)
}

// ScheduleNow arms the timer to fire as soon as possible. Mirrors
// scheduleInterruptNow.
func (t *Timer) ScheduleNow() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return nil
	}
	return armRelative(t.fd, time.Nanosecond)
}

// ScheduleIn arms the timer to fire after d. A non-positive d schedules
// immediately, matching scheduleInterruptIn's zero-duration fallthrough
// to scheduleInterruptNow.
func (t *Timer) ScheduleIn(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return nil
	}
	if d <= 0 {
		return armRelative(t.fd, time.Nanosecond)
	}
	return armRelative(t.fd, d)
}

// ScheduleNext arms the timer for lastInterrupt + SamplingInterval - now,
// the adaptive rearm that keeps the average sampling rate close to
// SamplingInterval even after the current sample took some time to
// collect. Mirrors scheduleNextInterrupt.
func (t *Timer) ScheduleNext() error {
	t.mu.Lock()
	last := t.lastInterrupt
	interval := t.SamplingInterval
	active := t.active
	fd := t.fd
	t.mu.Unlock()

	if !active {
		return nil
	}
	next := last.Add(interval).Sub(time.Now())
	if next <= 0 {
		return armRelative(fd, time.Nanosecond)
	}
	return armRelative(fd, next)
}

// LastInterrupt returns the timestamp of the most recent timer expiry.
func (t *Timer) LastInterrupt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastInterrupt
}

// Interrupts returns the number of expiries delivered so far.
func (t *Timer) Interrupts() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interruptCount
}

// watch is the analogue of timerCallback: on every timerfd expiry, send
// InterruptSignal to Tid and stamp the expiry time. It is the only code
// that runs concurrently with the caller's use of the Timer. fd is
// captured at Start time and passed in rather than read from t.fd, since
// Stop clears t.fd under t.mu from a different goroutine.
func (t *Timer) watch(fd int) {
	defer t.wg.Done()
	buf := make([]byte, 8)
	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		n, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if n <= 0 {
			continue
		}
		select {
		case <-t.stopCh:
			return
		default:
		}

		// Tid is the target's root pid, a process distinct from the
		// sampler's own thread group; kill (not tgkill against our own
		// tgid) is what reaches it. Mirrors the original's
		// kill(callback.root_tid, sig).
		for {
			err := unix.Kill(t.Tid, InterruptSignal)
			if err == nil || err != unix.EAGAIN {
				break
			}
		}

		t.mu.Lock()
		t.lastInterrupt = time.Now()
		t.interruptCount++
		t.mu.Unlock()
	}
}

func armRelative(fd int, d time.Duration) error {
	if fd < 0 {
		return nil
	}
	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(0),
		Value:    unix.NsecToTimespec(d.Nanoseconds()),
	}
	return unix.TimerfdSettime(fd, 0, &spec, nil)
}
