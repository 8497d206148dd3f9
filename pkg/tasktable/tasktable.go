// Package tasktable tracks the set of tids currently under trace:
// whether each is a thread of the root task or a separate (non-thread)
// tracee, and a reusable handle onto its /proc schedstat file for
// cumulative CPU time.
//
// Grounded on original_source/pperf.c's struct trackTask, addTask,
// removeTask/removeTaskIndex, taskExists, groupStopNonThreadTasks,
// isNonThreadTask.
package tasktable

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Task is one tracked tid.
type Task struct {
	Tid    int
	Thread bool // true if Tid is a thread of the table's root task

	schedstatPath string
}

// Table holds every currently-tracked task, keyed by insertion order
// (matching the original's parallel-array, index-addressed design).
type Table struct {
	Root  int
	tasks []*Task
}

// New creates a Table tracking root as its first task.
func New(root int) (*Table, error) {
	t := &Table{Root: root}
	if err := t.Add(root); err != nil {
		return nil, err
	}
	return t, nil
}

// Add tracks tid as a new task. It resolves tid's schedstat path by
// first trying /proc/<root>/task/<tid>/schedstat (tid is a thread of
// root) and falling back to /proc/<tid>/task/<tid>/schedstat (tid is its
// own process group leader, e.g. after fork/vfork).
func (t *Table) Add(tid int) error {
	threadPath := fmt.Sprintf("/proc/%d/task/%d/schedstat", t.Root, tid)
	if _, err := os.Stat(threadPath); err == nil {
		t.tasks = append(t.tasks, &Task{Tid: tid, Thread: t.Root != tid, schedstatPath: threadPath})
		return nil
	}

	ownPath := fmt.Sprintf("/proc/%d/task/%d/schedstat", tid, tid)
	if _, err := os.Stat(ownPath); err != nil {
		return errors.Wrapf(err, "tasktable: could not locate schedstat for tid %d", tid)
	}
	t.tasks = append(t.tasks, &Task{Tid: tid, Thread: false, schedstatPath: ownPath})
	return nil
}

// Remove drops the task with the given tid. It reports an error if tid
// is not tracked, matching removeTask's return-1-on-miss behavior.
func (t *Table) Remove(tid int) error {
	for i, task := range t.tasks {
		if task.Tid == tid {
			t.tasks = append(t.tasks[:i], t.tasks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("tasktable: tid %d not tracked", tid)
}

// RemoveIndex drops the task at index i.
func (t *Table) RemoveIndex(i int) error {
	if i < 0 || i >= len(t.tasks) {
		return fmt.Errorf("tasktable: index %d out of range", i)
	}
	t.tasks = append(t.tasks[:i], t.tasks[i+1:]...)
	return nil
}

// Exists reports whether tid is tracked.
func (t *Table) Exists(tid int) bool {
	for _, task := range t.tasks {
		if task.Tid == tid {
			return true
		}
	}
	return false
}

// IsNonThread reports whether tid is tracked and is not a thread of the
// root task. An untracked tid reports false, matching isNonThreadTask.
func (t *Table) IsNonThread(tid int) bool {
	for _, task := range t.tasks {
		if task.Tid == tid {
			return !task.Thread
		}
	}
	return false
}

// Len reports the number of currently tracked tasks.
func (t *Table) Len() int { return len(t.tasks) }

// At returns the task at index i.
func (t *Table) At(i int) *Task { return t.tasks[i] }

// All returns every tracked task, in table order.
func (t *Table) All() []*Task { return t.tasks }

// GroupStopNonThreadTasks sends SIGSTOP directly (not via ptrace) to
// every tracked task that is not a thread of the root, initiating the
// group-stop sequence. Mirrors groupStopNonThreadTasks.
func (t *Table) GroupStopNonThreadTasks() {
	for _, task := range t.tasks {
		if !task.Thread {
			_ = unix.Kill(task.Tid, unix.SIGSTOP)
		}
	}
}

// CPUTime reopens and reads the task's schedstat file, returning the
// first (cumulative CPU time in nanoseconds) field. Mirrors
// getCPUTimeFromSchedstat's freopen-then-fscanf pattern: the file is
// reopened on every call because schedstat's contents only refresh on a
// fresh open, not on a seek-and-reread of an already-open descriptor.
func (task *Task) CPUTime() (uint64, error) {
	f, err := os.Open(task.schedstatPath)
	if err != nil {
		return 0, errors.Wrapf(err, "tasktable: reopen schedstat for tid %d", task.Tid)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Split(bufio.ScanWords)
	if !scanner.Scan() {
		return 0, fmt.Errorf("tasktable: empty schedstat for tid %d", task.Tid)
	}
	cputime, err := strconv.ParseUint(strings.TrimSpace(scanner.Text()), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "tasktable: parse schedstat for tid %d", task.Tid)
	}
	return cputime, nil
}
