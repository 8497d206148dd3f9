// Package regs reads the program counter of a ptrace-stopped thread.
//
// The register layout PTRACE_GETREGSET/NT_PRSTATUS returns is
// architecture-specific; each GOARCH has its own file here extracting
// the PC the same way pperf.c's #ifdef __aarch64__ / __riscv / __amd64__
// block does.
package regs

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// PC reads tid's current program counter via PTRACE_GETREGSET.
func PC(tid int) (uint64, error) {
	return pc(tid)
}

// ntPRSTATUS mirrors debug/elf.NT_PRSTATUS (1), duplicated here so this
// package doesn't pull in debug/elf's compress/zlib/debug/dwarf
// dependency graph for one constant.
const ntPRSTATUS = 1

// ptraceGetRegSet issues PTRACE_GETREGSET(NT_PRSTATUS) for tid, decoding
// the result directly into the size bytes at regsout. golang.org/x/sys/unix
// only names this request explicitly for arm64 (PtraceGetRegSetArm64); on
// every other GOARCH it must be issued directly, the same way pkg/launch
// issues sched_setscheduler directly for a request x/sys/unix doesn't wrap.
func ptraceGetRegSet(tid int, regsout unsafe.Pointer, size uintptr) error {
	iov := unix.Iovec{Base: (*byte)(regsout)}
	iov.SetLen(int(size))
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, uintptr(unix.PTRACE_GETREGSET), uintptr(tid), uintptr(ntPRSTATUS), uintptr(unsafe.Pointer(&iov)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
