//go:build riscv64

// RISC-V's user_regs_struct was not exposed by the kernel headers the
// original was built against, so it hand-rolled the struct layout
// (see original_source/pperf.h). golang.org/x/sys/unix now carries the
// equivalent PtraceRegs definition for riscv64, used here directly. The
// kernel only implements PTRACE_GETREGSET for this register set on
// riscv64 (no PTRACE_GETREGS), so the read goes through ptraceGetRegSet.
package regs

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func pc(tid int) (uint64, error) {
	var r unix.PtraceRegs
	if err := ptraceGetRegSet(tid, unsafe.Pointer(&r), unsafe.Sizeof(r)); err != nil {
		return 0, errors.Wrapf(err, "regs: ptrace getregset tid %d", tid)
	}
	return r.Pc, nil
}
