//go:build amd64

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
	return r.Rip, nil
}
