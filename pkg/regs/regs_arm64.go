//go:build arm64

package regs

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func pc(tid int) (uint64, error) {
	var r unix.PtraceRegsArm64
	if err := unix.PtraceGetRegSetArm64(tid, ntPRSTATUS, &r); err != nil {
		return 0, errors.Wrapf(err, "regs: ptrace getregset tid %d", tid)
	}
	return r.Pc, nil
}
