//go:build linux && amd64

package sandbox

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestBuildFilterProgramEndsWithAllowThenPrecedingKill(t *testing.T) {
	prog := buildFilterProgram([]uint32{unix.SYS_READ, unix.SYS_WRITE})

	last := prog[len(prog)-1]
	if last.Code != unix.BPF_RET|unix.BPF_K || last.K != seccompRetAllow {
		t.Fatalf("expected program to end with RET ALLOW, got %+v", last)
	}
	secondToLast := prog[len(prog)-2]
	if secondToLast.Code != unix.BPF_RET|unix.BPF_K || secondToLast.K != seccompRetKill {
		t.Fatalf("expected RET KILL immediately before RET ALLOW, got %+v", secondToLast)
	}
}

func TestBuildFilterProgramChecksArchBeforeSyscallNumber(t *testing.T) {
	prog := buildFilterProgram([]uint32{unix.SYS_READ})

	if prog[0].Code != unix.BPF_LD|unix.BPF_W|unix.BPF_ABS || prog[0].K != seccompDataOffsetArch {
		t.Fatalf("expected first instruction to load the arch field, got %+v", prog[0])
	}
	if prog[1].K != auditArchX8664 {
		t.Fatalf("expected arch check against AUDIT_ARCH_X86_64, got %+v", prog[1])
	}
}

func TestBuildFilterProgramLastSyscallJumpsDirectlyToAllow(t *testing.T) {
	allowed := []uint32{unix.SYS_READ, unix.SYS_WRITE, unix.SYS_CLOSE}
	prog := buildFilterProgram(allowed)

	// Instructions 0-2 are arch-load/arch-jeq/RET KILL, instruction 3 is
	// the syscall-nr load, and the per-syscall comparisons start at 4.
	lastCompare := prog[4+len(allowed)-1]
	if lastCompare.Jt != 1 {
		t.Fatalf("expected the final comparison to jump 1 instruction to RET ALLOW, got Jt=%d", lastCompare.Jt)
	}
}
