//go:build !(linux && amd64)

package sandbox

// Install always reports ErrUnsupported: the seccomp-BPF filter in
// seccomp_linux_amd64.go is amd64-specific (its program hard-codes
// AUDIT_ARCH_X86_64 and amd64 syscall numbers), and no other GOOS exposes
// an equivalent facility through golang.org/x/sys/unix in this codebase.
func Install(policy Policy) error {
	return ErrUnsupported
}
