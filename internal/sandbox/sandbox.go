// Package sandbox installs the optional post-init syscall restriction:
// after every listener is bound and the SQL pool is established, the
// process may narrow itself to a minimal set of syscalls and drop all
// capability bits. It is best-effort defence in depth, not a security
// boundary on its own.
package sandbox

import "errors"

// ErrUnsupported is returned by Install on a GOOS with no seccomp-style
// facility wired up. Callers decide whether that is fatal based on whether
// the operator asked for the sandbox: skip silently when seccomp=false,
// fail loudly when seccomp=true.
var ErrUnsupported = errors.New("sandbox: not supported on this platform")

// Policy names the syscalls the sandboxed process is allowed to keep
// using. The concrete installer ignores the slice's exact values today
// (the allow-list is fixed to what async network I/O plus the Postgres
// driver need), but the field exists so a future backend-specific policy
// (e.g. a unix-socket-only driver needing fewer syscalls) has somewhere to
// plug in without changing the Install signature.
type Policy struct {
	AllowedSyscalls []string
}

// DefaultPolicy is the minimal syscall set for this server's runtime
// behaviour: epoll-style async I/O, TCP accept, futex-based
// synchronisation, clock reads, memory mapping and process exit.
var DefaultPolicy = Policy{
	AllowedSyscalls: []string{
		"read", "write", "close",
		"accept4", "accept", "recvfrom", "sendto", "sendmsg", "recvmsg",
		"epoll_create1", "epoll_ctl", "epoll_wait", "epoll_pwait",
		"futex",
		"clock_gettime", "clock_nanosleep", "nanosleep",
		"mmap", "munmap", "mprotect", "madvise", "brk",
		"getsockopt", "setsockopt", "getsockname", "getpeername",
		"rt_sigreturn", "rt_sigaction", "rt_sigprocmask",
		"exit", "exit_group",
	},
}
