// Package forkexec launches a container root process with raw clone and
// execve. The child path runs on raw syscalls only; failures before exec
// are reported to the parent as errno plus an error location over a
// close-on-exec pipe, so a closed pipe after the final sync means the
// exec succeeded.
package forkexec
