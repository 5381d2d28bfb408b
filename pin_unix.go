//go:build linux || darwin || freebsd || netbsd || openbsd

package cryptstream

import "golang.org/x/sys/unix"

// pinMemory locks the buffer's pages into RAM so the decoded secret cannot
// be written to swap. Callers treat failure as non-fatal; RLIMIT_MEMLOCK
// may be too low in containers.
func pinMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Mlock(b)
}

// unpinMemory releases the page lock. Must only be called after the buffer
// has been zeroed.
func unpinMemory(b []byte) {
	if len(b) == 0 {
		return
	}
	_ = unix.Munlock(b)
}
