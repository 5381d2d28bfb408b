//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package cryptstream

// Page locking is unavailable on this platform; the zero-on-release
// guarantee still holds.

func pinMemory(b []byte) error { return nil }

func unpinMemory(b []byte) {}
