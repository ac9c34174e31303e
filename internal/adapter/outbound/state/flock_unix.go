//go:build !windows

package state

import "syscall"

// flockLock takes an exclusive advisory lock on the snapshot file,
// blocking until no other process holds it.
func flockLock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_EX)
}

// flockUnlock drops the snapshot file lock.
func flockUnlock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}
