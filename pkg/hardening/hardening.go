// Package hardening applies best-effort process hardening at startup:
// locking the process's memory pages so secret material is never swapped
// to disk.
package hardening

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// LockMemory calls mlockall(MCL_CURRENT|MCL_FUTURE) so pages already
// mapped and any mapped in the future stay resident in RAM. It is a
// best-effort call: an unprivileged process or an unsupported platform
// returns an error the caller should warn on, not fail startup over.
func LockMemory() error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("hardening: memory locking is only implemented on linux, got %s", runtime.GOOS)
	}
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("hardening: mlockall: %w", err)
	}
	return nil
}
