//go:build linux || darwin || freebsd

package metrics

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// MemoryUsageMB returns the peak resident set size of the process in
// megabytes, falling back to the Go runtime's view when getrusage fails.
func MemoryUsageMB() float64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil || ru.Maxrss <= 0 {
		return runtimeMemoryMB()
	}
	// Maxrss is bytes on darwin, kilobytes elsewhere.
	if runtime.GOOS == "darwin" {
		return float64(ru.Maxrss) / (1024 * 1024)
	}
	return float64(ru.Maxrss) / 1024
}
