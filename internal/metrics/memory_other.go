//go:build !(linux || darwin || freebsd)

package metrics

// MemoryUsageMB returns memory obtained from the OS by the Go runtime.
func MemoryUsageMB() float64 {
	return runtimeMemoryMB()
}
