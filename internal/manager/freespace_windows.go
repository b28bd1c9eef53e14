//go:build windows

package manager

import "golang.org/x/sys/windows"

// freeBytes returns the free space available to unprivileged writers on
// the volume holding dir, or -1 when it cannot be determined.
func freeBytes(dir string) int64 {
	var free, total, totalFree uint64
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return -1
	}
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return -1
	}
	return int64(free)
}
