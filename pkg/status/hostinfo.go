//go:build linux

package status

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// HostInfo describes the machine serving the status stream.
type HostInfo struct {
	Hostname string  `json:"hostname"`
	System   string  `json:"system"`
	Release  string  `json:"release"`
	Machine  string  `json:"machine"`
	PID      int     `json:"pid"`
	Uptime   float64 `json:"uptime"`
}

func hostInfo(start time.Time) HostInfo {
	info := HostInfo{
		PID:    os.Getpid(),
		Uptime: time.Since(start).Seconds(),
	}
	info.Hostname, _ = os.Hostname()

	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		info.System = utsString(uts.Sysname)
		info.Release = utsString(uts.Release)
		info.Machine = utsString(uts.Machine)
	}
	return info
}

func utsString(f [65]byte) string {
	n := 0
	for n < len(f) && f[n] != 0 {
		n++
	}
	return string(f[:n])
}
