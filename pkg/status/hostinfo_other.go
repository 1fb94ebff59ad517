//go:build !linux

package status

import (
	"os"
	"runtime"
	"time"
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
		System:  runtime.GOOS,
		Machine: runtime.GOARCH,
		PID:     os.Getpid(),
		Uptime:  time.Since(start).Seconds(),
	}
	info.Hostname, _ = os.Hostname()
	return info
}
