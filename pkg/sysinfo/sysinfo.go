// Package sysinfo captures a snapshot of the host so run metrics can
// be correlated with the machine that produced the load.
package sysinfo

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSnapshot describes the load-generating host
type HostSnapshot struct {
	Hostname      string
	OS            string
	Arch          string
	CPUCores      int
	CPUModel      string
	TotalMemoryMB uint64
}

// Collect gathers the snapshot. Failures degrade to partial data;
// missing host info never blocks a run.
func Collect() HostSnapshot {
	snap := HostSnapshot{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUCores: runtime.NumCPU(),
	}

	if hostname, err := os.Hostname(); err == nil {
		snap.Hostname = hostname
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		snap.CPUModel = infos[0].ModelName
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		snap.TotalMemoryMB = vmem.Total / (1024 * 1024)
	}
	return snap
}

// Fields renders the snapshot for structured logging
func (s HostSnapshot) Fields() map[string]interface{} {
	return map[string]interface{}{
		"hostname":  s.Hostname,
		"os":        s.OS,
		"arch":      s.Arch,
		"cpu_cores": s.CPUCores,
		"memory_mb": s.TotalMemoryMB,
	}
}
