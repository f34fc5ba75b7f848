package scheduler

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthSnapshot is the process-health readout the `/api/status`
// handler surfaces alongside trading state.
type HealthSnapshot struct {
	CPUPercent    float64
	MemoryPercent float64
}

// ReadHealth samples CPU and memory usage over a short window, kept
// under the chat poll's own cadence so it never blocks an API caller
// for long.
func ReadHealth() HealthSnapshot {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	memPercent := 0.0
	if err == nil && memStat != nil {
		memPercent = memStat.UsedPercent
	}

	return HealthSnapshot{CPUPercent: cpuPercent[0], MemoryPercent: memPercent}
}
