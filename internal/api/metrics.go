package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessMetrics метрики процесса сервера
type ProcessMetrics struct {
	StartTime time.Time
	proc      *process.Process
}

// NewProcessMetrics создает новый экземпляр метрик
func NewProcessMetrics() *ProcessMetrics {
	pm := &ProcessMetrics{StartTime: time.Now()}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		pm.proc = proc
	}
	return pm
}

// Uptime возвращает время работы сервера
func (pm *ProcessMetrics) Uptime() string {
	uptime := time.Since(pm.StartTime)

	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}

// CPUPercent возвращает использование CPU процессом в процентах
func (pm *ProcessMetrics) CPUPercent() (float64, error) {
	if pm.proc != nil {
		if percent, err := pm.proc.CPUPercent(); err == nil {
			return percent, nil
		}
	}
	// Если не удалось получить метрику процесса, берём системную с прошлого вызова
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return 0, err
	}
	return percents[0], nil
}

// RSSMegabytes резидентная память процесса в MB
func (pm *ProcessMetrics) RSSMegabytes() (float64, error) {
	if pm.proc == nil {
		return 0, fmt.Errorf("process info unavailable")
	}
	mem, err := pm.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(mem.RSS) / 1024 / 1024, nil
}

// MemoryStats возвращает статистику памяти Go-рантайма
func (pm *ProcessMetrics) MemoryStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"alloc_mb":      float64(m.Alloc) / 1024 / 1024,
		"sys_mb":        float64(m.Sys) / 1024 / 1024,
		"heap_alloc_mb": float64(m.HeapAlloc) / 1024 / 1024,
		"num_gc":        m.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}
}
