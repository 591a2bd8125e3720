package cv

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
)

var (
	defaultWorkersOnce sync.Once
	defaultWorkers     int
)

// DefaultWorkers 返回默认并行协程数（CPU 逻辑核数）
func DefaultWorkers() int {
	defaultWorkersOnce.Do(func() {
		n, err := cpu.Counts(true)
		if err != nil || n <= 0 {
			n = runtime.NumCPU()
		}
		defaultWorkers = n
	})
	return defaultWorkers
}
