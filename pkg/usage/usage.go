// Package usage samples the CPU and memory the process spends on a run.
// Readings come from procfs and cgroup files, so on other platforms only the
// Go heap figures are filled in.
package usage

import (
	"context"
	"runtime"
	"sync"
	"time"
)

type Sample struct {
	At             time.Time `json:"at"`
	UserSeconds    float64   `json:"user_seconds"`
	SystemSeconds  float64   `json:"system_seconds"`
	CPUPercent     float64   `json:"cpu_percent"` // 100 is one full core
	RSSBytes       uint64    `json:"rss_bytes"`
	HeapAllocBytes uint64    `json:"heap_alloc_bytes"`
	HeapInuseBytes uint64    `json:"heap_inuse_bytes"`
	// Cgroup figures are nil outside a container.
	ContainerUsageBytes *uint64 `json:"container_usage_bytes,omitempty"`
	ContainerLimitBytes *uint64 `json:"container_limit_bytes,omitempty"`
}

// Summary aggregates the samples taken over a run.
type Summary struct {
	Samples       int     `json:"samples"`
	CPUSeconds    float64 `json:"cpu_seconds"`
	AvgCPUPercent float64 `json:"avg_cpu_percent"`
	MaxCPUPercent float64 `json:"max_cpu_percent"`
	MaxRSSBytes   uint64  `json:"max_rss_bytes"`
	MaxHeapBytes  uint64  `json:"max_heap_bytes"`
}

type Collector struct {
	mu         sync.Mutex
	prevProc   uint64
	prevTotal  uint64
	startCPU   float64
	startKnown bool
	summary    Summary
	cpuSum     float64
}

func NewCollector() *Collector {
	return &Collector{}
}

// Collect takes one sample and folds it into the summary. CPUPercent is
// relative to the previous call and zero on the first one.
func (c *Collector) Collect() Sample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := Sample{
		At:             time.Now().UTC(),
		HeapAllocBytes: ms.HeapAlloc,
		HeapInuseBytes: ms.HeapInuse,
	}
	ut, st, rss, statOK := readProcSelfStat()
	if statOK {
		s.UserSeconds = float64(ut) / clockTicks
		s.SystemSeconds = float64(st) / clockTicks
		s.RSSBytes = rss
	}
	if used, limit, ok := readCgroupMemory(); ok {
		s.ContainerUsageBytes = &used
		if limit > 0 {
			s.ContainerLimitBytes = &limit
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if total, ok := readProcStatTotal(); ok && statOK {
		proc := ut + st
		if c.prevTotal > 0 && total > c.prevTotal {
			s.CPUPercent = float64(proc-c.prevProc) / float64(total-c.prevTotal) * 100 * float64(runtime.NumCPU())
		}
		c.prevProc, c.prevTotal = proc, total
	}

	cpu := s.UserSeconds + s.SystemSeconds
	if !c.startKnown {
		c.startCPU, c.startKnown = cpu, true
	}
	c.summary.Samples++
	c.summary.CPUSeconds = cpu - c.startCPU
	c.cpuSum += s.CPUPercent
	c.summary.AvgCPUPercent = c.cpuSum / float64(c.summary.Samples)
	c.summary.MaxCPUPercent = max(c.summary.MaxCPUPercent, s.CPUPercent)
	c.summary.MaxRSSBytes = max(c.summary.MaxRSSBytes, s.RSSBytes)
	c.summary.MaxHeapBytes = max(c.summary.MaxHeapBytes, s.HeapInuseBytes)

	return s
}

func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.summary
}

// Sample collects every interval until ctx is done and returns the summary,
// including one final sample taken on the way out.
func (c *Collector) Sample(ctx context.Context, interval time.Duration) Summary {
	c.Collect()
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				c.Collect()
			}
		}
	} else {
		<-ctx.Done()
	}
	c.Collect()

	return c.Summary()
}
