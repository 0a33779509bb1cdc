// Package benchmark - Measures preprocessing, inference and post-processing
// over a corpus of still images.
package benchmark

import (
	"sort"
	"time"
)

// PerformanceMetrics captures detailed performance data
type PerformanceMetrics struct {
	Scenario            Scenario       `json:"scenario"`
	Timestamp           time.Time      `json:"timestamp"`
	TotalDuration       time.Duration  `json:"total_duration"`
	PreprocessDuration  time.Duration  `json:"preprocess_duration"`
	InferenceDuration   time.Duration  `json:"inference_duration"`
	PostProcessDuration time.Duration  `json:"post_process_duration"`
	Latency             LatencyMetrics `json:"latency"`
	FramesPerSecond     float64        `json:"frames_per_second"`
	MemoryStats         MemoryMetrics  `json:"memory_stats"`
	NumCPU              int            `json:"num_cpu"`
	DetectionCount      int            `json:"detection_count"`
	ErrorRate           float64        `json:"error_rate"`
}

// LatencyMetrics summarizes the end-to-end latency of single images.
type LatencyMetrics struct {
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	P99  time.Duration `json:"p99"`
	Max  time.Duration `json:"max"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// summarize computes the latency distribution. samples is sorted in place.
func summarize(samples []time.Duration) LatencyMetrics {
	if len(samples) == 0 {
		return LatencyMetrics{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	var total time.Duration
	for _, s := range samples {
		total += s
	}
	return LatencyMetrics{
		Mean: total / time.Duration(len(samples)),
		P50:  percentile(samples, 50),
		P95:  percentile(samples, 95),
		P99:  percentile(samples, 99),
		Max:  samples[len(samples)-1],
	}
}

// percentile returns the nearest-rank percentile of sorted samples.
func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
