package models

import "time"

// SystemMetrics is a lightweight view over the Prometheus collectors.
type SystemMetrics struct {
	CacheHitRatio            float64           `json:"cache_hit_ratio"`
	CacheHits                uint64            `json:"cache_hits"`
	CacheMisses              uint64            `json:"cache_misses"`
	RequestsTotal            uint64            `json:"requests_total"`
	AverageRequestDurationMs float64           `json:"average_request_duration_ms"`
	EnrollmentOperations     map[string]uint64 `json:"enrollment_operations"`
	AverageLockWaitMs        float64           `json:"average_lock_wait_ms"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generated_at"`
}
