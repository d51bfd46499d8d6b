package models

import "time"

// SystemMetricsSnapshot aggregates runtime counters for the admin overview
// endpoint. Prometheus scrapes remain the primary export path.
type SystemMetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	LedgerAppendsTotal       uint64    `json:"ledger_appends_total"`
	LedgerSettlementsTotal   uint64    `json:"ledger_settlements_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
