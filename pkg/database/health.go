package database

import (
	"context"
	"time"
)

// HealthStatus reports pool connectivity and utilization.
type HealthStatus struct {
	Status        string `json:"status"`
	ResponseTime  int64  `json:"response_time_ms"`
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
}

// Health pings the pool and reports its connection statistics.
func (p *Pool) Health(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()

	if err := p.pool.Ping(ctx); err != nil {
		return &HealthStatus{Status: "unhealthy", ResponseTime: time.Since(start).Milliseconds()}, err
	}

	stats := p.pool.Stat()
	return &HealthStatus{
		Status:        "healthy",
		ResponseTime:  time.Since(start).Milliseconds(),
		TotalConns:    stats.TotalConns(),
		IdleConns:     stats.IdleConns(),
		AcquiredConns: stats.AcquiredConns(),
		MaxConns:      stats.MaxConns(),
	}, nil
}
