package monitor

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/risk"
)

// StatsSource is satisfied by *flashloan.Engine.
type StatsSource interface {
	Stats() flashloan.Stats
}

// TrendSource is satisfied by *risk.Manager.
type TrendSource interface {
	TrendAnalysis() risk.Trend
}

// Snapshot is one status report.
type Snapshot struct {
	Goroutines  int
	HeapAlloc   uint64
	HeapObjects uint64
	GCPause     time.Duration
	Executions  flashloan.Stats
	// RiskTrends maps chain name to trend direction.
	RiskTrends map[string]string
}

// SystemMonitor periodically logs process health alongside the execution
// ledger and per-chain risk trends.
type SystemMonitor struct {
	stats  StatsSource
	logger *zap.Logger

	mu     sync.RWMutex
	trends map[string]TrendSource
}

func NewSystemMonitor(stats StatsSource, logger *zap.Logger) *SystemMonitor {
	return &SystemMonitor{
		stats:  stats,
		logger: logger.Named("status"),
		trends: make(map[string]TrendSource),
	}
}

// AddTrend reports the risk trend of one chain.
func (m *SystemMonitor) AddTrend(chain string, src TrendSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trends[chain] = src
}

// Run logs a snapshot every interval until ctx is done.
func (m *SystemMonitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.report(m.Snapshot())
		}
	}
}

// Snapshot collects the current status.
func (m *SystemMonitor) Snapshot() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s := Snapshot{
		Goroutines:  runtime.NumGoroutine(),
		HeapAlloc:   memStats.HeapAlloc,
		HeapObjects: memStats.HeapObjects,
		GCPause:     time.Duration(memStats.PauseNs[(memStats.NumGC+255)%256]),
		RiskTrends:  make(map[string]string),
	}
	if m.stats != nil {
		s.Executions = m.stats.Stats()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for chain, src := range m.trends {
		s.RiskTrends[chain] = src.TrendAnalysis().Direction
	}
	return s
}

func (m *SystemMonitor) report(s Snapshot) {
	fields := []zap.Field{
		zap.Int("goroutines", s.Goroutines),
		zap.String("heap_alloc", humanize.Bytes(s.HeapAlloc)),
		zap.Uint64("heap_objects", s.HeapObjects),
		zap.Duration("gc_pause", s.GCPause),
		zap.Int("executions", s.Executions.Total),
		zap.Int("completed", s.Executions.Completed),
		zap.Int("failed", s.Executions.Failed),
		zap.Float64("success_rate", s.Executions.SuccessRate),
		zap.Int("queued", s.Executions.QueueLength),
	}
	if s.Executions.TotalProfit != nil {
		fields = append(fields, zap.String("total_profit", s.Executions.TotalProfit.String()))
	}

	chains := make([]string, 0, len(s.RiskTrends))
	for chain := range s.RiskTrends {
		chains = append(chains, chain)
	}
	sort.Strings(chains)
	for _, chain := range chains {
		fields = append(fields, zap.String("risk_trend_"+chain, s.RiskTrends[chain]))
	}

	m.logger.Info("Status", fields...)
}
