package flashloan

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/michaelpento.lv/flasharb/types"
)

// Stats tallies the ledger. SuccessRate comes from the execution counters.
func (e *Engine) Stats() Stats {
	s := Stats{TotalProfit: new(big.Int), QueueLength: e.queue.Len()}
	for _, r := range e.ledger.All() {
		s.Total++
		switch r.Status {
		case types.StatusPending:
			s.Pending++
		case types.StatusExecuting:
			s.Executing++
		case types.StatusCompleted:
			s.Completed++
			if r.Profit != nil {
				s.TotalProfit.Add(s.TotalProfit, r.Profit)
			}
		case types.StatusFailed:
			s.Failed++
		}
	}

	completed := counterValue(e.metrics.Executions.WithLabelValues(string(types.StatusCompleted)))
	failed := counterValue(e.metrics.Executions.WithLabelValues(string(types.StatusFailed)))
	if total := completed + failed; total > 0 {
		s.SuccessRate = completed / total
	}
	return s
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil || m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}
