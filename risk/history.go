package risk

import (
	"sync"

	"github.com/michaelpento.lv/flasharb/types"
)

const DefaultHistorySize = 100

// Sample is one recorded snapshot and the score it earned on its own.
type Sample struct {
	Metrics *types.RiskMetrics
	Score   int
}

// History is a fixed-capacity ring buffer of samples; the oldest sample is
// overwritten once full.
type History struct {
	mu   sync.RWMutex
	buf  []Sample
	next int
	size int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{buf: make([]Sample, capacity)}
}

func (h *History) Add(s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = s
	h.next = (h.next + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

func (h *History) Cap() int {
	return len(h.buf)
}

// Latest returns the newest sample.
func (h *History) Latest() (Sample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.size == 0 {
		return Sample{}, false
	}
	return h.buf[(h.next-1+len(h.buf))%len(h.buf)], true
}

// Last returns up to n samples, oldest first.
func (h *History) Last(n int) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n > h.size {
		n = h.size
	}
	out := make([]Sample, n)
	start := (h.next - n + len(h.buf)) % len(h.buf)
	for i := 0; i < n; i++ {
		out[i] = h.buf[(start+i)%len(h.buf)]
	}
	return out
}
