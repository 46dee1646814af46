package flashloan

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/michaelpento.lv/flasharb/types"
)

// Ledger keeps every execution record in creation order. Callers only ever
// see clones.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]*types.FlashLoanExecution
	order   []string
}

func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]*types.FlashLoanExecution)}
}

// Create adds a pending record.
func (l *Ledger) Create(opportunityID string, asset common.Address, amount *big.Int, now time.Time) *types.FlashLoanExecution {
	rec := &types.FlashLoanExecution{
		ID:            uuid.NewString(),
		OpportunityID: opportunityID,
		Asset:         asset,
		Amount:        copyInt(amount),
		Status:        types.StatusPending,
		Timestamp:     now,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.ID] = rec
	l.order = append(l.order, rec.ID)
	return rec.Clone()
}

// Update applies fn to the stored record. Terminal records are frozen.
func (l *Ledger) Update(id string, fn func(*types.FlashLoanExecution)) (*types.FlashLoanExecution, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok || rec.Status.Terminal() {
		return nil, false
	}
	fn(rec)
	return rec.Clone(), true
}

func (l *Ledger) Get(id string) (*types.FlashLoanExecution, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// All returns every record, oldest first.
func (l *Ledger) All() []*types.FlashLoanExecution {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*types.FlashLoanExecution, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.records[id].Clone())
	}
	return out
}
