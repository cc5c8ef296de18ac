package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/danmuck/gridmesh/internal/domain"
)

var ErrDuplicateExchange = errors.New("ledger: exchange already recorded")

// ExchangeLedger tracks granted exchanges grouped by production.
type ExchangeLedger struct {
	mu           sync.RWMutex
	byProduction map[uuid.UUID]map[uuid.UUID]domain.Exchange
}

func NewExchangeLedger() *ExchangeLedger {
	return &ExchangeLedger{byProduction: make(map[uuid.UUID]map[uuid.UUID]domain.Exchange)}
}

// Add records one granted exchange. Recording the same exchange id twice for
// a production is refused.
func (l *ExchangeLedger) Add(ex domain.Exchange) error {
	if err := ex.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	lots, ok := l.byProduction[ex.ProductionID]
	if !ok {
		lots = make(map[uuid.UUID]domain.Exchange)
		l.byProduction[ex.ProductionID] = lots
	}
	if _, exists := lots[ex.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateExchange, ex.ID)
	}
	lots[ex.ID] = ex.WithPath(ex.Path)
	return nil
}

// AddAll records a batch, stopping at the first refused exchange.
func (l *ExchangeLedger) AddAll(exs []domain.Exchange) error {
	for _, ex := range exs {
		if err := l.Add(ex); err != nil {
			return err
		}
	}
	return nil
}

// Delete drops one exchange. Unknown exchanges are ignored.
func (l *ExchangeLedger) Delete(ex domain.Exchange) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lots, ok := l.byProduction[ex.ProductionID]
	if !ok {
		return
	}
	delete(lots, ex.ID)
	if len(lots) == 0 {
		delete(l.byProduction, ex.ProductionID)
	}
}

// DeleteAll drops a batch, ignoring exchanges never recorded.
func (l *ExchangeLedger) DeleteAll(exs []domain.Exchange) {
	for _, ex := range exs {
		l.Delete(ex)
	}
}

// SumProduction totals the granted quantity against one production.
func (l *ExchangeLedger) SumProduction(productionID uuid.UUID) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total int64
	for _, ex := range l.byProduction[productionID] {
		total += ex.Quantity
	}
	return total
}

// Exchanges returns a copy of the recorded lots for one production.
func (l *ExchangeLedger) Exchanges(productionID uuid.UUID) []domain.Exchange {
	l.mu.RLock()
	defer l.mu.RUnlock()

	lots := l.byProduction[productionID]
	if len(lots) == 0 {
		return nil
	}
	out := make([]domain.Exchange, 0, len(lots))
	for _, ex := range lots {
		out = append(out, ex.WithPath(ex.Path))
	}
	return out
}

// Len counts recorded lots across all productions.
func (l *ExchangeLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var n int
	for _, lots := range l.byProduction {
		n += len(lots)
	}
	return n
}
