package adequacy

import (
	"sort"

	"github.com/danmuck/gridmesh/internal/domain"
)

// Optimize allocates production to consumption in merit order and prices the
// outcome.
//
// Productions are committed cheapest first until demand is covered.
// Consumptions are served highest penalty first, so any shortfall lands on the
// blocks cheapest to leave unserved. The returned cost is the committed
// production cost plus the penalty for every unserved unit, which makes two
// states directly comparable: importing remote capacity is worth it exactly
// when it lowers this number.
//
// A production covering demand only partially is split into a used part and a
// free part sharing the same identity. A bound exchange stays on the used part
// only, so a granted lot still serving demand never shows up as cancelable.
func Optimize(consumptions []domain.Consumption, productions []domain.Production) domain.NodeState {
	demand := sortConsumptions(consumptions)
	supply := sortProductions(productions)

	var remaining int64
	for _, c := range demand {
		remaining += c.Quantity
	}

	state := domain.NodeState{}
	var served int64
	for _, p := range supply {
		if p.Quantity <= 0 {
			continue
		}
		used := p.Quantity
		if used > remaining {
			used = remaining
		}
		free := p.Quantity - used
		remaining -= used
		served += used

		if used > 0 {
			state.ProductionsUsed = append(state.ProductionsUsed, p.WithQuantity(used))
			state.Cost += p.Cost * used
		}
		if free > 0 {
			idle := p.WithQuantity(free)
			if used > 0 {
				idle.Exchange = nil
			}
			state.ProductionsFree = append(state.ProductionsFree, idle)
		}
	}

	for _, c := range demand {
		if c.Quantity <= 0 {
			continue
		}
		granted := c.Quantity
		if granted > served {
			granted = served
		}
		served -= granted
		if shortfall := c.Quantity - granted; shortfall > 0 {
			unmet := c
			unmet.Quantity = shortfall
			state.Unserved = append(state.Unserved, unmet)
			state.Cost += c.Cost * shortfall
		}
	}

	return state
}

// sortConsumptions orders demand by descending penalty, preserving input
// order between equal penalties.
func sortConsumptions(consumptions []domain.Consumption) []domain.Consumption {
	out := make([]domain.Consumption, len(consumptions))
	copy(out, consumptions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost > out[j].Cost })
	return out
}

// sortProductions orders supply by ascending cost, preserving input order
// between equal costs.
func sortProductions(productions []domain.Production) []domain.Production {
	out := make([]domain.Production, len(productions))
	copy(out, productions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	return out
}
