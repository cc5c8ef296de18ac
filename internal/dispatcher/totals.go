package dispatcher

import (
	"github.com/danmuck/gridmesh/internal/ledger"
)

// ConsumptionTotal reports how one demand block ended up.
type ConsumptionTotal struct {
	Name      string `json:"name"`
	Cost      int64  `json:"cost"`
	Requested int64  `json:"requested"`
	Served    int64  `json:"served"`
}

// ProductionTotal reports how one local production was committed. Used is
// quantity serving the node itself; Exported is quantity granted away.
type ProductionTotal struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Cost     int64  `json:"cost"`
	Capacity int64  `json:"capacity"`
	Used     int64  `json:"used"`
	Exported int64  `json:"exported"`
}

// Totals is one node's final accounting after the negotiation settles.
type Totals struct {
	Name         string             `json:"name"`
	Cost         int64              `json:"cost"`
	Consumptions []ConsumptionTotal `json:"consumptions,omitempty"`
	Productions  []ProductionTotal  `json:"productions,omitempty"`
	Links        []ledger.LinkUsage `json:"links,omitempty"`
}

// Snapshot is a live view of one node mid-negotiation.
type Snapshot struct {
	Name     string             `json:"name"`
	Cost     int64              `json:"cost"`
	Used     int64              `json:"used"`
	Free     int64              `json:"free"`
	Unserved int64              `json:"unserved"`
	Ledgered int                `json:"ledgered"`
	Links    []ledger.LinkUsage `json:"links,omitempty"`
	Events   []Event            `json:"events,omitempty"`
}

// Totals aggregates the node's settled state against its raw inputs.
func (b *Broker) Totals() Totals {
	t := Totals{Name: b.name, Cost: b.state.Cost}
	for _, c := range b.consumptions {
		var missing int64
		for _, u := range b.state.Unserved {
			if u.Name == c.Name {
				missing += u.Quantity
			}
		}
		t.Consumptions = append(t.Consumptions, ConsumptionTotal{
			Name:      c.Name,
			Cost:      c.Cost,
			Requested: c.Quantity,
			Served:    c.Quantity - missing,
		})
	}
	for _, p := range b.raw {
		t.Productions = append(t.Productions, ProductionTotal{
			ID:       p.ID.String(),
			Name:     p.Name,
			Cost:     p.Cost,
			Capacity: p.Quantity,
			Used:     b.state.UsedQuantity(p.ID),
			Exported: b.exchanges.SumProduction(p.ID),
		})
	}
	t.Links = b.lines.Usage()
	return t
}

// Snapshot summarizes the node's current optimization state.
func (b *Broker) Snapshot() Snapshot {
	var used, free, unserved int64
	for _, p := range b.state.ProductionsUsed {
		used += p.Quantity
	}
	for _, p := range b.state.ProductionsFree {
		free += p.Quantity
	}
	for _, c := range b.state.Unserved {
		unserved += c.Quantity
	}
	return Snapshot{
		Name:     b.name,
		Cost:     b.state.Cost,
		Used:     used,
		Free:     free,
		Unserved: unserved,
		Ledgered: b.exchanges.Len(),
		Links:    b.lines.Usage(),
	}
}
