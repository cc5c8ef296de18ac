package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidConsumption = errors.New("domain: invalid consumption")
	ErrInvalidProduction  = errors.New("domain: invalid production")
	ErrInvalidLink        = errors.New("domain: invalid link")
	ErrInvalidExchange    = errors.New("domain: invalid exchange")
)

// ProductionKind partitions supply by origin.
type ProductionKind string

const (
	// KindLocal is production physically attached to the node.
	KindLocal ProductionKind = "local"
	// KindImport is a proposed remote production under evaluation.
	KindImport ProductionKind = "import"
	// KindExchange is a granted remote lot bound to an exchange.
	KindExchange ProductionKind = "exchange"
)

// Consumption is one demand block. Cost is the penalty per unserved unit.
type Consumption struct {
	Name     string
	Cost     int64
	Quantity int64
}

func (c Consumption) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidConsumption)
	}
	if c.Cost < 0 {
		return fmt.Errorf("%w: negative cost", ErrInvalidConsumption)
	}
	if c.Quantity < 0 {
		return fmt.Errorf("%w: negative quantity", ErrInvalidConsumption)
	}
	return nil
}

// Production is one supply block. Exchange is set only on kind=exchange lots.
type Production struct {
	ID       uuid.UUID
	Name     string
	Kind     ProductionKind
	Cost     int64
	Quantity int64
	Exchange *Exchange
}

func (p Production) Validate() error {
	if strings.TrimSpace(p.Name) == "" && p.ID == uuid.Nil {
		return fmt.Errorf("%w: missing name and id", ErrInvalidProduction)
	}
	switch p.Kind {
	case KindLocal, KindImport, KindExchange:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidProduction, p.Kind)
	}
	if p.Cost < 0 {
		return fmt.Errorf("%w: negative cost", ErrInvalidProduction)
	}
	if p.Quantity < 0 {
		return fmt.Errorf("%w: negative quantity", ErrInvalidProduction)
	}
	if p.Kind == KindExchange && p.Exchange == nil {
		return fmt.Errorf("%w: exchange kind without exchange", ErrInvalidProduction)
	}
	return nil
}

// WithQuantity returns a copy of the production carrying a different quantity.
func (p Production) WithQuantity(quantity int64) Production {
	out := p
	out.Quantity = quantity
	return out
}

// Link is one directed connection to a neighbor node.
type Link struct {
	Dest     string
	Capacity int64
	Cost     int64
}

func (l Link) Validate() error {
	if strings.TrimSpace(l.Dest) == "" {
		return fmt.Errorf("%w: missing dest", ErrInvalidLink)
	}
	if l.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidLink)
	}
	if l.Cost < 0 {
		return fmt.Errorf("%w: negative cost", ErrInvalidLink)
	}
	return nil
}

// Exchange is one granted lot of a remote production.
//
// Path lists the next hop first from the holder's perspective: the producer
// grants exchanges carrying the return path, and the consumer rebinds them to
// the producer-facing path before storing.
type Exchange struct {
	ID           uuid.UUID
	ProductionID uuid.UUID
	Quantity     int64
	Path         []string
}

func (e Exchange) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidExchange)
	}
	if e.ProductionID == uuid.Nil {
		return fmt.Errorf("%w: missing production id", ErrInvalidExchange)
	}
	if e.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidExchange)
	}
	return nil
}

// WithPath returns a copy of the exchange bound to a different route.
func (e Exchange) WithPath(path []string) Exchange {
	out := e
	out.Path = ClonePath(path)
	return out
}

// NodeState is one merit-order optimization outcome for a single node.
type NodeState struct {
	Cost            int64
	ProductionsUsed []Production
	ProductionsFree []Production
	Unserved        []Consumption
}

// UsedQuantity sums used quantity across entries sharing one production id.
func (s NodeState) UsedQuantity(id uuid.UUID) int64 {
	var total int64
	for _, p := range s.ProductionsUsed {
		if p.ID == id {
			total += p.Quantity
		}
	}
	return total
}

// FreeQuantity sums free quantity across entries sharing one production id.
func (s NodeState) FreeQuantity(id uuid.UUID) int64 {
	var total int64
	for _, p := range s.ProductionsFree {
		if p.ID == id {
			total += p.Quantity
		}
	}
	return total
}

// FindProduction returns the first production matching id.
func FindProduction(prods []Production, id uuid.UUID) (Production, bool) {
	for _, p := range prods {
		if p.ID == id {
			return p, true
		}
	}
	return Production{}, false
}

// BoundExchanges collects the exchanges attached to exchange-kind productions.
func BoundExchanges(prods []Production) []Exchange {
	out := make([]Exchange, 0)
	for _, p := range prods {
		if p.Exchange != nil {
			out = append(out, *p.Exchange)
		}
	}
	return out
}

// ClonePath returns a copy of a routing path that shares no backing array.
func ClonePath(path []string) []string {
	if len(path) == 0 {
		return nil
	}
	out := make([]string, len(path))
	copy(out, path)
	return out
}

// CloneProductions returns a shallow copy of a production slice.
func CloneProductions(prods []Production) []Production {
	if len(prods) == 0 {
		return nil
	}
	out := make([]Production, len(prods))
	copy(out, prods)
	return out
}

// CloneExchanges returns a deep copy of an exchange slice including paths.
func CloneExchanges(exs []Exchange) []Exchange {
	if len(exs) == 0 {
		return nil
	}
	out := make([]Exchange, len(exs))
	for i, ex := range exs {
		out[i] = ex
		out[i].Path = ClonePath(ex.Path)
	}
	return out
}

// PathContains reports whether a routing path already visits a node.
func PathContains(path []string, node string) bool {
	for _, n := range path {
		if n == node {
			return true
		}
	}
	return false
}
