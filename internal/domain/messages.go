package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidProposal = errors.New("domain: invalid proposal")
	ErrInvalidOffer    = errors.New("domain: invalid proposal offer")
	ErrInvalidCancel   = errors.New("domain: invalid cancel")
)

// Start asks a dispatcher to begin proposing its free production capacity.
type Start struct{}

// TotalsRequest asks a dispatcher for its final per-node totals.
type TotalsRequest struct{}

// SnapshotRequest asks a dispatcher for a read-only view of its state.
type SnapshotRequest struct{}

// Proposal advertises remote production capacity to a prospective consumer.
//
// Cost already includes every link cost accumulated along the route. Path
// lists the route back toward the producer, next hop first.
type Proposal struct {
	ProductionID uuid.UUID
	Cost         int64
	Quantity     int64
	Path         []string
}

func (p Proposal) Validate() error {
	if p.ProductionID == uuid.Nil {
		return fmt.Errorf("%w: missing production id", ErrInvalidProposal)
	}
	if p.Cost < 0 {
		return fmt.Errorf("%w: negative cost", ErrInvalidProposal)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidProposal)
	}
	if len(p.Path) == 0 {
		return fmt.Errorf("%w: missing path", ErrInvalidProposal)
	}
	return nil
}

// ProposalOffer asks the producer for exchanges against an earlier proposal.
//
// Path routes toward the producer; ReturnPath is the producer-to-consumer
// route stamped onto granted exchanges.
type ProposalOffer struct {
	ProductionID uuid.UUID
	Cost         int64
	Quantity     int64
	Path         []string
	ReturnPath   []string
}

func (o ProposalOffer) Validate() error {
	if o.ProductionID == uuid.Nil {
		return fmt.Errorf("%w: missing production id", ErrInvalidOffer)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOffer)
	}
	if len(o.Path) == 0 {
		return fmt.Errorf("%w: missing path", ErrInvalidOffer)
	}
	if len(o.ReturnPath) == 0 {
		return fmt.Errorf("%w: missing return path", ErrInvalidOffer)
	}
	return nil
}

// Forward returns the offer as seen by the next hop on the path.
func (o ProposalOffer) Forward() ProposalOffer {
	out := o
	out.Path = ClonePath(o.Path[1:])
	out.ReturnPath = ClonePath(o.ReturnPath)
	return out
}

// CancelExchange releases granted exchanges back to the producer.
//
// Path routes toward the producer; every exchange carried belongs to one
// production. From names the node the cancel last left, so each hop knows
// which outgoing line the canceled power was flowing on.
type CancelExchange struct {
	Exchanges []Exchange
	Path      []string
	From      string
}

func (c CancelExchange) Validate() error {
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("%w: missing exchanges", ErrInvalidCancel)
	}
	if len(c.Path) == 0 {
		return fmt.Errorf("%w: missing path", ErrInvalidCancel)
	}
	if c.From == "" {
		return fmt.Errorf("%w: missing from", ErrInvalidCancel)
	}
	for i, ex := range c.Exchanges {
		if err := ex.Validate(); err != nil {
			return fmt.Errorf("%w: exchange[%d]: %v", ErrInvalidCancel, i, err)
		}
		if ex.ProductionID != c.Exchanges[0].ProductionID {
			return fmt.Errorf("%w: mixed production ids", ErrInvalidCancel)
		}
	}
	return nil
}

// Quantity sums the canceled quantity across carried exchanges.
func (c CancelExchange) Quantity() int64 {
	var total int64
	for _, ex := range c.Exchanges {
		total += ex.Quantity
	}
	return total
}

// Forward returns the cancel as seen by the next hop, resent by self.
func (c CancelExchange) Forward(self string) CancelExchange {
	return CancelExchange{
		Exchanges: CloneExchanges(c.Exchanges),
		Path:      ClonePath(c.Path[1:]),
		From:      self,
	}
}
