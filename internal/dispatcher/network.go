package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/gridmesh/internal/actor"
	"github.com/danmuck/gridmesh/internal/domain"
	"github.com/danmuck/gridmesh/internal/observability"
)

var ErrBadReply = errors.New("dispatcher: unexpected reply type")

// Network delivers messages between dispatchers addressed by node name.
type Network interface {
	Tell(to string, msg any) error
	AskExchanges(to string, offer domain.ProposalOffer) ([]domain.Exchange, error)
}

// NewActorNetwork adapts an actor system to the Network interface. The given
// ctx bounds every ask issued through it.
func NewActorNetwork(ctx context.Context, sys *actor.System) Network {
	return &actorNetwork{ctx: ctx, sys: sys}
}

type actorNetwork struct {
	ctx context.Context
	sys *actor.System
}

func (n *actorNetwork) Tell(to string, msg any) error {
	return n.sys.Tell(to, msg)
}

func (n *actorNetwork) AskExchanges(to string, offer domain.ProposalOffer) ([]domain.Exchange, error) {
	res, err := n.sys.Ask(n.ctx, to, offer)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	lots, ok := res.([]domain.Exchange)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrBadReply, res)
	}
	return lots, nil
}

// journalNet records and counts outbound traffic before delegating.
type journalNet struct {
	node    string
	inner   Network
	journal *Journal
}

func (n journalNet) Tell(to string, msg any) error {
	n.journal.Record(EventTell, fmt.Sprintf("%s to %s", messageLabel(msg), to))
	observability.RecordDispatchSend(n.node, messageLabel(msg))
	return n.inner.Tell(to, msg)
}

func (n journalNet) AskExchanges(to string, offer domain.ProposalOffer) ([]domain.Exchange, error) {
	n.journal.Record(EventAsk, fmt.Sprintf("offer to %s production=%s quantity=%d", to, offer.ProductionID, offer.Quantity))
	observability.RecordDispatchSend(n.node, "offer")
	lots, err := n.inner.AskExchanges(to, offer)
	if err != nil {
		n.journal.Record(EventAskResult, fmt.Sprintf("error: %v", err))
		return nil, err
	}
	n.journal.Record(EventAskResult, fmt.Sprintf("%d lots granted", len(lots)))
	return lots, nil
}

func messageLabel(msg any) string {
	switch msg.(type) {
	case domain.Start:
		return "start"
	case domain.Proposal:
		return "proposal"
	case domain.ProposalOffer:
		return "offer"
	case domain.CancelExchange:
		return "cancel"
	case domain.TotalsRequest:
		return "totals"
	case domain.SnapshotRequest:
		return "snapshot"
	default:
		return "unknown"
	}
}
