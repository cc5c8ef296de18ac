package dispatcher

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/gridmesh/internal/domain"
	"github.com/danmuck/gridmesh/internal/observability"
)

var ErrUnknownMessage = errors.New("dispatcher: unknown message")

// Dispatcher is the actor serving one node: it journals traffic and routes
// each message into the broker.
type Dispatcher struct {
	name    string
	broker  *Broker
	journal *Journal
	logger  zerolog.Logger
}

func New(cfg Config, net Network) (*Dispatcher, error) {
	journal := NewJournal(DefaultJournalSize)
	broker, err := NewBroker(cfg, journalNet{node: cfg.Name, inner: net, journal: journal})
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		name:    cfg.Name,
		broker:  broker,
		journal: journal,
		logger:  log.With().Str("node", cfg.Name).Logger(),
	}, nil
}

func (d *Dispatcher) Name() string {
	return d.name
}

// Receive handles one message from the mailbox.
func (d *Dispatcher) Receive(msg any) (any, error) {
	label := messageLabel(msg)
	d.journal.Record(EventRecv, label)
	observability.RecordDispatchRecv(d.name, label)

	switch m := msg.(type) {
	case domain.Start:
		d.broker.Start()
		return nil, nil
	case domain.Proposal:
		if err := d.broker.HandleProposal(m); err != nil {
			d.logger.Warn().Err(err).Msg("dispatcher.receive proposal failed")
			return nil, err
		}
		return nil, nil
	case domain.ProposalOffer:
		lots, err := d.broker.HandleOffer(m)
		if err != nil {
			d.logger.Warn().Err(err).Msg("dispatcher.receive offer failed")
			return nil, err
		}
		d.journal.Record(EventReply, fmt.Sprintf("%d lots", len(lots)))
		return lots, nil
	case domain.CancelExchange:
		if err := d.broker.HandleCancel(m); err != nil {
			d.logger.Warn().Err(err).Msg("dispatcher.receive cancel failed")
			return nil, err
		}
		return nil, nil
	case domain.TotalsRequest:
		return d.broker.Totals(), nil
	case domain.SnapshotRequest:
		snap := d.broker.Snapshot()
		snap.Events = d.journal.Tail(32)
		return snap, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
}
