package dispatcher

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/gridmesh/internal/adequacy"
	"github.com/danmuck/gridmesh/internal/domain"
	"github.com/danmuck/gridmesh/internal/ledger"
)

var (
	ErrInvalidConfig     = errors.New("dispatcher: invalid config")
	ErrUnknownProduction = errors.New("dispatcher: unknown production")
)

// DefaultMinLot is the smallest exchange granularity.
const DefaultMinLot = 1

// Config describes one node of the network.
type Config struct {
	Name         string
	Consumptions []domain.Consumption
	Productions  []domain.Production
	Links        []domain.Link

	// MinLot is the exchange lot size; zero means DefaultMinLot.
	MinLot int64
	// NewID overrides the exchange and production id source.
	NewID func() uuid.UUID
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidConfig)
	}
	for i, con := range c.Consumptions {
		if err := con.Validate(); err != nil {
			return fmt.Errorf("%w: consumption[%d]: %v", ErrInvalidConfig, i, err)
		}
	}
	for i, p := range c.Productions {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: production[%d]: missing name", ErrInvalidConfig, i)
		}
		if p.Cost < 0 || p.Quantity < 0 {
			return fmt.Errorf("%w: production[%d]: negative cost or quantity", ErrInvalidConfig, i)
		}
	}
	for i, l := range c.Links {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("%w: link[%d]: %v", ErrInvalidConfig, i, err)
		}
		if l.Dest == c.Name {
			return fmt.Errorf("%w: link[%d]: self link", ErrInvalidConfig, i)
		}
	}
	if c.MinLot < 0 {
		return fmt.Errorf("%w: negative min lot", ErrInvalidConfig)
	}
	return nil
}

// Broker runs one node's side of the capacity negotiation.
//
// It is not safe for concurrent use; the owning dispatcher serializes every
// call through its mailbox.
type Broker struct {
	name   string
	net    Network
	newID  func() uuid.UUID
	minLot int64
	logger zerolog.Logger

	consumptions []domain.Consumption
	raw          []domain.Production
	links        []domain.Link

	exchanges *ledger.ExchangeLedger
	lines     *ledger.LinkLedger
	state     domain.NodeState
}

func NewBroker(cfg Config, net Network) (*Broker, error) {
	if net == nil {
		return nil, fmt.Errorf("%w: missing network", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	newID := cfg.NewID
	if newID == nil {
		newID = uuid.New
	}
	minLot := cfg.MinLot
	if minLot == 0 {
		minLot = DefaultMinLot
	}

	consumptions := make([]domain.Consumption, len(cfg.Consumptions))
	copy(consumptions, cfg.Consumptions)
	sort.SliceStable(consumptions, func(i, j int) bool { return consumptions[i].Cost > consumptions[j].Cost })

	raw := make([]domain.Production, len(cfg.Productions))
	for i, p := range cfg.Productions {
		raw[i] = p
		raw[i].ID = newID()
		raw[i].Kind = domain.KindLocal
		raw[i].Exchange = nil
	}

	links := make([]domain.Link, len(cfg.Links))
	copy(links, cfg.Links)

	b := &Broker{
		name:         cfg.Name,
		net:          net,
		newID:        newID,
		minLot:       minLot,
		logger:       log.With().Str("node", cfg.Name).Logger(),
		consumptions: consumptions,
		raw:          raw,
		links:        links,
		exchanges:    ledger.NewExchangeLedger(),
		lines:        ledger.NewLinkLedger(links),
	}
	b.state = adequacy.Optimize(b.consumptions, b.raw)
	b.logger.Debug().Int64("cost", b.state.Cost).Msg("broker.init optimized")
	return b, nil
}

func (b *Broker) Name() string {
	return b.name
}

// Start proposes the node's own free capacity to every neighbor.
func (b *Broker) Start() {
	free := make([]domain.Production, 0, len(b.state.ProductionsFree))
	for _, p := range b.state.ProductionsFree {
		if p.Exchange == nil {
			free = append(free, p)
		}
	}
	b.sendProposal(free, nil)
}

// sendProposal advertises productions to every neighbor not already on path,
// adding the link cost per hop and clamping to the link's headroom.
func (b *Broker) sendProposal(prods []domain.Production, path []string) {
	for _, link := range b.links {
		if domain.PathContains(path, link.Dest) {
			continue
		}
		headroom := b.lines.Available(link.Dest)
		if headroom <= 0 {
			continue
		}
		for _, prod := range prods {
			quantity := prod.Quantity
			if quantity > headroom {
				quantity = headroom
			}
			if quantity <= 0 {
				continue
			}
			prop := domain.Proposal{
				ProductionID: prod.ID,
				Cost:         prod.Cost + link.Cost,
				Quantity:     quantity,
				Path:         append([]string{b.name}, path...),
			}
			if err := b.net.Tell(link.Dest, prop); err != nil {
				b.logger.Warn().Err(err).Str("dest", link.Dest).Msg("broker.sendProposal tell failed")
				continue
			}
			b.logger.Debug().
				Str("dest", link.Dest).
				Str("production", prod.ID.String()).
				Int64("quantity", quantity).
				Int64("cost", prop.Cost).
				Msg("broker.sendProposal spread")
		}
	}
}

// HandleProposal adopts a proposal that lowers the node's cost, otherwise
// spreads it further out.
func (b *Broker) HandleProposal(p domain.Proposal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if domain.PathContains(p.Path, b.name) {
		return nil
	}

	trialID := b.newID()
	trial := adequacy.Optimize(b.consumptions, merge(
		[]domain.Production{{ID: trialID, Kind: domain.KindImport, Cost: p.Cost, Quantity: p.Quantity}},
		b.state.ProductionsUsed,
		b.state.ProductionsFree,
	))
	wanted := trial.UsedQuantity(trialID)
	if trial.Cost < b.state.Cost && wanted > 0 {
		return b.makeOffer(p, wanted)
	}

	b.sendProposal([]domain.Production{{
		ID:       p.ProductionID,
		Kind:     domain.KindImport,
		Cost:     p.Cost,
		Quantity: p.Quantity,
	}}, p.Path)
	return nil
}

// makeOffer asks the producer for the wanted quantity, binds whatever lots
// come back, spreads any untouched remainder, and cancels displaced lots.
func (b *Broker) makeOffer(p domain.Proposal, wanted int64) error {
	offer := domain.ProposalOffer{
		ProductionID: p.ProductionID,
		Cost:         p.Cost,
		Quantity:     wanted,
		Path:         domain.ClonePath(p.Path),
		ReturnPath:   returnPath(p.Path, b.name),
	}
	granted, err := b.net.AskExchanges(p.Path[0], offer)
	if err != nil {
		return fmt.Errorf("offer to %s: %w", p.Path[0], err)
	}

	var gained int64
	bound := make([]domain.Production, 0, len(granted))
	for _, ex := range granted {
		lot := ex.WithPath(p.Path)
		bound = append(bound, domain.Production{
			ID:       lot.ProductionID,
			Kind:     domain.KindExchange,
			Cost:     offer.Cost,
			Quantity: lot.Quantity,
			Exchange: &lot,
		})
		gained += lot.Quantity
	}
	b.state = adequacy.Optimize(b.consumptions, merge(bound, b.state.ProductionsUsed, b.state.ProductionsFree))
	b.logger.Debug().
		Str("production", p.ProductionID.String()).
		Int64("wanted", wanted).
		Int64("gained", gained).
		Int64("cost", b.state.Cost).
		Msg("broker.makeOffer bound")

	if offer.Quantity < p.Quantity && gained == offer.Quantity {
		b.sendProposal([]domain.Production{{
			ID:       p.ProductionID,
			Kind:     domain.KindImport,
			Cost:     p.Cost,
			Quantity: p.Quantity - offer.Quantity,
		}}, p.Path)
	}

	b.cancelDisplaced()
	return nil
}

// cancelDisplaced cancels every bound lot the last optimization left unused
// and drops it from the free stack.
func (b *Broker) cancelDisplaced() {
	displaced := domain.BoundExchanges(b.state.ProductionsFree)
	if len(displaced) == 0 {
		return
	}
	b.sendCancel(displaced)

	kept := make([]domain.Production, 0, len(b.state.ProductionsFree))
	for _, p := range b.state.ProductionsFree {
		if p.Exchange == nil {
			kept = append(kept, p)
		}
	}
	b.state.ProductionsFree = kept
}

// sendCancel groups exchanges per production and tells each cancel along the
// lot's stored path.
func (b *Broker) sendCancel(exs []domain.Exchange) {
	groups := make(map[uuid.UUID][]domain.Exchange)
	paths := make(map[uuid.UUID][]string)
	var order []uuid.UUID
	for _, ex := range exs {
		if _, seen := groups[ex.ProductionID]; !seen {
			order = append(order, ex.ProductionID)
		}
		groups[ex.ProductionID] = append(groups[ex.ProductionID], ex)
		paths[ex.ProductionID] = ex.Path
	}

	for _, id := range order {
		path := paths[id]
		if len(path) == 0 {
			b.logger.Warn().Str("production", id.String()).Msg("broker.sendCancel lot without path")
			continue
		}
		cancel := domain.CancelExchange{
			Exchanges: domain.CloneExchanges(groups[id]),
			Path:      domain.ClonePath(path),
			From:      b.name,
		}
		if err := b.net.Tell(path[0], cancel); err != nil {
			b.logger.Warn().Err(err).Str("dest", path[0]).Msg("broker.sendCancel tell failed")
			continue
		}
		b.logger.Debug().
			Str("production", id.String()).
			Int64("quantity", cancel.Quantity()).
			Msg("broker.sendCancel released")
	}
}

// HandleOffer relays an offer toward its producer or, as the producer, grants
// exchanges against free capacity.
func (b *Broker) HandleOffer(o domain.ProposalOffer) ([]domain.Exchange, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	downstream := downstreamOf(o.ReturnPath, b.name)
	if len(o.Path) > 1 {
		return b.relayOffer(o, downstream)
	}
	return b.grantOffer(o, downstream), nil
}

func (b *Broker) relayOffer(o domain.ProposalOffer, downstream string) ([]domain.Exchange, error) {
	headroom := b.lines.Available(downstream)
	if headroom <= 0 {
		return nil, nil
	}
	fwd := o.Forward()
	if fwd.Quantity > headroom {
		fwd.Quantity = headroom
	}
	granted, err := b.net.AskExchanges(fwd.Path[0], fwd)
	if err != nil {
		return nil, fmt.Errorf("relay to %s: %w", fwd.Path[0], err)
	}

	var total int64
	for _, ex := range granted {
		total += ex.Quantity
	}
	if err := b.lines.Reserve(downstream, total); err != nil {
		b.logger.Error().Err(err).Str("dest", downstream).Msg("broker.relayOffer over-granted upstream")
		if len(granted) > 0 {
			cancel := domain.CancelExchange{
				Exchanges: domain.CloneExchanges(granted),
				Path:      domain.ClonePath(fwd.Path),
				From:      b.name,
			}
			if err := b.net.Tell(fwd.Path[0], cancel); err != nil {
				b.logger.Warn().Err(err).Msg("broker.relayOffer rollback tell failed")
			}
		}
		return nil, nil
	}
	return granted, nil
}

func (b *Broker) grantOffer(o domain.ProposalOffer, downstream string) []domain.Exchange {
	free := b.state.FreeQuantity(o.ProductionID)
	promised := b.exchanges.SumProduction(o.ProductionID)
	sellable := free - promised
	if sellable > o.Quantity {
		sellable = o.Quantity
	}
	if headroom := b.lines.Available(downstream); sellable > headroom {
		sellable = headroom
	}
	if sellable <= 0 {
		return nil
	}

	lots := b.generateExchanges(o.ProductionID, sellable, o.ReturnPath)
	if err := b.exchanges.AddAll(lots); err != nil {
		b.logger.Error().Err(err).Msg("broker.grantOffer ledger refused")
		return nil
	}
	if err := b.lines.Reserve(downstream, sellable); err != nil {
		b.logger.Error().Err(err).Str("dest", downstream).Msg("broker.grantOffer reserve refused")
		b.exchanges.DeleteAll(lots)
		return nil
	}
	b.logger.Debug().
		Str("production", o.ProductionID.String()).
		Int64("quantity", sellable).
		Int("lots", len(lots)).
		Msg("broker.grantOffer granted")
	return domain.CloneExchanges(lots)
}

// HandleCancel releases the canceled flow on the line it came in over, then
// forwards toward the producer or, as the producer, frees the ledger and
// re-proposes the capacity.
func (b *Broker) HandleCancel(c domain.CancelExchange) error {
	if err := c.Validate(); err != nil {
		return err
	}
	b.lines.Release(c.From, c.Quantity())

	if len(c.Path) > 1 {
		fwd := c.Forward(b.name)
		if err := b.net.Tell(fwd.Path[0], fwd); err != nil {
			return fmt.Errorf("forward cancel to %s: %w", fwd.Path[0], err)
		}
		return nil
	}

	b.exchanges.DeleteAll(c.Exchanges)
	prodID := c.Exchanges[0].ProductionID
	raw, ok := domain.FindProduction(b.raw, prodID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduction, prodID)
	}
	b.logger.Debug().
		Str("production", prodID.String()).
		Int64("quantity", c.Quantity()).
		Msg("broker.handleCancel freed")
	b.sendProposal([]domain.Production{raw.WithQuantity(c.Quantity())}, nil)
	return nil
}

func (b *Broker) generateExchanges(productionID uuid.UUID, quantity int64, path []string) []domain.Exchange {
	lots := quantity / b.minLot
	out := make([]domain.Exchange, 0, lots+1)
	for i := int64(0); i < lots; i++ {
		out = append(out, domain.Exchange{
			ID:           b.newID(),
			ProductionID: productionID,
			Quantity:     b.minLot,
			Path:         domain.ClonePath(path),
		})
	}
	if rem := quantity - lots*b.minLot; rem > 0 {
		out = append(out, domain.Exchange{
			ID:           b.newID(),
			ProductionID: productionID,
			Quantity:     rem,
			Path:         domain.ClonePath(path),
		})
	}
	return out
}

func merge(groups ...[]domain.Production) []domain.Production {
	var out []domain.Production
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// returnPath builds the producer-to-consumer route for a proposal path:
// the hops before the producer reversed, then the consumer itself.
func returnPath(path []string, self string) []string {
	out := make([]string, 0, len(path))
	for i := len(path) - 2; i >= 0; i-- {
		out = append(out, path[i])
	}
	return append(out, self)
}

// downstreamOf resolves the consumer-side neighbor on a producer-to-consumer
// route: the hop after self, or the first hop when self is the producer.
func downstreamOf(returnPath []string, self string) string {
	for i, node := range returnPath {
		if node == self {
			if i+1 < len(returnPath) {
				return returnPath[i+1]
			}
			return ""
		}
	}
	if len(returnPath) > 0 {
		return returnPath[0]
	}
	return ""
}
