package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/gridmesh/internal/actor"
	"github.com/danmuck/gridmesh/internal/dispatcher"
	"github.com/danmuck/gridmesh/internal/domain"
	"github.com/danmuck/gridmesh/internal/observability"
)

var ErrNotSettled = errors.New("simulation: network did not settle")

// Result is the settled outcome of one study run.
type Result struct {
	Study         string                       `json:"study"`
	ElapsedMillis int64                        `json:"elapsed_millis"`
	Nodes         map[string]dispatcher.Totals `json:"nodes"`
}

// TotalCost sums the adequacy cost over every node.
func (r Result) TotalCost() int64 {
	var total int64
	for _, node := range r.Nodes {
		total += node.Cost
	}
	return total
}

// TotalUnserved sums the demand no node could cover.
func (r Result) TotalUnserved() int64 {
	var total int64
	for _, node := range r.Nodes {
		for _, c := range node.Consumptions {
			total += c.Requested - c.Served
		}
	}
	return total
}

// Engine runs one study on a private actor system.
type Engine struct {
	study  Study
	logger zerolog.Logger
}

func NewEngine(study Study) (*Engine, error) {
	study = study.WithDefaults()
	if err := ValidateStudy(study); err != nil {
		return nil, err
	}
	return &Engine{
		study:  study,
		logger: log.With().Str("study", study.Name).Logger(),
	}, nil
}

// Run spawns one dispatcher per node, starts the negotiation, waits for the
// mesh to go quiet, and collects every node's totals. The actors are stopped
// before Run returns.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sys := actor.NewSystem(0)
	net := dispatcher.NewActorNetwork(runCtx, sys)
	for _, spec := range e.study.Nodes {
		d, err := dispatcher.New(spec.dispatcherConfig(e.study.Lot), net)
		if err != nil {
			return Result{}, err
		}
		if _, err := sys.Spawn(runCtx, spec.Name, d); err != nil {
			return Result{}, err
		}
	}

	e.logger.Info().Int("nodes", len(e.study.Nodes)).Msg("engine.run negotiation started")
	for _, spec := range e.study.Nodes {
		if err := sys.Tell(spec.Name, domain.Start{}); err != nil {
			return Result{}, err
		}
	}

	if err := sys.Monitor().WaitQuiet(ctx, e.study.QuietWindow()); err != nil {
		observability.RecordSimulationRun("timeout", time.Since(start))
		return Result{}, fmt.Errorf("%w: %v", ErrNotSettled, err)
	}

	result := Result{
		Study: e.study.Name,
		Nodes: make(map[string]dispatcher.Totals, len(e.study.Nodes)),
	}
	for _, spec := range e.study.Nodes {
		res, err := sys.Ask(ctx, spec.Name, domain.TotalsRequest{})
		if err != nil {
			observability.RecordSimulationRun("error", time.Since(start))
			return Result{}, fmt.Errorf("totals from %s: %w", spec.Name, err)
		}
		totals, ok := res.(dispatcher.Totals)
		if !ok {
			observability.RecordSimulationRun("error", time.Since(start))
			return Result{}, fmt.Errorf("unexpected totals reply from %s: %T", spec.Name, res)
		}
		result.Nodes[spec.Name] = totals
	}

	cancel()
	sys.Wait()

	result.ElapsedMillis = time.Since(start).Milliseconds()
	observability.RecordSimulationRun("ok", time.Since(start))
	e.logger.Info().
		Int64("cost", result.TotalCost()).
		Int64("unserved", result.TotalUnserved()).
		Int64("elapsed_ms", result.ElapsedMillis).
		Msg("engine.run settled")
	return result, nil
}
