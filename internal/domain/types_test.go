package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestConsumptionValidate(t *testing.T) {
	c := Consumption{Name: "load", Cost: 10_000, Quantity: 50}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if err := (Consumption{Cost: 1, Quantity: 1}).Validate(); !errors.Is(err, ErrInvalidConsumption) {
		t.Fatalf("expected ErrInvalidConsumption for missing name, got %v", err)
	}
	if err := (Consumption{Name: "  ", Cost: 1, Quantity: 1}).Validate(); !errors.Is(err, ErrInvalidConsumption) {
		t.Fatalf("expected ErrInvalidConsumption for blank name, got %v", err)
	}
	if err := (Consumption{Name: "load", Cost: -1, Quantity: 1}).Validate(); !errors.Is(err, ErrInvalidConsumption) {
		t.Fatalf("expected ErrInvalidConsumption for negative cost, got %v", err)
	}
	if err := (Consumption{Name: "load", Cost: 1, Quantity: -1}).Validate(); !errors.Is(err, ErrInvalidConsumption) {
		t.Fatalf("expected ErrInvalidConsumption for negative quantity, got %v", err)
	}
}

func TestProductionValidate(t *testing.T) {
	p := Production{ID: uuid.New(), Name: "nuclear", Kind: KindLocal, Cost: 20, Quantity: 100}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if err := (Production{Kind: KindLocal, Cost: 1, Quantity: 1}).Validate(); !errors.Is(err, ErrInvalidProduction) {
		t.Fatalf("expected ErrInvalidProduction for missing identity, got %v", err)
	}
	if err := (Production{ID: uuid.New(), Name: "x", Kind: "weird", Quantity: 1}).Validate(); !errors.Is(err, ErrInvalidProduction) {
		t.Fatalf("expected ErrInvalidProduction for unknown kind, got %v", err)
	}
	if err := (Production{ID: uuid.New(), Name: "x", Kind: KindExchange, Quantity: 1}).Validate(); !errors.Is(err, ErrInvalidProduction) {
		t.Fatalf("expected ErrInvalidProduction for exchange kind without exchange, got %v", err)
	}

	bound := Production{
		ID:       uuid.New(),
		Name:     "x",
		Kind:     KindExchange,
		Quantity: 1,
		Exchange: &Exchange{ID: uuid.New(), ProductionID: uuid.New(), Quantity: 1},
	}
	if err := bound.Validate(); err != nil {
		t.Fatalf("bound exchange production should validate: %v", err)
	}
}

func TestProductionWithQuantityCopies(t *testing.T) {
	p := Production{ID: uuid.New(), Name: "solar", Kind: KindLocal, Cost: 10, Quantity: 40}
	half := p.WithQuantity(20)
	if half.Quantity != 20 || p.Quantity != 40 {
		t.Fatalf("WithQuantity mutated or mis-set: half=%d orig=%d", half.Quantity, p.Quantity)
	}
	if half.ID != p.ID || half.Name != p.Name || half.Cost != p.Cost || half.Kind != p.Kind {
		t.Fatalf("WithQuantity should preserve identity fields: %+v", half)
	}
}

func TestLinkValidate(t *testing.T) {
	if err := (Link{Dest: "b", Capacity: 10, Cost: 2}).Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if err := (Link{Capacity: 10}).Validate(); !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected ErrInvalidLink for missing dest, got %v", err)
	}
	if err := (Link{Dest: "b", Capacity: 0}).Validate(); !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected ErrInvalidLink for zero capacity, got %v", err)
	}
	if err := (Link{Dest: "b", Capacity: 1, Cost: -1}).Validate(); !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected ErrInvalidLink for negative cost, got %v", err)
	}
}

func TestExchangeValidateAndWithPath(t *testing.T) {
	ex := Exchange{ID: uuid.New(), ProductionID: uuid.New(), Quantity: 5, Path: []string{"a"}}
	if err := ex.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if err := (Exchange{ProductionID: uuid.New(), Quantity: 1}).Validate(); !errors.Is(err, ErrInvalidExchange) {
		t.Fatalf("expected ErrInvalidExchange for missing id, got %v", err)
	}
	if err := (Exchange{ID: uuid.New(), Quantity: 1}).Validate(); !errors.Is(err, ErrInvalidExchange) {
		t.Fatalf("expected ErrInvalidExchange for missing production id, got %v", err)
	}
	if err := (Exchange{ID: uuid.New(), ProductionID: uuid.New()}).Validate(); !errors.Is(err, ErrInvalidExchange) {
		t.Fatalf("expected ErrInvalidExchange for zero quantity, got %v", err)
	}

	route := []string{"b", "a"}
	bound := ex.WithPath(route)
	route[0] = "mutated"
	if bound.Path[0] != "b" {
		t.Fatalf("WithPath should copy the route, got %v", bound.Path)
	}
	if ex.Path[0] != "a" {
		t.Fatalf("WithPath mutated the receiver: %v", ex.Path)
	}
}

func TestNodeStateQuantitySums(t *testing.T) {
	id := uuid.New()
	other := uuid.New()
	state := NodeState{
		ProductionsUsed: []Production{
			{ID: id, Name: "p", Kind: KindLocal, Quantity: 10},
			{ID: id, Name: "p", Kind: KindLocal, Quantity: 5},
			{ID: other, Name: "q", Kind: KindLocal, Quantity: 7},
		},
		ProductionsFree: []Production{
			{ID: id, Name: "p", Kind: KindLocal, Quantity: 3},
		},
	}
	if got := state.UsedQuantity(id); got != 15 {
		t.Fatalf("used quantity: got %d want 15", got)
	}
	if got := state.FreeQuantity(id); got != 3 {
		t.Fatalf("free quantity: got %d want 3", got)
	}
	if got := state.UsedQuantity(uuid.New()); got != 0 {
		t.Fatalf("unknown id should sum to zero, got %d", got)
	}
}

func TestBoundExchangesCollectsOnlyBoundLots(t *testing.T) {
	ex := Exchange{ID: uuid.New(), ProductionID: uuid.New(), Quantity: 2}
	prods := []Production{
		{ID: uuid.New(), Name: "local", Kind: KindLocal, Quantity: 10},
		{ID: ex.ProductionID, Name: "remote", Kind: KindExchange, Quantity: 2, Exchange: &ex},
	}
	got := BoundExchanges(prods)
	if len(got) != 1 || got[0].ID != ex.ID {
		t.Fatalf("unexpected bound exchanges: %+v", got)
	}
}

func TestCloneExchangesDeepCopiesPaths(t *testing.T) {
	src := []Exchange{{ID: uuid.New(), ProductionID: uuid.New(), Quantity: 1, Path: []string{"a", "b"}}}
	cloned := CloneExchanges(src)
	cloned[0].Path[0] = "mutated"
	if src[0].Path[0] != "a" {
		t.Fatalf("clone should not share path storage: %v", src[0].Path)
	}
}

func TestPathContains(t *testing.T) {
	path := []string{"a", "b"}
	if !PathContains(path, "a") || !PathContains(path, "b") {
		t.Fatalf("expected members to be found in %v", path)
	}
	if PathContains(path, "c") {
		t.Fatalf("c should not be on %v", path)
	}
	if PathContains(nil, "a") {
		t.Fatalf("empty path should contain nothing")
	}
}
