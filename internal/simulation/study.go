package simulation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/gridmesh/internal/dispatcher"
	"github.com/danmuck/gridmesh/internal/domain"
)

var ErrInvalidStudy = errors.New("simulation: invalid study")

const (
	// DefaultLot is the exchange lot size when a study does not set one.
	DefaultLot = 1
	// DefaultQuietMillis is the activity window that counts as settled.
	DefaultQuietMillis = 150
)

// Study is one adequacy problem: a named network of nodes.
type Study struct {
	Name        string     `toml:"name" json:"name"`
	Lot         int64      `toml:"lot" json:"lot"`
	QuietMillis int64      `toml:"quiet_millis" json:"quiet_millis"`
	Nodes       []NodeSpec `toml:"nodes" json:"nodes"`
}

// NodeSpec declares one node of the network.
type NodeSpec struct {
	Name         string            `toml:"name" json:"name"`
	Consumptions []ConsumptionSpec `toml:"consumptions" json:"consumptions,omitempty"`
	Productions  []ProductionSpec  `toml:"productions" json:"productions,omitempty"`
	Links        []LinkSpec        `toml:"links" json:"links,omitempty"`
}

// ConsumptionSpec is one demand block; cost is the penalty per unserved unit.
type ConsumptionSpec struct {
	Name     string `toml:"name" json:"name"`
	Cost     int64  `toml:"cost" json:"cost"`
	Quantity int64  `toml:"quantity" json:"quantity"`
}

// ProductionSpec is one supply block at its marginal cost.
type ProductionSpec struct {
	Name     string `toml:"name" json:"name"`
	Cost     int64  `toml:"cost" json:"cost"`
	Quantity int64  `toml:"quantity" json:"quantity"`
}

// LinkSpec is one directed line to a neighbor node.
type LinkSpec struct {
	Dest     string `toml:"dest" json:"dest"`
	Capacity int64  `toml:"capacity" json:"capacity"`
	Cost     int64  `toml:"cost" json:"cost"`
}

// WithDefaults fills unset tuning fields and returns the study.
func (s Study) WithDefaults() Study {
	if s.Lot == 0 {
		s.Lot = DefaultLot
	}
	if s.QuietMillis == 0 {
		s.QuietMillis = DefaultQuietMillis
	}
	return s
}

// QuietWindow is how long the mesh must stay silent to count as settled.
func (s Study) QuietWindow() time.Duration {
	return time.Duration(s.QuietMillis) * time.Millisecond
}

// ValidateStudy checks that a study describes a runnable network.
func ValidateStudy(s Study) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidStudy)
	}
	if s.Lot < 1 {
		return fmt.Errorf("%w: lot must be at least 1", ErrInvalidStudy)
	}
	if s.QuietMillis < 1 {
		return fmt.Errorf("%w: quiet window must be positive", ErrInvalidStudy)
	}
	if len(s.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrInvalidStudy)
	}

	names := make(map[string]bool, len(s.Nodes))
	for i, node := range s.Nodes {
		if strings.TrimSpace(node.Name) == "" {
			return fmt.Errorf("%w: node[%d] missing name", ErrInvalidStudy, i)
		}
		if names[node.Name] {
			return fmt.Errorf("%w: duplicate node %q", ErrInvalidStudy, node.Name)
		}
		names[node.Name] = true
	}

	for _, node := range s.Nodes {
		for _, c := range node.Consumptions {
			if strings.TrimSpace(c.Name) == "" {
				return fmt.Errorf("%w: node %q consumption missing name", ErrInvalidStudy, node.Name)
			}
			if c.Cost < 0 {
				return fmt.Errorf("%w: node %q consumption %q has negative cost", ErrInvalidStudy, node.Name, c.Name)
			}
			if c.Quantity < 1 {
				return fmt.Errorf("%w: node %q consumption %q needs positive quantity", ErrInvalidStudy, node.Name, c.Name)
			}
		}
		for _, p := range node.Productions {
			if strings.TrimSpace(p.Name) == "" {
				return fmt.Errorf("%w: node %q production missing name", ErrInvalidStudy, node.Name)
			}
			if p.Cost < 0 {
				return fmt.Errorf("%w: node %q production %q has negative cost", ErrInvalidStudy, node.Name, p.Name)
			}
			if p.Quantity < 1 {
				return fmt.Errorf("%w: node %q production %q needs positive quantity", ErrInvalidStudy, node.Name, p.Name)
			}
		}
		dests := make(map[string]bool, len(node.Links))
		for _, l := range node.Links {
			if strings.TrimSpace(l.Dest) == "" {
				return fmt.Errorf("%w: node %q link missing dest", ErrInvalidStudy, node.Name)
			}
			if l.Dest == node.Name {
				return fmt.Errorf("%w: node %q links to itself", ErrInvalidStudy, node.Name)
			}
			if !names[l.Dest] {
				return fmt.Errorf("%w: node %q links to unknown node %q", ErrInvalidStudy, node.Name, l.Dest)
			}
			if dests[l.Dest] {
				return fmt.Errorf("%w: node %q has duplicate link to %q", ErrInvalidStudy, node.Name, l.Dest)
			}
			dests[l.Dest] = true
			if l.Capacity < 1 {
				return fmt.Errorf("%w: node %q link to %q needs positive capacity", ErrInvalidStudy, node.Name, l.Dest)
			}
			if l.Cost < 0 {
				return fmt.Errorf("%w: node %q link to %q has negative cost", ErrInvalidStudy, node.Name, l.Dest)
			}
		}
	}
	return nil
}

func (n NodeSpec) dispatcherConfig(lot int64) dispatcher.Config {
	cfg := dispatcher.Config{Name: n.Name, MinLot: lot}
	for _, c := range n.Consumptions {
		cfg.Consumptions = append(cfg.Consumptions, domain.Consumption{
			Name: c.Name, Cost: c.Cost, Quantity: c.Quantity,
		})
	}
	for _, p := range n.Productions {
		cfg.Productions = append(cfg.Productions, domain.Production{
			Name: p.Name, Cost: p.Cost, Quantity: p.Quantity,
		})
	}
	for _, l := range n.Links {
		cfg.Links = append(cfg.Links, domain.Link{
			Dest: l.Dest, Capacity: l.Capacity, Cost: l.Cost,
		})
	}
	return cfg
}
