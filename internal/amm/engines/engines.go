// Package engines maps an AmmConfig to the engine of its family.
package engines

import (
	"fmt"

	"zapquote/internal/amm"
	"zapquote/internal/amm/balancer"
	"zapquote/internal/amm/curve"
	"zapquote/internal/amm/gamma"
	"zapquote/internal/amm/solidly"
	"zapquote/internal/amm/uniswap"
	"zapquote/internal/model"
)

// New validates cfg and creates the engine for its family.
func New(cfg model.AmmConfig, deps amm.Deps) (amm.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Family {
	case model.FamilyConstantProduct:
		return wrap(uniswap.New(cfg, deps))
	case model.FamilyHybridCurve:
		return wrap(solidly.New(cfg, deps))
	case model.FamilyVault:
		return wrap(balancer.New(cfg, deps))
	case model.FamilyHypervisor:
		return wrap(gamma.New(cfg, deps))
	case model.FamilyStablePool:
		return wrap(curve.New(cfg, deps))
	default:
		return nil, fmt.Errorf("%w: family %q", amm.ErrUnsupportedVariant, cfg.Family)
	}
}

// wrap keeps a nil engine pointer from becoming a non-nil interface.
func wrap[E amm.Engine](engine E, err error) (amm.Engine, error) {
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// Set holds the engines of a deployment list keyed by AMM id.
type Set struct {
	byID map[string]amm.Engine
}

// NewSet creates an engine for every config. Duplicate ids are rejected.
func NewSet(cfgs []model.AmmConfig, deps amm.Deps) (*Set, error) {
	s := &Set{byID: make(map[string]amm.Engine, len(cfgs))}
	for _, cfg := range cfgs {
		if _, ok := s.byID[cfg.ID]; ok {
			return nil, fmt.Errorf("duplicate amm id %q", cfg.ID)
		}
		engine, err := New(cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("amm %s: %w", cfg.ID, err)
		}
		s.byID[cfg.ID] = engine
	}
	return s, nil
}

// Get returns the engine of an AMM id.
func (s *Set) Get(id string) (amm.Engine, error) {
	engine, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown amm %q", id)
	}
	return engine, nil
}
