// Package region implements the region trigger engine:
// a small state machine over beacon enter/exit/determined events that
// arms a presentation engine exactly once per region-occupancy period.
package region

import (
	"context"
	"sync"

	"github.com/g3-bmx/ble-credential-client/pkg/presentation"
	"github.com/pion/logging"
)

// Occupancy is the tri-state region occupancy.
type Occupancy int

const (
	OccupancyUnknown Occupancy = iota
	OccupancyInside
	OccupancyOutside
)

// String returns the occupancy name.
func (o Occupancy) String() string {
	switch o {
	case OccupancyInside:
		return "inside"
	case OccupancyOutside:
		return "outside"
	default:
		return "unknown"
	}
}

// DeterminedState is the state carried by a state_determined event.
type DeterminedState int

const (
	DeterminedInside DeterminedState = iota
	DeterminedOutside
	DeterminedUnknown
)

// Config configures an Engine.
type Config struct {
	// RegionUUID is the fixed 128-bit region identifier this engine
	// watches. Events for any other region identifier are ignored.
	// Required.
	RegionUUID string

	// Presentation is the engine armed on region entry. Required.
	Presentation *presentation.Engine

	// LoggerFactory scopes diagnostic logging. Optional.
	LoggerFactory logging.LoggerFactory
}

// Engine consumes entered/exited/state_determined beacon events for a
// single configured region and drives Presentation with exactly-once
// semantics per inside-period.
type Engine struct {
	config Config
	log    logging.LeveledLogger

	mu        sync.Mutex
	occupancy Occupancy
	guard     bool
}

// NewEngine constructs a region Engine. Occupancy starts unknown.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.RegionUUID == "" {
		return nil, errEmptyRegionUUID
	}
	if cfg.Presentation == nil {
		return nil, errNoPresentation
	}

	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("region")
	}

	return &Engine{config: cfg, log: log, occupancy: OccupancyUnknown}, nil
}

// Occupancy returns the engine's current occupancy state.
func (e *Engine) Occupancy() Occupancy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.occupancy
}

// Entered handles an entered(region) event. Filtered by region UUID.
func (e *Engine) Entered(regionUUID string) {
	if regionUUID != e.config.RegionUUID {
		return
	}
	e.enterInside()
}

// Exited handles an exited(region) event. Filtered by region UUID.
func (e *Engine) Exited(regionUUID string) {
	if regionUUID != e.config.RegionUUID {
		return
	}
	e.setOutside()
}

// StateDetermined handles a state_determined(region, state) event.
// Filtered by region UUID.
func (e *Engine) StateDetermined(regionUUID string, state DeterminedState) {
	if regionUUID != e.config.RegionUUID {
		return
	}
	switch state {
	case DeterminedInside:
		e.enterInside()
	case DeterminedOutside:
		e.setOutside()
	case DeterminedUnknown:
		e.mu.Lock()
		e.occupancy = OccupancyUnknown
		e.mu.Unlock()
	}
}

// ManualTrigger clears the guard and presents a credential regardless of
// the current occupancy state.
func (e *Engine) ManualTrigger() {
	e.mu.Lock()
	e.guard = false
	e.mu.Unlock()

	if e.log != nil {
		e.log.Info("manual trigger")
	}
	e.presentCredential()
}

// enterInside is the shared path for entered and state_determined=inside:
// idempotent within a single inside-period.
func (e *Engine) enterInside() {
	e.mu.Lock()
	alreadyInside := e.occupancy == OccupancyInside
	e.occupancy = OccupancyInside

	if alreadyInside {
		e.mu.Unlock()
		return
	}

	shouldPresent := !e.guard
	if shouldPresent {
		e.guard = true
	}
	e.mu.Unlock()

	if shouldPresent {
		if e.log != nil {
			e.log.Info("entered region, presenting credential")
		}
		e.presentCredential()
	}
}

func (e *Engine) setOutside() {
	e.mu.Lock()
	e.occupancy = OccupancyOutside
	e.guard = false
	e.mu.Unlock()

	if e.log != nil {
		e.log.Info("exited region, canceling any active attempt")
	}
	_ = e.config.Presentation.Cancel()
}

func (e *Engine) presentCredential() {
	if err := e.config.Presentation.Start(context.Background()); err != nil && e.log != nil {
		e.log.Warnf("present_credential: %v", err)
	}
}
