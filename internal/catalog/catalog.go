// Package catalog provides access to placement metadata.
// See doc.go for complete package documentation.
package catalog

import (
	"context"
	"errors"
	"sync"
)

// ErrPlacementNotFound is returned when a placement row doesn't exist in the
// catalog.
//
// Callers should check for this specific error to distinguish between a
// placement that was dropped concurrently and an actual catalog failure.
//
// Usage pattern:
//
//	gp, err := cat.LoadGroupPlacement(ctx, shardID, placementID)
//	if errors.Is(err, catalog.ErrPlacementNotFound) {
//	    // Placement row is gone; nothing to invalidate
//	} else if err != nil {
//	    // Handle other errors
//	}
var ErrPlacementNotFound = errors.New("placement not found")

// PlacementState describes the persisted lifecycle state of a shard
// placement. Values are the catalog's on-disk representation and must not
// be renumbered.
type PlacementState int

const (
	// StateFinalized marks a placement as live and fully written.
	// Only finalized placements are eligible for invalidation by the
	// commit-time failure analysis.
	StateFinalized PlacementState = 1

	// StateInactive marks a placement that missed a write and must not be
	// read until repaired. The failure reaper transitions finalized
	// placements here.
	StateInactive PlacementState = 3

	// StateToDelete marks a placement scheduled for removal by the
	// background cleanup machinery. The connection manager leaves these
	// alone entirely.
	StateToDelete PlacementState = 4
)

// String returns the human-readable name of the state.
func (s PlacementState) String() string {
	switch s {
	case StateFinalized:
		return "finalized"
	case StateInactive:
		return "inactive"
	case StateToDelete:
		return "to-delete"
	default:
		return "unknown"
	}
}

// GroupPlacement is one placement row as stored in the catalog.
//
// Fields mirror the pg_dist_placement schema: a globally unique placement
// id, the shard it replicates, its lifecycle state, and the node group
// hosting it.
type GroupPlacement struct {
	// PlacementID is the globally unique identifier of this placement.
	PlacementID uint64

	// ShardID is the shard this placement replicates.
	ShardID uint64

	// State is the persisted lifecycle state.
	State PlacementState

	// GroupID is the node group hosting the placement.
	GroupID uint32
}

// Catalog defines the placement-metadata operations the connection manager
// needs, providing a consistent API across the pgx-backed implementation and
// the in-memory fake.
//
// All implementations must guarantee:
//   - ErrPlacementNotFound for missing rows (never nil, nil)
//   - UpdatePlacementState is a no-op error for unknown placements
//   - Safe concurrent use (the reaper is single-threaded, but the fake is
//     shared across parallel tests)
type Catalog interface {
	// LoadGroupPlacement reads the placement row for (shardID, placementID).
	//
	// Behavior:
	//   - Returns a copy of the row on success
	//   - Returns ErrPlacementNotFound if no such row exists
	//   - Must not return a nil row with a nil error
	LoadGroupPlacement(ctx context.Context, shardID, placementID uint64) (*GroupPlacement, error)

	// UpdatePlacementState persists a new lifecycle state for a placement.
	//
	// Behavior:
	//   - Overwrites the state column of the matching row
	//   - Returns ErrPlacementNotFound if no such row exists
	UpdatePlacementState(ctx context.Context, placementID uint64, state PlacementState) error
}

// StateUpdate records one UpdatePlacementState call observed by the Fake,
// in call order.
type StateUpdate struct {
	PlacementID uint64
	State       PlacementState
}

// Fake is an in-memory Catalog implementation for tests.
//
// It stores placement rows in a map and journals every state update so tests
// can assert exactly which placements were invalidated and in what order.
//
// Thread Safety:
// All methods are safe for concurrent use.
//
// Example:
//
//	cat := catalog.NewFake()
//	cat.Insert(catalog.GroupPlacement{PlacementID: 42, ShardID: 7, State: catalog.StateFinalized})
type Fake struct {
	rows    map[uint64]GroupPlacement // placementID -> row
	updates []StateUpdate             // journal of UpdatePlacementState calls
	mu      sync.Mutex                // Protects rows and updates
}

// NewFake creates an empty in-memory catalog.
func NewFake() *Fake {
	return &Fake{
		rows: make(map[uint64]GroupPlacement),
	}
}

// Insert adds or replaces a placement row.
func (f *Fake) Insert(gp GroupPlacement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[gp.PlacementID] = gp
}

// LoadGroupPlacement implements Catalog.
func (f *Fake) LoadGroupPlacement(ctx context.Context, shardID, placementID uint64) (*GroupPlacement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[placementID]
	if !ok || row.ShardID != shardID {
		return nil, ErrPlacementNotFound
	}

	// Return a copy to prevent external modification
	cp := row
	return &cp, nil
}

// UpdatePlacementState implements Catalog.
func (f *Fake) UpdatePlacementState(ctx context.Context, placementID uint64, state PlacementState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[placementID]
	if !ok {
		return ErrPlacementNotFound
	}

	row.State = state
	f.rows[placementID] = row
	f.updates = append(f.updates, StateUpdate{PlacementID: placementID, State: state})
	return nil
}

// Updates returns a copy of the state-update journal in call order.
func (f *Fake) Updates() []StateUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]StateUpdate, len(f.updates))
	copy(out, f.updates)
	return out
}
