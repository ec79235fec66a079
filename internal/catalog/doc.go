// Package catalog defines the placement-metadata interface the connection
// manager consumes and provides concrete implementations backed by the
// distributed catalog tables.
//
// # Overview
//
// The connection manager itself persists nothing. Its only durable side
// effect is flipping a placement's state from finalized to inactive when the
// commit-time failure analysis proves a replica missed a write. That single
// responsibility is captured by the Catalog interface; everything else about
// shard metadata belongs to the planner and is out of scope here.
//
// # Core Interface
//
// Catalog: placement-state access
//   - LoadGroupPlacement(shardID, placementID) - Read one placement row
//   - UpdatePlacementState(placementID, state) - Persist a state transition
//
// # Implementations
//
// PG: queries pg_dist_placement through a pgx connection pool
//   - Used in production against the coordinator's own catalog
//   - Single-row reads and updates, no caching
//
// Fake: in-memory map with an update journal
//   - Deterministic, dependency-free, suitable for unit tests
//   - Records every UpdatePlacementState call for assertions
//
// # Error Handling
//
// All implementations return ErrPlacementNotFound for missing rows so callers
// can distinguish absent metadata from transport failures:
//
//	gp, err := cat.LoadGroupPlacement(ctx, shardID, placementID)
//	if errors.Is(err, catalog.ErrPlacementNotFound) {
//	    // placement was removed underneath us
//	}
package catalog
