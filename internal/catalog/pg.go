package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQL statements for placement-state access.
const (
	// queryLoadGroupPlacement reads one placement row by shard and placement id.
	queryLoadGroupPlacement = `
		SELECT placementid, shardid, shardstate, groupid
		FROM pg_dist_placement
		WHERE shardid = $1 AND placementid = $2`

	// queryUpdatePlacementState persists a new state for a placement.
	queryUpdatePlacementState = `
		UPDATE pg_dist_placement
		SET shardstate = $2
		WHERE placementid = $1`
)

// PG is the production Catalog implementation, reading and writing
// pg_dist_placement through a pgx connection pool.
//
// The pool is owned by the caller; PG never closes it. Reads and updates are
// single-row statements executed outside any explicit transaction, matching
// the invalidation semantics: a placement-state transition must survive even
// if the distributed transaction that triggered it rolls back.
//
// Thread Safety:
// Safe for concurrent use; pgxpool handles connection checkout internally.
//
// Example:
//
//	dbpool, _ := pgxpool.New(ctx, settings.CatalogDSN)
//	cat := catalog.NewPG(dbpool)
type PG struct {
	db *pgxpool.Pool
}

// NewPG creates a catalog backed by the given pgx pool.
//
// Parameters:
//   - db: An open pgxpool connected to the coordinator's catalog database
//
// Returns:
//   - A Catalog implementation ready for use
func NewPG(db *pgxpool.Pool) *PG {
	return &PG{db: db}
}

// LoadGroupPlacement implements Catalog.
//
// Returns ErrPlacementNotFound when the row is absent, wrapping any other
// pgx error with the identifying keys for debugging.
func (c *PG) LoadGroupPlacement(ctx context.Context, shardID, placementID uint64) (*GroupPlacement, error) {
	var gp GroupPlacement
	err := c.db.QueryRow(ctx, queryLoadGroupPlacement, int64(shardID), int64(placementID)).
		Scan(&gp.PlacementID, &gp.ShardID, &gp.State, &gp.GroupID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlacementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load placement %d for shard %d: %w", placementID, shardID, err)
	}
	return &gp, nil
}

// UpdatePlacementState implements Catalog.
//
// Returns ErrPlacementNotFound when no row matched the placement id.
func (c *PG) UpdatePlacementState(ctx context.Context, placementID uint64, state PlacementState) error {
	tag, err := c.db.Exec(ctx, queryUpdatePlacementState, int64(placementID), int(state))
	if err != nil {
		return fmt.Errorf("update placement %d to state %s: %w", placementID, state, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlacementNotFound
	}
	return nil
}
