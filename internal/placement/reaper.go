package placement

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/dreamware/placon/internal/catalog"
)

// CommitCheck summarizes one commit-time failure analysis.
type CommitCheck struct {
	// ShardsChecked is the number of shard entries walked.
	ShardsChecked int

	// ShardsFailed is the number of shards whose modifying placements all
	// failed.
	ShardsFailed int

	// Invalidated lists the placement ids transitioned from finalized to
	// inactive, in catalog-update order.
	Invalidated []uint64

	// Warnings carries the messages that were logged at warning severity
	// instead of raised as errors (non-2PC post-commit shard failures).
	Warnings []string
}

// CheckPreCommit runs the failure analysis just before workers are asked to
// commit.
//
// For every touched shard, the modifying placements are classified by
// whether their connection is still open and its remote transaction intact.
// A shard that lost every modifying placement aborts the distributed
// transaction before any remote commit happens, protecting durability. A
// shard with surviving replicas instead has each failed placement
// invalidated in the catalog (finalized placements only; placements in
// other states belong to other actors).
//
// Returns:
//   - The analysis summary
//   - *ShardFailureError if some shard cannot be changed on any node;
//     catalog errors are propagated wrapped
func (m *Manager) CheckPreCommit(ctx context.Context) (*CommitCheck, error) {
	check := &CommitCheck{}

	for _, shardID := range m.sortedShardIDs() {
		check.ShardsChecked++
		ok, err := m.checkShard(ctx, shardID, check)
		if err != nil {
			return check, err
		}
		if !ok {
			check.ShardsFailed++
			m.metrics.ObserveShardFailure()
			return check, &ShardFailureError{ShardID: shardID}
		}
	}

	return check, nil
}

// CheckPostCommit runs the failure analysis after the remote commit attempt.
//
// The per-shard classification is the same as CheckPreCommit's, but the
// severity of an all-replicas-failed shard depends on the commit protocol:
// under 2PC the error is raised immediately (rollback is still possible);
// without 2PC it is only warned about, because other remote commits may
// already have succeeded non-atomically. Independently, a transaction that
// committed on no shard at all is always an error.
//
// Parameters:
//   - using2PC: Whether the remote commits ran under two-phase commit
//
// Returns:
//   - The analysis summary, including any warnings issued
//   - *ShardFailureError (2PC) or *CommitFailureError (nothing committed);
//     catalog errors are propagated wrapped
func (m *Manager) CheckPostCommit(ctx context.Context, using2PC bool) (*CommitCheck, error) {
	check := &CommitCheck{}

	for _, shardID := range m.sortedShardIDs() {
		check.ShardsChecked++
		ok, err := m.checkShard(ctx, shardID, check)
		if err != nil {
			return check, err
		}
		if ok {
			continue
		}

		check.ShardsFailed++
		m.metrics.ObserveShardFailure()
		if using2PC {
			return check, &ShardFailureError{ShardID: shardID, Committed: true}
		}

		warning := (&ShardFailureError{ShardID: shardID, Committed: true}).Error()
		check.Warnings = append(check.Warnings, warning)
		m.log.Warn("shard commit failed on every node",
			zap.Uint64("shard", shardID))
	}

	if check.ShardsChecked > 0 && check.ShardsFailed == check.ShardsChecked {
		return check, &CommitFailureError{}
	}

	return check, nil
}

// checkShard classifies the shard's modifying placements and, when at least
// one replica survived, invalidates the failed ones. Returns false when
// every modifying placement failed.
//
// Shards that were only read count as intact: they have nothing to lose.
func (m *Manager) checkShard(ctx context.Context, shardID uint64, check *CommitCheck) (bool, error) {
	se := m.shards[shardID]

	modifiedOK := 0
	modifiedFailed := 0

	for _, pe := range se.placements {
		pc := pe.primary
		if !pc.modified() {
			continue
		}
		if pc.conn == nil || pc.conn.RemoteTransactionFailed() {
			pe.failed = true
			modifiedFailed++
		} else {
			modifiedOK++
		}
	}

	if modifiedFailed > 0 && modifiedOK == 0 {
		return false, nil
	}

	for _, pe := range se.placements {
		if !pe.failed {
			continue
		}
		if err := m.invalidatePlacement(ctx, pe, check); err != nil {
			return true, err
		}
	}

	return true, nil
}

// invalidatePlacement transitions one failed placement from finalized to
// inactive. Placements whose persisted state is anything else are left
// alone: repair and cleanup machinery own those. A placement row that
// vanished underneath us is likewise not an error.
func (m *Manager) invalidatePlacement(ctx context.Context, pe *placementEntry, check *CommitCheck) error {
	gp, err := m.catalog.LoadGroupPlacement(ctx, pe.shardID, pe.placementID)
	if errors.Is(err, catalog.ErrPlacementNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failure analysis for placement %d: %w", pe.placementID, err)
	}
	if gp.State != catalog.StateFinalized {
		return nil
	}

	if err := m.catalog.UpdatePlacementState(ctx, pe.placementID, catalog.StateInactive); err != nil {
		return fmt.Errorf("invalidate placement %d: %w", pe.placementID, err)
	}

	check.Invalidated = append(check.Invalidated, pe.placementID)
	m.metrics.ObserveInvalidation()
	m.log.Info("marked failed placement inactive",
		zap.Uint64("placement", pe.placementID),
		zap.Uint64("shard", pe.shardID))
	return nil
}

// sortedShardIDs returns the shard index's keys in ascending order so the
// analysis (and its error attribution) is deterministic regardless of map
// iteration order.
func (m *Manager) sortedShardIDs() []uint64 {
	ids := make([]uint64, 0, len(m.shards))
	for id := range m.shards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
