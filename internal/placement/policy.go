package placement

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// AcquireConnection returns a single live connection suitable for executing
// the entire access list as a batch, or a structured error if no connection
// can serve it without violating the assignment rules.
//
// The decision happens in two passes. Pass 1 walks the accesses in order and
// determines which connection, if any, the existing bookkeeping forces:
//
//   - A placement whose primary connection already carried writes locks the
//     batch onto that connection; a second such placement on a different
//     connection is a conflict.
//   - A placement read over multiple connections, or whose co-located family
//     was, rejects DDL.
//   - A placement pinned to an unavailable connection (wrong user, claimed
//     exclusively, force-new, or closed) rejects the batch if writes are in
//     progress on it. Unless the connection was closed, it also rejects DDL
//     even without writes.
//   - A placement whose connection was closed before any write imposes no
//     constraint, not even the multiple-readers DDL check above.
//
// If pass 1 forces no connection, a new one is requested from the pool using
// the first access's node coordinates. Pass 2 then records the chosen
// connection on every touched placement and accumulates the batch's
// DML/DDL flags.
//
// Parameters:
//   - ctx: Bounds any dial the pool performs
//   - flags: FlagForDML/FlagForDDL derive the access type recorded per
//     placement; FlagForceNew forbids reuse; higher bits pass through to
//     the pool
//   - accesses: Ordered placement accesses; ordering is part of the
//     contract (conflicts report against the first locked-in connection)
//   - user: Role for the connection; "" means the manager's default user
//
// Returns:
//   - The connection to run the batch on
//   - *ConflictError if the batch violates the assignment rules; pool
//     errors are propagated unchanged
//
// Example:
//
//	conn, err := mgr.AcquireConnection(ctx, placement.FlagForDML, []placement.Access{
//	    {Placement: p1, Type: placement.AccessDML},
//	    {Placement: p2, Type: placement.AccessDML},
//	}, "")
func (m *Manager) AcquireConnection(ctx context.Context, flags Flags, accesses []Access, user string) (Conn, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	if len(accesses) == 0 {
		return nil, errors.New("empty placement access list")
	}
	if user == "" {
		user = m.defaultUser
	}

	entries := make([]*placementEntry, len(accesses))

	// Pass 1: find the connection the existing assignments force, if any.
	var chosen Conn
	lockedIn := false

	for i, access := range accesses {
		if access.Placement.ShardID == InvalidShardID {
			// Pruned placement: runs on whatever connection the rest of
			// the batch settles on, imposes no constraints.
			continue
		}

		pe := m.ensurePlacement(access.Placement)
		entries[i] = pe
		pc := pe.primary

		switch {
		case pc.conn == nil && !pc.modified():
			// Never used, or closed after reads only: no constraint.

		case access.Type == AccessDDL && pe.hasSecondaryReaders:
			return nil, m.conflict(RuleDDLAfterMultiRead, pe.placementID)

		case access.Type == AccessDDL && pe.colocation != nil && pe.colocation.hasSecondaryReaders:
			return nil, m.conflict(RuleColocatedDDLAfterMultiRead, pe.placementID)

		case lockedIn:
			if pc.modified() && pc.conn != chosen {
				return nil, m.conflict(RuleMultiConnectionModify, pe.placementID)
			}

		case m.canReuse(pc, flags, user):
			chosen = pc.conn
			if pc.modified() {
				lockedIn = true
			}

		case pc.hadDDL:
			return nil, m.conflict(RuleDDLOnBusyConnection, pe.placementID)

		case pc.hadDML:
			return nil, m.conflict(RuleDMLOnBusyConnection, pe.placementID)

		case access.Type == AccessDDL:
			return nil, m.conflict(RuleParallelDDL, pe.placementID)

		default:
			// Read over an unavailable connection: pass 2 allocates an
			// alternate one and records the secondary reader.
		}
	}

	if chosen == nil {
		conn, err := m.pool.StartConnection(ctx, flags, accesses[0].Placement.Node, user)
		if err != nil {
			return nil, err
		}
		chosen = conn
	}

	// Pass 2: record the assignment on every touched placement.
	for i, access := range accesses {
		pe := entries[i]
		if pe == nil {
			continue
		}
		pc := pe.primary

		switch {
		case pc.conn == chosen:
			// Already assigned to the chosen connection.

		case pc.conn == nil:
			pc.conn = chosen
			pc.user = user
			pc.hadDML = false
			pc.hadDDL = false
			m.attachRef(chosen, pc)

		default:
			// A different connection than previously used. Writes replace
			// the assignment (prior writes would have conflicted in pass
			// 1); reads keep the old primary and go over the chosen
			// connection as a secondary reader.
			if access.Type == AccessDML || access.Type == AccessDDL {
				m.detachRef(pc)
				pc.conn = chosen
				pc.user = user
				m.attachRef(chosen, pc)
			}
			pe.hasSecondaryReaders = true
			if pe.colocation != nil {
				pe.colocation.hasSecondaryReaders = true
			}
		}

		switch access.Type {
		case AccessDML:
			pc.hadDML = true
		case AccessDDL:
			pc.hadDDL = true
		}
	}

	m.metrics.ObserveAcquire()
	return chosen, nil
}

// canReuse reports whether the placement's existing connection can serve the
// current acquisition: it must still be open, not claimed exclusively by
// the pool, not overridden by FlagForceNew, and established under the same
// user.
func (m *Manager) canReuse(pc *connectionReference, flags Flags, user string) bool {
	if pc.conn == nil {
		return false
	}
	if pc.conn.ClaimedExclusively() {
		return false
	}
	if flags&FlagForceNew != 0 {
		return false
	}
	return pc.user == user
}

// conflict builds a ConflictError and records it in logs and metrics.
func (m *Manager) conflict(rule ConflictRule, placementID uint64) error {
	m.metrics.ObserveConflict(string(rule))
	m.log.Debug("placement connection conflict",
		zap.String("rule", string(rule)),
		zap.Uint64("placement", placementID))
	return &ConflictError{Rule: rule, PlacementID: placementID}
}
