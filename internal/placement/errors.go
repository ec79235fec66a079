package placement

import "fmt"

// SQLSTATE codes attached to the manager's errors. Conflicts use the active
// SQL transaction code because they can only occur inside one; commit-time
// failures use the generic internal-error code.
const (
	// SQLStateActiveTransaction is the SQLSTATE for connection-assignment
	// conflicts (class 25: invalid transaction state).
	SQLStateActiveTransaction = "25001"

	// SQLStateInternalError is the SQLSTATE for commit-time failures.
	SQLStateInternalError = "XX000"
)

// ConflictRule names the decision-table rule that rejected an acquisition.
// Used as the metrics label and carried on ConflictError for callers that
// want to distinguish rejection causes programmatically.
type ConflictRule string

const (
	// RuleDDLAfterMultiRead rejects DDL on a placement already read over
	// multiple connections.
	RuleDDLAfterMultiRead ConflictRule = "ddl-after-multi-read"

	// RuleColocatedDDLAfterMultiRead rejects DDL when a co-located
	// placement was read over multiple connections.
	RuleColocatedDDLAfterMultiRead ConflictRule = "colocated-ddl-after-multi-read"

	// RuleMultiConnectionModify rejects batches whose placements were
	// modified over more than one connection.
	RuleMultiConnectionModify ConflictRule = "multi-connection-modify"

	// RuleDDLOnBusyConnection rejects a new connection for a placement
	// with DDL in progress on an unavailable connection.
	RuleDDLOnBusyConnection ConflictRule = "ddl-on-busy-connection"

	// RuleDMLOnBusyConnection rejects a new connection for a placement
	// with DML in progress on an unavailable connection.
	RuleDMLOnBusyConnection ConflictRule = "dml-on-busy-connection"

	// RuleParallelDDL rejects DDL that would need a second connection to
	// a placement already accessed over an unavailable one.
	RuleParallelDDL ConflictRule = "parallel-ddl"
)

// ConflictError reports that an acquisition cannot be served without
// violating deadlock-freedom or read-your-own-writes. The caller is expected
// to abort the distributed transaction; the manager never retries.
type ConflictError struct {
	// Rule is the decision-table rule that fired.
	Rule ConflictRule

	// PlacementID is the offending placement.
	PlacementID uint64
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	switch e.Rule {
	case RuleDDLAfterMultiRead:
		return fmt.Sprintf("cannot perform DDL on placement %d, which has been read over multiple connections", e.PlacementID)
	case RuleColocatedDDLAfterMultiRead:
		return fmt.Sprintf("cannot perform DDL on placement %d, since a co-located placement has been read over multiple connections", e.PlacementID)
	case RuleMultiConnectionModify:
		return fmt.Sprintf("cannot perform query with placement %d, since placements have been modified over multiple connections", e.PlacementID)
	case RuleDDLOnBusyConnection:
		return fmt.Sprintf("cannot establish a new connection for placement %d, since DDL has been executed on a connection that is in use", e.PlacementID)
	case RuleDMLOnBusyConnection:
		return fmt.Sprintf("cannot establish a new connection for placement %d, since DML has been executed on a connection that is in use", e.PlacementID)
	case RuleParallelDDL:
		return fmt.Sprintf("cannot perform parallel DDL on placement %d, which has been accessed over a connection that is in use", e.PlacementID)
	default:
		return fmt.Sprintf("connection assignment conflict on placement %d", e.PlacementID)
	}
}

// SQLState returns the SQLSTATE code of the conflict.
func (e *ConflictError) SQLState() string {
	return SQLStateActiveTransaction
}

// ShardFailureError reports that every modifying placement of one shard
// failed, so the shard cannot be changed on any node.
type ShardFailureError struct {
	// ShardID is the shard whose modifications were lost.
	ShardID uint64

	// Committed distinguishes the post-commit message from the pre-commit
	// one.
	Committed bool
}

// Error implements the error interface.
func (e *ShardFailureError) Error() string {
	if e.Committed {
		return fmt.Sprintf("could not commit transaction for shard %d on any active node", e.ShardID)
	}
	return fmt.Sprintf("could not make changes to shard %d on any node", e.ShardID)
}

// SQLState returns the SQLSTATE code of the failure.
func (e *ShardFailureError) SQLState() string {
	return SQLStateInternalError
}

// CommitFailureError reports that the transaction committed on no shard at
// all: every attempted shard lost all of its modifying placements.
type CommitFailureError struct{}

// Error implements the error interface.
func (e *CommitFailureError) Error() string {
	return "could not commit transaction on any active node"
}

// SQLState returns the SQLSTATE code of the failure.
func (e *CommitFailureError) SQLState() string {
	return SQLStateInternalError
}
