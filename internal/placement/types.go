// Package placement implements the placement connection manager.
// See doc.go for complete package documentation.
package placement

import (
	"context"

	"github.com/dreamware/placon/internal/cluster"
)

// AccessType classifies what a query is about to do to a placement. The
// classification drives the decision table: reads may fan out over extra
// connections, writes must stay on one, and DDL additionally refuses
// placements that were already read over several connections.
type AccessType int

const (
	// AccessSelect is a read-only access.
	AccessSelect AccessType = iota

	// AccessDML is a data modification (INSERT/UPDATE/DELETE).
	AccessDML

	// AccessDDL is a schema modification.
	AccessDDL
)

// String returns the access type's name for error messages and logs.
func (a AccessType) String() string {
	switch a {
	case AccessSelect:
		return "SELECT"
	case AccessDML:
		return "DML"
	case AccessDDL:
		return "DDL"
	default:
		return "unknown"
	}
}

// Flags modify how a connection is acquired. The low bits are interpreted by
// the manager itself; all bits are forwarded to the pool untouched, so
// pool-specific flags can ride along in the higher bits.
type Flags uint32

const (
	// FlagForDML marks the batch as data-modifying. Derives AccessDML for
	// every access unless FlagForDDL is also present.
	FlagForDML Flags = 1 << iota

	// FlagForDDL marks the batch as schema-modifying. Takes precedence
	// over FlagForDML when deriving the access type.
	FlagForDDL

	// FlagForceNew forbids reusing an existing connection for this batch,
	// even one that matches user and availability. Existing write state
	// still vetoes the acquisition through the decision table.
	FlagForceNew
)

// AccessTypeForFlags derives the access type the flag bits imply:
// DDL wins over DML, and the absence of both means a read.
func AccessTypeForFlags(flags Flags) AccessType {
	switch {
	case flags&FlagForDDL != 0:
		return AccessDDL
	case flags&FlagForDML != 0:
		return AccessDML
	default:
		return AccessSelect
	}
}

// InvalidShardID is the sentinel shard id carried by placements the planner
// pruned down to zero rows. Accesses to such placements need a connection to
// run on but impose no bookkeeping constraints.
const InvalidShardID uint64 = 0

// ShardPlacement identifies one physical shard replica as the planner hands
// it to the manager.
//
// The identity fields come straight from the catalog; Colocated additionally
// tells the manager whether this placement participates in connection
// sharing with its co-located family (true for hash-partitioned and
// reference tables).
type ShardPlacement struct {
	// PlacementID is the catalog-assigned globally unique placement id.
	PlacementID uint64

	// ShardID is the shard this placement replicates. InvalidShardID marks
	// a pruned placement that bypasses bookkeeping.
	ShardID uint64

	// Node is the worker hosting the placement.
	Node cluster.WorkerNode

	// ColocationGroupID is the colocation group of the owning table.
	ColocationGroupID uint32

	// RepresentativeValue is the lower bound of the placement's hash
	// range; zero for reference tables.
	RepresentativeValue uint32

	// Colocated is true when the placement belongs to a hash-partitioned
	// or reference table and must share its connection with co-located
	// placements on the same node.
	Colocated bool
}

// Access pairs a placement with the kind of access about to happen to it.
// AcquireConnection consumes an ordered list of these.
type Access struct {
	Placement ShardPlacement
	Type      AccessType
}

// Conn is the manager's view of a pooled connection. The pool owns the
// socket; the manager only reads these two bits of state when deciding
// reuse and when classifying commit-time failures.
type Conn interface {
	// ClaimedExclusively reports whether the pool has claimed this
	// connection for a purpose that forbids sharing (e.g. COPY). Claimed
	// connections are never reused by the manager.
	ClaimedExclusively() bool

	// RemoteTransactionFailed reports whether the remote transaction on
	// this connection has failed. Consulted only by the commit-time
	// failure analysis.
	RemoteTransactionFailed() bool
}

// Pool is the external connection pool the manager asks for new connections.
// The manager never opens connections itself; it only chooses among those
// the pool provides.
type Pool interface {
	// StartConnection returns a live connection to the given worker under
	// the given user. The flags are the acquisition's full flag set,
	// including pool-specific high bits.
	StartConnection(ctx context.Context, flags Flags, node cluster.WorkerNode, user string) (Conn, error)
}
