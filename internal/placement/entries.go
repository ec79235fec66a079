package placement

// connectionReference is the association between a placement (or a whole
// co-located family) and the connection used for it within the current
// transaction.
//
// A reference is created empty (no connection) when its placement is first
// touched, claimed by pass 2 of the policy engine, and possibly detached
// again when the pool closes the connection mid-transaction. The write flags
// are monotonic for the reference's lifetime except when a fresh connection
// legitimately takes the placement over (only possible while the flags are
// still clear).
//
// Co-located placements alias one shared reference, so a write flag set
// through one placement is observed by every other member of the family.
type connectionReference struct {
	// conn is the pooled connection, or nil if none has been assigned yet
	// or the assigned one was closed.
	conn Conn

	// user is the role the connection was established under. Reuse
	// requires an exact match; a role change would change visibility and
	// permissions mid-transaction.
	user string

	// hadDML is set once any DML ran over this reference.
	hadDML bool

	// hadDDL is set once any DDL ran over this reference.
	hadDDL bool
}

// modified reports whether any write (DML or DDL) was recorded.
func (r *connectionReference) modified() bool {
	return r.hadDML || r.hadDDL
}

// placementEntry is the per-placement bookkeeping record, keyed by placement
// id in the manager's placement index. Its lifetime is one transaction.
type placementEntry struct {
	// primary owns DML/DDL for this placement. Never nil once the entry
	// exists; for co-located placements it aliases the family's shared
	// reference.
	primary *connectionReference

	// colocation points at the co-located family's entry, or nil for
	// placements of append/range tables.
	colocation *colocationEntry

	// placementID and shardID repeat the catalog identity so the failure
	// analysis can address catalog rows without keeping the original
	// access around.
	placementID uint64
	shardID     uint64

	// hasSecondaryReaders is set once a second connection was used to
	// read this placement. Monotonic within the transaction; its presence
	// forbids subsequent DDL.
	hasSecondaryReaders bool

	// failed is set by the commit-time failure analysis.
	failed bool
}

// colocationKey identifies a co-located family: placements on the same
// worker, in the same colocation group, covering the same hash-range lower
// bound must share a connection.
type colocationKey struct {
	nodeName            string
	nodePort            int
	colocationGroupID   uint32
	representativeValue uint32
}

// colocationEntry is the per-family bookkeeping record. Every member
// placement's primary aliases this entry's primary.
type colocationEntry struct {
	// primary is the shared connection reference of the family.
	primary *connectionReference

	// hasSecondaryReaders is set once any member placement was read over
	// a second connection.
	hasSecondaryReaders bool
}

// shardEntry collects the placements of one shard that were touched this
// transaction. Consumed only by the commit-time failure analysis; ordering
// is irrelevant and membership is de-duplicated by placement id.
type shardEntry struct {
	placements []*placementEntry
}

// add appends the placement unless it is already a member.
func (s *shardEntry) add(pe *placementEntry) {
	for _, existing := range s.placements {
		if existing.placementID == pe.placementID {
			return
		}
	}
	s.placements = append(s.placements, pe)
}
