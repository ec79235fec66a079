// Package placement implements the placement connection manager: the
// per-transaction bookkeeping layer that decides which worker connection is
// used for each shard placement a distributed query touches.
//
// # Overview
//
// Within one coordinator transaction, accessing the same placement over two
// different connections can self-deadlock, lose read-your-own-writes
// visibility, or corrupt failure accounting. The manager prevents all three
// by remembering, per placement and per co-located family, which connection
// performed which kind of access, and by refusing assignments that would
// violate the rules.
//
// # Architecture
//
// Three indices back one policy engine and one commit-time analysis:
//
//	┌───────────────────────────────────────────────┐
//	│                   Manager                     │
//	├───────────────────────────────────────────────┤
//	│ placements:  placement id → PlacementEntry    │
//	│ colocations: (node, group, value) → Entry     │
//	│ shards:      shard id → member placements     │
//	│ connRefs:    connection → back-link list      │
//	├───────────────────────────────────────────────┤
//	│ AcquireConnection   (two-pass policy engine)  │
//	│ CheckPreCommit / CheckPostCommit   (reaper)   │
//	│ Reset / OnConnectionClosed       (lifecycle)  │
//	└───────────────────────────────────────────────┘
//
// # Connection Assignment
//
// AcquireConnection takes an ordered batch of placement accesses and returns
// one connection suitable for the whole batch. Pass 1 walks the accesses and
// either settles on an existing connection, decides a new one is needed, or
// rejects the batch with a ConflictError. Pass 2 records the final
// assignment on every touched placement. The ordering of the access list is
// part of the contract: conflicts are reported against whichever modifying
// connection was locked in first.
//
// # Co-located Families
//
// Placements of hash-partitioned and reference tables that share a node,
// colocation group, and hash-range lower bound alias one shared
// ConnectionReference. A write recorded through any member is instantly
// visible to every other member's conflict checks, which is how DML
// exclusivity extends across co-located tables without extra lookups.
//
// # Failure Analysis
//
// At commit time the reaper walks the shard index. A shard whose modifying
// placements all failed aborts the transaction (fatally before commit, or
// depending on 2PC afterwards); a shard with surviving replicas instead has
// its failed placements invalidated in the catalog so reads stop routing to
// them.
//
// # Concurrency Model
//
// The manager is deliberately single-threaded: exactly one coordinator
// backend drives one distributed transaction at a time, so no locking is
// performed. Construct one Manager per backend and never share it across
// goroutines. The connection objects it hands out are shared with the
// caller, which owns all execution on them.
package placement
