// Package cluster defines the worker-node identity and health types shared by
// the connection pool and the placement connection manager.
//
// # Overview
//
// Every shard placement lives on exactly one worker node, and every physical
// connection the coordinator opens targets one worker node. The cluster
// package owns the small vocabulary both sides speak:
//
//   - WorkerNode: the (name, port, group) identity of a worker
//   - NodeStatus / NodeHealth: the pool's view of whether a worker is
//     currently worth dialing
//
// # Architecture
//
// The package sits below everything else and imports nothing from the rest
// of the module:
//
//	┌──────────────────────────────┐      ┌──────────────┐
//	│   placement (policy, reaper) │──────│   catalog    │
//	└──────────────┬───────────────┘      └──────────────┘
//	               │
//	┌──────────────▼───────────────┐
//	│        pool (dialing)        │
//	└──────────────┬───────────────┘
//	               │
//	               └──────────► cluster
//
// # Identity Semantics
//
// WorkerNode values are compared by value: two nodes are the same node iff
// name, port, and group id all match. The placement manager uses (Name, Port)
// inside its colocation keys; the pool uses Addr() as a dial target.
//
// # Thread Safety
//
// WorkerNode is an immutable value type and safe to share freely. NodeHealth
// records are mutated only by the pool under its own lock; callers receive
// copies.
package cluster
