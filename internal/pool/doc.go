// Package pool opens and tracks the coordinator's physical connections to
// worker nodes, implementing the connection source the placement manager
// draws from.
//
// # Overview
//
// The placement manager never dials anything itself: it asks the pool for a
// connection to a worker under a user and bookkeeps whatever comes back.
// The pool owns everything physical — dialing with a timeout, per-worker
// health tracking, connection reuse, caps, and teardown — and exposes the
// two per-connection state bits the manager reads (exclusive claim, remote
// transaction failure).
//
// # Architecture
//
//	┌───────────────────────────────────────────┐
//	│                WorkerPool                 │
//	├───────────────────────────────────────────┤
//	│ conns:  (worker addr, user) → [conns]     │
//	│ health: worker addr → NodeHealth          │
//	│ onClose callback → placement manager      │
//	├───────────────────────────────────────────┤
//	│ StartConnection │ Finish │ CloseAll       │
//	└───────────────────────────────────────────┘
//
// # Reuse Semantics
//
// Connections are keyed by (worker address, user). StartConnection hands
// back an existing open connection for the key unless the acquisition
// forces a new one or every existing connection is claimed exclusively;
// the placement manager layers its own, stricter reuse rules on top.
//
// # Health Gate
//
// Dial failures are counted per worker the way the coordinator counts any
// node failure: enough consecutive failures mark the worker unhealthy, and
// StartConnection then refuses to dial it. A successful dial resets the
// count and marks the worker healthy again. The pool runs no probes of its
// own, so once a worker is marked unhealthy it stays so unless a dial that
// was already in progress succeeds; its existing open connections can still
// be reused.
//
// # Thread Safety
//
// All WorkerPool methods are safe for concurrent use. The pool does not
// record which caller holds a connection: every StartConnection for the
// same (worker address, user) key may be handed the same unclaimed
// connection. A connection's state bits are internally synchronized.
package pool
