package placement

import (
	"errors"

	"go.uber.org/zap"

	"github.com/dreamware/placon/internal/catalog"
	"github.com/dreamware/placon/internal/metrics"
)

// Options configures a Manager.
type Options struct {
	// Pool supplies new worker connections. Required.
	Pool Pool

	// Catalog persists placement invalidations. Required.
	Catalog catalog.Catalog

	// DefaultUser is the role used when an acquisition doesn't name one;
	// typically the session role of the owning backend. Required.
	DefaultUser string

	// Logger receives lifecycle and failure events. Optional; defaults to
	// a no-op logger.
	Logger *zap.Logger

	// Metrics receives instrumentation. Optional; nil disables it.
	Metrics *metrics.Metrics
}

// Manager is the placement connection manager for one coordinator backend.
//
// It tracks, per transaction, which connection each placement and co-located
// family is bound to, brokers connection choice for every batch of placement
// accesses, and performs the commit-time failure analysis. State is cleared
// wholesale between transactions via Reset.
//
// Thread Safety:
// A Manager belongs to exactly one backend and performs no locking. Do not
// share it across goroutines; the pool behind it is the only shared
// component.
//
// Example:
//
//	mgr := placement.NewManager(placement.Options{
//	    Pool:        pool,
//	    Catalog:     cat,
//	    DefaultUser: "postgres",
//	    Logger:      logger,
//	})
//	conn, err := mgr.AcquireConnection(ctx, placement.FlagForDML, accesses, "")
type Manager struct {
	placements  map[uint64]*placementEntry        // placement id -> entry
	colocations map[colocationKey]*colocationEntry // family key -> entry
	shards      map[uint64]*shardEntry            // shard id -> touched placements
	connRefs    map[Conn][]*connectionReference   // back-link lists per connection

	pool        Pool
	catalog     catalog.Catalog
	defaultUser string
	log         *zap.Logger
	metrics     *metrics.Metrics
}

// NewManager creates a manager with empty indices. Call once per backend at
// process startup; the indices live for the process, their entries for one
// transaction each.
//
// Parameters:
//   - opts: Pool, Catalog and DefaultUser are required; Logger and Metrics
//     are optional
//
// Returns:
//   - A ready Manager
func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		placements:  make(map[uint64]*placementEntry),
		colocations: make(map[colocationKey]*colocationEntry),
		shards:      make(map[uint64]*shardEntry),
		connRefs:    make(map[Conn][]*connectionReference),
		pool:        opts.Pool,
		catalog:     opts.Catalog,
		defaultUser: opts.DefaultUser,
		log:         log,
		metrics:     opts.Metrics,
	}
}

// ensurePlacement returns the bookkeeping entry for the placement, creating
// it (and, for co-located placements, its family entry) on first touch. The
// placement is also associated with its shard entry, de-duplicated by
// placement id.
func (m *Manager) ensurePlacement(p ShardPlacement) *placementEntry {
	pe, ok := m.placements[p.PlacementID]
	if !ok {
		pe = &placementEntry{
			placementID: p.PlacementID,
			shardID:     p.ShardID,
		}
		if p.Colocated {
			key := colocationKey{
				nodeName:            p.Node.Name,
				nodePort:            p.Node.Port,
				colocationGroupID:   p.ColocationGroupID,
				representativeValue: p.RepresentativeValue,
			}
			ce, found := m.colocations[key]
			if !found {
				ce = &colocationEntry{primary: &connectionReference{}}
				m.colocations[key] = ce
			}
			// Members of one family alias the family's shared reference,
			// so write flags recorded through any member are observed by
			// all of them.
			pe.primary = ce.primary
			pe.colocation = ce
		} else {
			pe.primary = &connectionReference{}
		}
		m.placements[p.PlacementID] = pe
	}

	se, ok := m.shards[p.ShardID]
	if !ok {
		se = &shardEntry{}
		m.shards[p.ShardID] = se
	}
	se.add(pe)

	return pe
}

// attachRef records that ref's connection holds a back-link to it, so a
// later close of that connection can null the reference.
func (m *Manager) attachRef(conn Conn, ref *connectionReference) {
	m.connRefs[conn] = append(m.connRefs[conn], ref)
}

// detachRef removes ref from its current connection's back-link list, if it
// is on one.
func (m *Manager) detachRef(ref *connectionReference) {
	if ref.conn == nil {
		return
	}
	refs := m.connRefs[ref.conn]
	for i, r := range refs {
		if r == ref {
			m.connRefs[ref.conn] = append(refs[:i], refs[i+1:]...)
			break
		}
	}
}

// OnConnectionClosed is the pool's notification that conn was closed
// mid-transaction (idle timeout, pool shrink).
//
// Every connection reference still pointing at conn loses its connection,
// but keeps its user and write flags: a placement that was modified over the
// closed connection stays pinned, so a later conflicting access fails
// through the decision table instead of silently moving to a fresh
// connection, and the commit-time analysis still counts the lost write.
func (m *Manager) OnConnectionClosed(conn Conn) {
	refs, ok := m.connRefs[conn]
	if !ok {
		return
	}
	for _, ref := range refs {
		ref.conn = nil
	}
	delete(m.connRefs, conn)
	m.log.Debug("connection closed mid-transaction, detached placement references",
		zap.Int("references", len(refs)))
}

// Reset clears all per-transaction state: the three indices and every
// connection's back-link list. Call at every transaction end, commit or
// abort.
func (m *Manager) Reset() {
	m.placements = make(map[uint64]*placementEntry)
	m.colocations = make(map[colocationKey]*colocationEntry)
	m.shards = make(map[uint64]*shardEntry)
	m.connRefs = make(map[Conn][]*connectionReference)
}

// OnTransactionCommit is the commit hook: clears all per-transaction state.
func (m *Manager) OnTransactionCommit() {
	m.Reset()
}

// OnTransactionAbort is the abort hook: clears all per-transaction state.
func (m *Manager) OnTransactionAbort() {
	m.Reset()
}

// validate checks the options a Manager cannot function without. Called by
// AcquireConnection so a half-constructed Manager fails loudly instead of
// panicking deep inside the policy engine.
func (m *Manager) validate() error {
	if m.pool == nil {
		return errors.New("placement manager has no connection pool")
	}
	if m.catalog == nil {
		return errors.New("placement manager has no catalog")
	}
	return nil
}
