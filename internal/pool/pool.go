// Package pool manages physical connections to worker nodes.
// See doc.go for complete package documentation.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/dreamware/placon/internal/cluster"
	"github.com/dreamware/placon/internal/config"
	"github.com/dreamware/placon/internal/metrics"
	"github.com/dreamware/placon/internal/placement"
)

// WorkerConn is one physical connection to a worker node. It implements
// placement.Conn.
//
// The underlying pgx connection is nil when the pool was constructed with a
// custom dial function that doesn't produce one (tests); everything else
// behaves identically.
type WorkerConn struct {
	node cluster.WorkerNode
	user string
	pg   *pgx.Conn

	mu             sync.Mutex // Protects the mutable state below
	claimed        bool
	remoteTxFailed bool
	closed         bool
}

// Node returns the worker this connection targets.
func (c *WorkerConn) Node() cluster.WorkerNode { return c.node }

// User returns the role the connection was established under.
func (c *WorkerConn) User() string { return c.user }

// ClaimedExclusively implements placement.Conn.
func (c *WorkerConn) ClaimedExclusively() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claimed
}

// RemoteTransactionFailed implements placement.Conn.
func (c *WorkerConn) RemoteTransactionFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteTxFailed
}

// Claim marks the connection as exclusively claimed (e.g. for COPY), which
// removes it from reuse until Release is called.
func (c *WorkerConn) Claim() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimed = true
}

// Release clears an exclusive claim.
func (c *WorkerConn) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimed = false
}

// MarkRemoteTxFailed records that the remote transaction on this connection
// failed. Set by the remote-transaction layer; the commit-time failure
// analysis only reads it.
func (c *WorkerConn) MarkRemoteTxFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteTxFailed = true
}

// DialFunc opens the underlying database connection for a worker. The
// default implementation dials through pgx; tests substitute their own.
type DialFunc func(ctx context.Context, node cluster.WorkerNode, user string) (*pgx.Conn, error)

// poolKey identifies one reuse bucket: connections are shared only between
// acquisitions targeting the same worker under the same user.
type poolKey struct {
	addr string
	user string
}

// WorkerPool opens, reuses, and retires connections to worker nodes.
//
// Thread Safety:
// All methods are safe for concurrent use; a single mutex protects the
// connection and health maps.
//
// Example:
//
//	p := pool.New(settings, logger, m)
//	conn, err := p.StartConnection(ctx, 0, node, "postgres")
type WorkerPool struct {
	conns   map[poolKey][]*WorkerConn      // reuse buckets
	health  map[string]*cluster.NodeHealth // worker addr -> health record
	mu      sync.Mutex                     // Protects conns and health
	onClose func(*WorkerConn)              // invoked whenever a connection is retired

	dial        DialFunc
	database    string
	connTimeout time.Duration
	maxPerKey   int
	maxFailures int
	log         *zap.Logger
	metrics     *metrics.Metrics
}

// New creates a pool with the given settings.
//
// Parameters:
//   - settings: Connection caps and timeouts; see config.Settings
//   - log: Lifecycle logging; nil for none
//   - m: Instrumentation; nil for none
//
// Returns:
//   - An empty pool ready to dial
func New(settings *config.Settings, log *zap.Logger, m *metrics.Metrics) *WorkerPool {
	if log == nil {
		log = zap.NewNop()
	}
	p := &WorkerPool{
		conns:       make(map[poolKey][]*WorkerConn),
		health:      make(map[string]*cluster.NodeHealth),
		database:    "postgres",
		connTimeout: settings.ConnectTimeout,
		maxPerKey:   settings.MaxConnsPerWorker,
		maxFailures: settings.MaxNodeFailures,
		log:         log,
		metrics:     m,
	}
	p.dial = p.pgxDial
	return p
}

// SetDialFunc overrides how the pool opens database connections. This is
// used by tests and by deployments that need custom connection options.
func (p *WorkerPool) SetDialFunc(dial DialFunc) {
	p.dial = dial
}

// SetOnClose sets the callback invoked whenever the pool retires a
// connection. The placement manager registers its OnConnectionClosed hook
// here so dangling references are nulled out.
func (p *WorkerPool) SetOnClose(onClose func(*WorkerConn)) {
	p.onClose = onClose
}

// StartConnection implements placement.Pool.
//
// An existing open, unclaimed connection for (node, user) is reused unless
// the flags force a new one. Otherwise a new connection is dialed, subject
// to the per-key cap and the worker's health gate.
//
// Returns:
//   - The connection
//   - An error if the worker is unhealthy, the cap is reached, or the dial
//     fails
func (p *WorkerPool) StartConnection(ctx context.Context, flags placement.Flags, node cluster.WorkerNode, user string) (placement.Conn, error) {
	if err := node.Validate(); err != nil {
		return nil, err
	}
	key := poolKey{addr: node.Addr(), user: user}

	p.mu.Lock()
	if flags&placement.FlagForceNew == 0 {
		for _, conn := range p.conns[key] {
			if !conn.ClaimedExclusively() {
				p.mu.Unlock()
				return conn, nil
			}
		}
	}

	if !p.health[key.addr].Dialable() {
		p.mu.Unlock()
		return nil, fmt.Errorf("worker %s is marked unhealthy", key.addr)
	}
	if len(p.conns[key]) >= p.maxPerKey {
		p.mu.Unlock()
		return nil, fmt.Errorf("connection cap of %d reached for worker %s as %q", p.maxPerKey, key.addr, user)
	}
	p.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, p.connTimeout)
	defer cancel()

	pg, err := p.dial(dialCtx, node, user)
	p.recordDialResult(node, err)
	if err != nil {
		p.metrics.ObserveDialError()
		return nil, fmt.Errorf("connect to worker %s as %q: %w", key.addr, user, err)
	}

	conn := &WorkerConn{node: node, user: user, pg: pg}

	p.mu.Lock()
	p.conns[key] = append(p.conns[key], conn)
	p.mu.Unlock()

	p.metrics.ConnOpened()
	p.log.Debug("opened worker connection",
		zap.String("worker", key.addr),
		zap.String("user", user))
	return conn, nil
}

// Finish retires a connection: the close callback runs, the underlying
// database connection is closed, and the connection leaves the reuse
// buckets. Retiring an unknown or already-retired connection is a no-op.
func (p *WorkerPool) Finish(ctx context.Context, conn *WorkerConn) {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return
	}
	conn.closed = true
	conn.mu.Unlock()

	key := poolKey{addr: conn.node.Addr(), user: conn.user}

	p.mu.Lock()
	bucket := p.conns[key]
	found := false
	for i, c := range bucket {
		if c == conn {
			p.conns[key] = append(bucket[:i], bucket[i+1:]...)
			found = true
			break
		}
	}
	p.mu.Unlock()

	if !found {
		return
	}

	if p.onClose != nil {
		p.onClose(conn)
	}
	if conn.pg != nil {
		if err := conn.pg.Close(ctx); err != nil {
			p.log.Warn("closing worker connection",
				zap.String("worker", key.addr),
				zap.Error(err))
		}
	}
	p.metrics.ConnClosed()
}

// CloseAll retires every connection in the pool. Called at backend
// shutdown; transaction-end cleanup is the placement manager's Reset, which
// leaves connections open for the next transaction.
func (p *WorkerPool) CloseAll(ctx context.Context) {
	p.mu.Lock()
	var all []*WorkerConn
	for _, bucket := range p.conns {
		all = append(all, bucket...)
	}
	p.mu.Unlock()

	for _, conn := range all {
		p.Finish(ctx, conn)
	}
}

// NodeHealth returns a copy of the health record for the given worker, or
// nil if it was never dialed.
func (p *WorkerPool) NodeHealth(node cluster.WorkerNode) *cluster.NodeHealth {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.health[node.Addr()]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

// recordDialResult updates the worker's health record after a dial attempt,
// marking the worker unhealthy after enough consecutive failures and
// healthy again on the first success.
func (p *WorkerPool) recordDialResult(node cluster.WorkerNode, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	addr := node.Addr()
	h, ok := p.health[addr]
	if !ok {
		h = &cluster.NodeHealth{Node: node, Status: cluster.StatusUnknown}
		p.health[addr] = h
	}
	h.LastCheck = time.Now()

	if err != nil {
		h.ConsecutiveFails++
		if h.ConsecutiveFails >= p.maxFailures && h.Status != cluster.StatusUnhealthy {
			h.Status = cluster.StatusUnhealthy
			p.log.Warn("worker marked unhealthy",
				zap.String("worker", addr),
				zap.Int("consecutive_failures", h.ConsecutiveFails))
		}
		return
	}

	if h.Status == cluster.StatusUnhealthy {
		p.log.Info("worker recovered", zap.String("worker", addr))
	}
	h.Status = cluster.StatusHealthy
	h.ConsecutiveFails = 0
	h.LastHealthy = h.LastCheck
}

// pgxDial is the default DialFunc, connecting through pgx with the worker's
// coordinates and the acquisition's user.
func (p *WorkerPool) pgxDial(ctx context.Context, node cluster.WorkerNode, user string) (*pgx.Conn, error) {
	dsn := fmt.Sprintf("postgres://%s@%s:%d/%s", user, node.Name, node.Port, p.database)
	return pgx.Connect(ctx, dsn)
}
