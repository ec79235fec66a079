package placement_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/placon/internal/catalog"
	"github.com/dreamware/placon/internal/cluster"
	"github.com/dreamware/placon/internal/config"
	"github.com/dreamware/placon/internal/placement"
	"github.com/dreamware/placon/internal/pool"
)

// TestManagerWithWorkerPool runs a distributed-transaction shaped workload
// through the real pool (with a stubbed dialer) and the real manager.
func TestManagerWithWorkerPool(t *testing.T) {
	ctx := context.Background()

	workerA := cluster.WorkerNode{Name: "worker-a", Port: 5432, GroupID: 1}
	workerB := cluster.WorkerNode{Name: "worker-b", Port: 5432, GroupID: 2}

	newStack := func(t *testing.T) (*placement.Manager, *pool.WorkerPool, *catalog.Fake) {
		t.Helper()
		settings := config.Default()
		p := pool.New(settings, nil, nil)
		p.SetDialFunc(func(ctx context.Context, node cluster.WorkerNode, user string) (*pgx.Conn, error) {
			return nil, nil
		})
		cat := catalog.NewFake()
		m := placement.NewManager(placement.Options{
			Pool:        p,
			Catalog:     cat,
			DefaultUser: "postgres",
		})
		p.SetOnClose(func(c *pool.WorkerConn) { m.OnConnectionClosed(c) })
		return m, p, cat
	}

	t.Run("reads and writes share pooled connections per worker", func(t *testing.T) {
		m, _, _ := newStack(t)

		a := placement.ShardPlacement{PlacementID: 1, ShardID: 10, Node: workerA}
		b := placement.ShardPlacement{PlacementID: 2, ShardID: 11, Node: workerA}

		c1, err := m.AcquireConnection(ctx, placement.FlagForDML,
			[]placement.Access{{Placement: a, Type: placement.AccessDML}}, "")
		require.NoError(t, err)

		// Same worker, same user: the pool hands back the same physical
		// connection, and the manager accepts it for the second placement.
		c2, err := m.AcquireConnection(ctx, placement.FlagForDML,
			[]placement.Access{{Placement: b, Type: placement.AccessDML}}, "")
		require.NoError(t, err)
		assert.Same(t, c1, c2)
	})

	t.Run("pool-retired connection pins its written placements", func(t *testing.T) {
		m, p, cat := newStack(t)
		cat.Insert(catalog.GroupPlacement{PlacementID: 1, ShardID: 10, State: catalog.StateFinalized})
		cat.Insert(catalog.GroupPlacement{PlacementID: 2, ShardID: 10, State: catalog.StateFinalized})

		a := placement.ShardPlacement{PlacementID: 1, ShardID: 10, Node: workerA}
		b := placement.ShardPlacement{PlacementID: 2, ShardID: 10, Node: workerB}

		c1, err := m.AcquireConnection(ctx, placement.FlagForDML,
			[]placement.Access{{Placement: a, Type: placement.AccessDML}}, "")
		require.NoError(t, err)
		_, err = m.AcquireConnection(ctx, placement.FlagForDML,
			[]placement.Access{{Placement: b, Type: placement.AccessDML}}, "")
		require.NoError(t, err)

		// The pool shrinks mid-transaction; the close callback reaches the
		// manager.
		p.Finish(ctx, c1.(*pool.WorkerConn))

		// The shard survives on worker B, and the lost write invalidates
		// placement 1.
		check, err := m.CheckPreCommit(ctx)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1}, check.Invalidated)
	})

	t.Run("remote transaction failure flows into the rollup", func(t *testing.T) {
		m, _, cat := newStack(t)
		cat.Insert(catalog.GroupPlacement{PlacementID: 1, ShardID: 10, State: catalog.StateFinalized})

		a := placement.ShardPlacement{PlacementID: 1, ShardID: 10, Node: workerA}

		c1, err := m.AcquireConnection(ctx, placement.FlagForDML,
			[]placement.Access{{Placement: a, Type: placement.AccessDML}}, "")
		require.NoError(t, err)

		// The 2PC layer records the remote abort on the connection.
		c1.(*pool.WorkerConn).MarkRemoteTxFailed()

		_, err = m.CheckPreCommit(ctx)
		var failure *placement.ShardFailureError
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, uint64(10), failure.ShardID)
	})

	t.Run("transaction end leaves the pool reusable", func(t *testing.T) {
		m, _, _ := newStack(t)

		a := placement.ShardPlacement{PlacementID: 1, ShardID: 10, Node: workerA}

		c1, err := m.AcquireConnection(ctx, 0,
			[]placement.Access{{Placement: a, Type: placement.AccessSelect}}, "")
		require.NoError(t, err)

		m.OnTransactionCommit()

		// The next transaction gets the same pooled connection back, with
		// fresh bookkeeping.
		c2, err := m.AcquireConnection(ctx, 0,
			[]placement.Access{{Placement: a, Type: placement.AccessSelect}}, "")
		require.NoError(t, err)
		assert.Same(t, c1, c2)
	})
}
