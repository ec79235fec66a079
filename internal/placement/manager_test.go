package placement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReset tests transaction-end cleanup
func TestReset(t *testing.T) {
	ctx := context.Background()

	t.Run("reset empties all indices", func(t *testing.T) {
		m, _, _ := newTestManager()
		a := colocatedPlacement(1, 10, workerA, 5, 100)
		b := plainPlacement(2, 11, workerB)

		_, err := m.AcquireConnection(ctx, FlagForDML, []Access{
			{Placement: a, Type: AccessDML},
			{Placement: b, Type: AccessDML},
		}, "alice")
		require.NoError(t, err)
		require.NotEmpty(t, m.placements)
		require.NotEmpty(t, m.colocations)
		require.NotEmpty(t, m.shards)
		require.NotEmpty(t, m.connRefs)

		m.Reset()

		assert.Empty(t, m.placements)
		assert.Empty(t, m.colocations)
		assert.Empty(t, m.shards)
		assert.Empty(t, m.connRefs)
	})

	t.Run("commit and abort hooks both reset", func(t *testing.T) {
		m, _, _ := newTestManager()
		pl := plainPlacement(42, 7, workerA)

		_, err := m.AcquireConnection(ctx, 0, []Access{{Placement: pl, Type: AccessSelect}}, "alice")
		require.NoError(t, err)
		m.OnTransactionCommit()
		assert.Empty(t, m.placements)

		_, err = m.AcquireConnection(ctx, 0, []Access{{Placement: pl, Type: AccessSelect}}, "alice")
		require.NoError(t, err)
		m.OnTransactionAbort()
		assert.Empty(t, m.placements)
	})

	t.Run("fresh transaction after reset behaves like the first", func(t *testing.T) {
		m, p, _ := newTestManager()
		pl := plainPlacement(42, 7, workerA)

		c1, err := m.AcquireConnection(ctx, 0, []Access{{Placement: pl, Type: AccessSelect}}, "alice")
		require.NoError(t, err)
		m.Reset()

		c2, err := m.AcquireConnection(ctx, 0, []Access{{Placement: pl, Type: AccessSelect}}, "alice")
		require.NoError(t, err)
		// The fake pool dials fresh each time; what matters is that the
		// manager asked again instead of reusing stale state.
		assert.Len(t, p.calls, 2)
		assert.NotSame(t, c1, c2)
	})
}

// TestOnConnectionClosed tests mid-transaction connection loss
func TestOnConnectionClosed(t *testing.T) {
	ctx := context.Background()

	t.Run("close nulls references but keeps write flags", func(t *testing.T) {
		m, _, _ := newTestManager()
		pl := plainPlacement(42, 7, workerA)

		conn, err := m.AcquireConnection(ctx, FlagForDML, []Access{{Placement: pl, Type: AccessDML}}, "alice")
		require.NoError(t, err)

		m.OnConnectionClosed(conn)

		pe := m.placements[42]
		assert.Nil(t, pe.primary.conn)
		assert.True(t, pe.primary.hadDML, "write flags survive the close")
		assert.NotContains(t, m.connRefs, conn)
	})

	t.Run("pinned modified placement rejects further access", func(t *testing.T) {
		m, _, _ := newTestManager()
		pl := plainPlacement(42, 7, workerA)

		conn, err := m.AcquireConnection(ctx, FlagForDML, []Access{{Placement: pl, Type: AccessDML}}, "alice")
		require.NoError(t, err)
		m.OnConnectionClosed(conn)

		_, err = m.AcquireConnection(ctx, 0, []Access{{Placement: pl, Type: AccessSelect}}, "alice")
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, RuleDMLOnBusyConnection, conflict.Rule)
	})

	t.Run("read-only placement is silently reclaimed after close", func(t *testing.T) {
		m, p, _ := newTestManager()
		pl := plainPlacement(42, 7, workerA)

		conn, err := m.AcquireConnection(ctx, 0, []Access{{Placement: pl, Type: AccessSelect}}, "alice")
		require.NoError(t, err)
		m.OnConnectionClosed(conn)

		c2, err := m.AcquireConnection(ctx, 0, []Access{{Placement: pl, Type: AccessSelect}}, "alice")
		require.NoError(t, err)
		assert.NotSame(t, conn, c2)
		assert.Len(t, p.calls, 2)
		assert.Same(t, c2, m.placements[42].primary.conn)
		assert.False(t, m.placements[42].hasSecondaryReaders)
	})

	t.Run("close of unknown connection is a no-op", func(t *testing.T) {
		m, _, _ := newTestManager()
		m.OnConnectionClosed(&fakeConn{name: "stranger"})
	})
}

// TestBookkeepingInvariants tests the structural invariants after a mixed
// workload
func TestBookkeepingInvariants(t *testing.T) {
	ctx := context.Background()

	m, _, _ := newTestManager()
	a := colocatedPlacement(1, 10, workerA, 5, 100)
	b := colocatedPlacement(2, 11, workerA, 5, 100)
	c := plainPlacement(3, 12, workerB)

	_, err := m.AcquireConnection(ctx, FlagForDML, []Access{
		{Placement: a, Type: AccessDML},
		{Placement: b, Type: AccessDML},
	}, "alice")
	require.NoError(t, err)
	_, err = m.AcquireConnection(ctx, 0, []Access{{Placement: c, Type: AccessSelect}}, "alice")
	require.NoError(t, err)
	_, err = m.AcquireConnection(ctx, FlagForceNew, []Access{{Placement: c, Type: AccessSelect}}, "alice")
	require.NoError(t, err)

	// Every non-nil primary connection's back-link list contains that
	// primary.
	for id, pe := range m.placements {
		if pe.primary.conn == nil {
			continue
		}
		found := false
		for _, ref := range m.connRefs[pe.primary.conn] {
			if ref == pe.primary {
				found = true
				break
			}
		}
		assert.True(t, found, "placement %d's primary missing from its connection's back-links", id)
	}

	// Every colocation entry's primary is aliased by at least one member
	// placement.
	for key, ce := range m.colocations {
		aliased := false
		for _, pe := range m.placements {
			if pe.colocation == ce && pe.primary == ce.primary {
				aliased = true
				break
			}
		}
		assert.True(t, aliased, "colocation entry %v has no aliasing member", key)
	}

	// Secondary readers imply more than one connection was used; the
	// read-twice placement has them, the write-once family does not.
	assert.True(t, m.placements[3].hasSecondaryReaders)
	assert.False(t, m.placements[1].hasSecondaryReaders)
	assert.False(t, m.colocations[colocationKey{
		nodeName:            workerA.Name,
		nodePort:            workerA.Port,
		colocationGroupID:   5,
		representativeValue: 100,
	}].hasSecondaryReaders)
}

// TestManagerValidation tests construction errors
func TestManagerValidation(t *testing.T) {
	ctx := context.Background()
	access := []Access{{Placement: plainPlacement(42, 7, workerA), Type: AccessSelect}}

	t.Run("missing pool", func(t *testing.T) {
		m := NewManager(Options{Catalog: nil, DefaultUser: "postgres"})
		_, err := m.AcquireConnection(ctx, 0, access, "alice")
		assert.Error(t, err)
	})

	t.Run("missing catalog", func(t *testing.T) {
		m := NewManager(Options{Pool: &fakePool{}, DefaultUser: "postgres"})
		_, err := m.AcquireConnection(ctx, 0, access, "alice")
		assert.Error(t, err)
	})
}
