package placement

import (
	"context"
	"fmt"

	"github.com/dreamware/placon/internal/catalog"
	"github.com/dreamware/placon/internal/cluster"
)

// fakeConn is a minimal placement.Conn with settable state bits.
type fakeConn struct {
	name     string
	claimed  bool
	txFailed bool
}

func (c *fakeConn) ClaimedExclusively() bool      { return c.claimed }
func (c *fakeConn) RemoteTransactionFailed() bool { return c.txFailed }

// startCall records one StartConnection invocation for assertions.
type startCall struct {
	flags Flags
	node  cluster.WorkerNode
	user  string
}

// fakePool hands out a fresh fakeConn per StartConnection call, or a
// scripted error.
type fakePool struct {
	calls  []startCall
	opened []*fakeConn
	err    error
}

func (p *fakePool) StartConnection(ctx context.Context, flags Flags, node cluster.WorkerNode, user string) (Conn, error) {
	p.calls = append(p.calls, startCall{flags: flags, node: node, user: user})
	if p.err != nil {
		return nil, p.err
	}
	conn := &fakeConn{name: fmt.Sprintf("conn-%d", len(p.opened)+1)}
	p.opened = append(p.opened, conn)
	return conn, nil
}

var (
	workerA = cluster.WorkerNode{Name: "worker-a", Port: 5432, GroupID: 1}
	workerB = cluster.WorkerNode{Name: "worker-b", Port: 5432, GroupID: 2}
)

// plainPlacement builds a non-colocated placement.
func plainPlacement(placementID, shardID uint64, node cluster.WorkerNode) ShardPlacement {
	return ShardPlacement{
		PlacementID: placementID,
		ShardID:     shardID,
		Node:        node,
	}
}

// colocatedPlacement builds a placement of a hash-partitioned table.
func colocatedPlacement(placementID, shardID uint64, node cluster.WorkerNode, group, value uint32) ShardPlacement {
	return ShardPlacement{
		PlacementID:         placementID,
		ShardID:             shardID,
		Node:                node,
		ColocationGroupID:   group,
		RepresentativeValue: value,
		Colocated:           true,
	}
}

// newTestManager wires a manager to a fresh fake pool and fake catalog.
func newTestManager() (*Manager, *fakePool, *catalog.Fake) {
	p := &fakePool{}
	cat := catalog.NewFake()
	m := NewManager(Options{
		Pool:        p,
		Catalog:     cat,
		DefaultUser: "postgres",
	})
	return m, p, cat
}
