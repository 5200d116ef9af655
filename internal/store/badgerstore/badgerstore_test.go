package badgerstore_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidstore/braid/internal/store/badgerstore"
	"github.com/braidstore/braid/internal/store/storetest"
	"github.com/braidstore/braid/pkg/graph"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) graph.Datastore[uint64] {
		ds, err := badgerstore.Open[uint64](t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { ds.Close() })
		return ds
	})
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	user, err := graph.NewType("user")
	require.NoError(t, err)
	likes, err := graph.NewType("likes")
	require.NoError(t, err)
	weight, err := graph.NewWeight(0.8)
	require.NoError(t, err)

	ds, err := badgerstore.Open[uint64](dir)
	require.NoError(t, err)
	_, err = ds.CreateVertex(ctx, graph.NewVertex(uint64(1), user))
	require.NoError(t, err)
	_, err = ds.CreateEdge(ctx, graph.NewEdgeNow(uint64(1), likes, uint64(2), weight))
	require.NoError(t, err)
	require.NoError(t, ds.Close())

	ds, err = badgerstore.Open[uint64](dir)
	require.NoError(t, err)
	defer ds.Close()

	vs, err := ds.GetVertices(ctx, graph.VerticesByID(uint64(1)))
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, user, vs[0].Type)

	es, err := ds.GetEdges(ctx, graph.EdgesByOutbound(uint64(1)))
	require.NoError(t, err)
	require.Len(t, es, 1)
	assert.Equal(t, weight, es[0].Weight)
}

func TestUuidIdentifiers(t *testing.T) {
	// The daemon's instantiation: random 128-bit ids with composite keys.
	ctx := context.Background()
	ds, err := badgerstore.Open[uuid.UUID](t.TempDir())
	require.NoError(t, err)
	defer ds.Close()

	user, err := graph.NewType("user")
	require.NoError(t, err)
	likes, err := graph.NewType("likes")
	require.NoError(t, err)
	weight, err := graph.NewWeight(-0.25)
	require.NoError(t, err)

	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	_, err = ds.CreateVertex(ctx, graph.NewVertex(a, user))
	require.NoError(t, err)
	_, err = ds.CreateVertex(ctx, graph.NewVertex(b, user))
	require.NoError(t, err)
	_, err = ds.CreateEdge(ctx, graph.NewEdgeNow(a, likes, b, weight))
	require.NoError(t, err)

	es, err := ds.GetEdges(ctx, graph.EdgesByInbound(b))
	require.NoError(t, err)
	require.Len(t, es, 1)
	assert.Equal(t, a, es[0].Outbound)
	assert.Equal(t, b, es[0].Inbound)

	require.NoError(t, ds.DeleteVertices(ctx, graph.VerticesByID(a)))
	es, err = ds.GetEdges(ctx, graph.AllEdges[uuid.UUID]())
	require.NoError(t, err)
	assert.Empty(t, es)
}

func TestStringIdentifiers(t *testing.T) {
	// Variable-length ids exercise the length-prefixed composite keys.
	ctx := context.Background()
	ds, err := badgerstore.Open[string](t.TempDir())
	require.NoError(t, err)
	defer ds.Close()

	likes, err := graph.NewType("likes")
	require.NoError(t, err)
	weight, err := graph.NewWeight(1.0)
	require.NoError(t, err)

	_, err = ds.CreateEdge(ctx, graph.NewEdgeNow("alice", likes, "bob-the-builder", weight))
	require.NoError(t, err)
	_, err = ds.CreateEdge(ctx, graph.NewEdgeNow("ali", likes, "cebob", weight))
	require.NoError(t, err)

	es, err := ds.GetEdges(ctx, graph.EdgesByOutbound("alice"))
	require.NoError(t, err)
	require.Len(t, es, 1)
	assert.Equal(t, "bob-the-builder", es[0].Inbound)
}
