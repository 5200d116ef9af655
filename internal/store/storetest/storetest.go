// Package storetest runs one conformance suite against any Datastore
// implementation. Every backend must produce identical observable results
// for the same operation sequence, so the same assertions hold for the
// in-memory store, the badger store and the remote client.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidstore/braid/pkg/graph"
)

// Factory opens a fresh, empty datastore for one subtest. Cleanup is the
// factory's responsibility (t.Cleanup).
type Factory func(t *testing.T) graph.Datastore[uint64]

func mustType(t *testing.T, s string) graph.Type {
	t.Helper()
	typ, err := graph.NewType(s)
	require.NoError(t, err)
	return typ
}

func mustWeight(t *testing.T, w float32) graph.Weight {
	t.Helper()
	weight, err := graph.NewWeight(w)
	require.NoError(t, err)
	return weight
}

// Run exercises the full contract against the backend the factory yields.
func Run(t *testing.T, open Factory) {
	ctx := context.Background()

	t.Run("CreateVertex", func(t *testing.T) {
		ds := open(t)
		user := mustType(t, "user")

		created, err := ds.CreateVertex(ctx, graph.NewVertex(uint64(5), user))
		require.NoError(t, err)
		assert.True(t, created)

		_, err = ds.CreateVertex(ctx, graph.NewVertex(uint64(5), user))
		require.Error(t, err)
		assert.True(t, graph.IsIdTaken(err))

		vs, err := ds.GetVertices(ctx, graph.VerticesByID(uint64(5)))
		require.NoError(t, err)
		require.Len(t, vs, 1)
		assert.Equal(t, uint64(5), vs[0].ID)
	})

	t.Run("UpdateVertex", func(t *testing.T) {
		ds := open(t)
		user := mustType(t, "user")
		admin := mustType(t, "admin")

		_, err := ds.CreateVertex(ctx, graph.NewVertex(uint64(1), user))
		require.NoError(t, err)

		updated, err := ds.UpdateVertex(ctx, graph.NewVertex(uint64(1), admin))
		require.NoError(t, err)
		assert.True(t, updated)

		updated, err = ds.UpdateVertex(ctx, graph.NewVertex(uint64(2), admin))
		require.NoError(t, err)
		assert.False(t, updated)

		vs, err := ds.GetVertices(ctx, graph.VerticesByType[uint64](admin))
		require.NoError(t, err)
		require.Len(t, vs, 1)
		assert.Equal(t, admin, vs[0].Type)

		vs, err = ds.GetVertices(ctx, graph.VerticesByType[uint64](user))
		require.NoError(t, err)
		assert.Empty(t, vs)
	})

	t.Run("GetVerticesOrderingAndRange", func(t *testing.T) {
		ds := open(t)
		user := mustType(t, "user")
		for _, id := range []uint64{30, 10, 20, 40} {
			_, err := ds.CreateVertex(ctx, graph.NewVertex(id, user))
			require.NoError(t, err)
		}

		vs, err := ds.GetVertices(ctx, graph.AllVertices[uint64]())
		require.NoError(t, err)
		ids := make([]uint64, 0, len(vs))
		for _, v := range vs {
			ids = append(ids, v.ID)
		}
		assert.Equal(t, []uint64{10, 20, 30, 40}, ids)

		vs, err = ds.GetVertices(ctx, graph.VertexRange(uint64(10), 2))
		require.NoError(t, err)
		require.Len(t, vs, 2)
		assert.Equal(t, uint64(20), vs[0].ID)
		assert.Equal(t, uint64(30), vs[1].ID)

		// Empty result is not an error.
		vs, err = ds.GetVertices(ctx, graph.VerticesByID(uint64(999)))
		require.NoError(t, err)
		assert.Empty(t, vs)
	})

	t.Run("EdgeUpsert", func(t *testing.T) {
		ds := open(t)
		likes := mustType(t, "likes")
		t1 := time.Date(2024, 6, 1, 12, 0, 0, 123456789, time.UTC)
		t2 := t1.Add(time.Hour)

		created, err := ds.CreateEdge(ctx, graph.NewEdge(uint64(1), likes, uint64(2), mustWeight(t, 0.25), t1))
		require.NoError(t, err)
		assert.True(t, created)

		created, err = ds.CreateEdge(ctx, graph.NewEdge(uint64(1), likes, uint64(2), mustWeight(t, 0.75), t2))
		require.NoError(t, err)
		assert.False(t, created)

		es, err := ds.GetEdges(ctx, graph.EdgesByOutbound(uint64(1)))
		require.NoError(t, err)
		require.Len(t, es, 1)
		assert.Equal(t, mustWeight(t, 0.75), es[0].Weight)
		assert.True(t, es[0].UpdatedAt.Equal(t2), "upsert must take the second timestamp")
	})

	t.Run("EdgeQueries", func(t *testing.T) {
		ds := open(t)
		likes := mustType(t, "likes")
		follows := mustType(t, "follows")
		at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

		edges := []graph.Edge[uint64]{
			graph.NewEdge(uint64(1), likes, uint64(2), mustWeight(t, 0.8), at),
			graph.NewEdge(uint64(1), follows, uint64(2), mustWeight(t, 0.1), at),
			graph.NewEdge(uint64(2), likes, uint64(3), mustWeight(t, -0.5), at),
			graph.NewEdge(uint64(3), likes, uint64(2), mustWeight(t, 1.0), at),
		}
		for _, e := range edges {
			_, err := ds.CreateEdge(ctx, e)
			require.NoError(t, err)
		}

		es, err := ds.GetEdges(ctx, graph.EdgesByOutbound(uint64(1)))
		require.NoError(t, err)
		assert.Len(t, es, 2)

		es, err = ds.GetEdges(ctx, graph.EdgesByInbound(uint64(2)))
		require.NoError(t, err)
		assert.Len(t, es, 3)

		likesQ := graph.AllEdges[uint64]()
		likesQ.Type = &likes
		es, err = ds.GetEdges(ctx, likesQ)
		require.NoError(t, err)
		assert.Len(t, es, 3)

		min := mustWeight(t, 0.0)
		weightQ := graph.AllEdges[uint64]()
		weightQ.MinWeight = &min
		es, err = ds.GetEdges(ctx, weightQ)
		require.NoError(t, err)
		assert.Len(t, es, 3)

		es, err = ds.GetEdges(ctx, graph.EdgeByIdentity(uint64(1), likes, uint64(2)))
		require.NoError(t, err)
		require.Len(t, es, 1)
		assert.Equal(t, mustWeight(t, 0.8), es[0].Weight)

		// Distinct types between the same vertices are distinct edges.
		es, err = ds.GetEdges(ctx, graph.AllEdges[uint64]())
		require.NoError(t, err)
		assert.Len(t, es, 4)
	})

	t.Run("DeleteVerticesCascades", func(t *testing.T) {
		ds := open(t)
		user := mustType(t, "user")
		likes := mustType(t, "likes")

		for id := uint64(1); id <= 3; id++ {
			_, err := ds.CreateVertex(ctx, graph.NewVertex(id, user))
			require.NoError(t, err)
		}
		_, err := ds.CreateEdge(ctx, graph.NewEdgeNow(uint64(1), likes, uint64(2), mustWeight(t, 0.8)))
		require.NoError(t, err)
		_, err = ds.CreateEdge(ctx, graph.NewEdgeNow(uint64(3), likes, uint64(1), mustWeight(t, 0.2)))
		require.NoError(t, err)
		_, err = ds.CreateEdge(ctx, graph.NewEdgeNow(uint64(2), likes, uint64(3), mustWeight(t, 0.5)))
		require.NoError(t, err)

		require.NoError(t, ds.DeleteVertices(ctx, graph.VerticesByID(uint64(1))))

		vs, err := ds.GetVertices(ctx, graph.VerticesByID(uint64(1)))
		require.NoError(t, err)
		assert.Empty(t, vs)

		es, err := ds.GetEdges(ctx, graph.EdgesByOutbound(uint64(1)))
		require.NoError(t, err)
		assert.Empty(t, es)
		es, err = ds.GetEdges(ctx, graph.EdgesByInbound(uint64(1)))
		require.NoError(t, err)
		assert.Empty(t, es)

		// The untouched edge survives.
		es, err = ds.GetEdges(ctx, graph.AllEdges[uint64]())
		require.NoError(t, err)
		require.Len(t, es, 1)
		assert.Equal(t, uint64(2), es[0].Outbound)
	})

	t.Run("DeleteEdges", func(t *testing.T) {
		ds := open(t)
		likes := mustType(t, "likes")
		_, err := ds.CreateEdge(ctx, graph.NewEdgeNow(uint64(1), likes, uint64(2), mustWeight(t, 0.8)))
		require.NoError(t, err)
		_, err = ds.CreateEdge(ctx, graph.NewEdgeNow(uint64(2), likes, uint64(1), mustWeight(t, 0.8)))
		require.NoError(t, err)

		require.NoError(t, ds.DeleteEdges(ctx, graph.EdgesByOutbound(uint64(1))))

		es, err := ds.GetEdges(ctx, graph.AllEdges[uint64]())
		require.NoError(t, err)
		require.Len(t, es, 1)
		assert.Equal(t, uint64(2), es[0].Outbound)
	})

	t.Run("Scenario", func(t *testing.T) {
		// create 1, create 2, like, query, delete 1, verify empty.
		ds := open(t)
		user := mustType(t, "user")
		likes := mustType(t, "likes")

		created, err := ds.CreateVertex(ctx, graph.NewVertex(uint64(1), user))
		require.NoError(t, err)
		assert.True(t, created)
		created, err = ds.CreateVertex(ctx, graph.NewVertex(uint64(2), user))
		require.NoError(t, err)
		assert.True(t, created)

		_, err = ds.CreateEdge(ctx, graph.NewEdgeNow(uint64(1), likes, uint64(2), mustWeight(t, 0.8)))
		require.NoError(t, err)

		es, err := ds.GetEdges(ctx, graph.EdgesByOutbound(uint64(1)))
		require.NoError(t, err)
		require.Len(t, es, 1)
		assert.Equal(t, mustWeight(t, 0.8), es[0].Weight)

		require.NoError(t, ds.DeleteVertices(ctx, graph.VerticesByID(uint64(1))))

		es, err = ds.GetEdges(ctx, graph.EdgesByOutbound(uint64(1)))
		require.NoError(t, err)
		assert.Empty(t, es)
		vs, err := ds.GetVertices(ctx, graph.VerticesByID(uint64(1)))
		require.NoError(t, err)
		assert.Empty(t, vs)
	})

	t.Run("TransactionCommit", func(t *testing.T) {
		ds := open(t)
		user := mustType(t, "user")
		likes := mustType(t, "likes")

		results, err := ds.Transaction(ctx, []graph.Op[uint64]{
			graph.CreateVertexOp(graph.NewVertex(uint64(1), user)),
			graph.CreateVertexOp(graph.NewVertex(uint64(2), user)),
			graph.CreateEdgeOp(graph.NewEdgeNow(uint64(1), likes, uint64(2), mustWeight(t, 0.8))),
			graph.GetVerticesOp(graph.AllVertices[uint64]()),
		})
		require.NoError(t, err)
		require.Len(t, results, 4)
		require.NotNil(t, results[0].Created)
		assert.True(t, *results[0].Created)
		require.NotNil(t, results[2].Created)
		assert.True(t, *results[2].Created)
		assert.Len(t, results[3].Vertices, 2)
	})

	t.Run("TransactionAborts", func(t *testing.T) {
		ds := open(t)
		user := mustType(t, "user")
		likes := mustType(t, "likes")

		_, err := ds.CreateVertex(ctx, graph.NewVertex(uint64(7), user))
		require.NoError(t, err)

		// The third op collides; nothing from the sequence may stick.
		_, err = ds.Transaction(ctx, []graph.Op[uint64]{
			graph.CreateVertexOp(graph.NewVertex(uint64(8), user)),
			graph.CreateEdgeOp(graph.NewEdgeNow(uint64(7), likes, uint64(8), mustWeight(t, 0.5))),
			graph.CreateVertexOp(graph.NewVertex(uint64(7), user)),
		})
		require.Error(t, err)
		assert.True(t, graph.IsIdTaken(err))

		vs, err := ds.GetVertices(ctx, graph.AllVertices[uint64]())
		require.NoError(t, err)
		require.Len(t, vs, 1)
		assert.Equal(t, uint64(7), vs[0].ID)

		es, err := ds.GetEdges(ctx, graph.AllEdges[uint64]())
		require.NoError(t, err)
		assert.Empty(t, es)
	})

	t.Run("TimestampPrecision", func(t *testing.T) {
		ds := open(t)
		likes := mustType(t, "likes")
		at := time.Date(2024, 6, 1, 12, 34, 56, 987654321, time.UTC)

		_, err := ds.CreateEdge(ctx, graph.NewEdge(uint64(1), likes, uint64(2), mustWeight(t, 0.5), at))
		require.NoError(t, err)

		es, err := ds.GetEdges(ctx, graph.EdgesByOutbound(uint64(1)))
		require.NoError(t, err)
		require.Len(t, es, 1)
		assert.True(t, es[0].UpdatedAt.Equal(at), "timestamp must round-trip at full precision, got %v", es[0].UpdatedAt)
	})
}
