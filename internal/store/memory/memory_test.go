package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidstore/braid/internal/store/memory"
	"github.com/braidstore/braid/internal/store/storetest"
	"github.com/braidstore/braid/pkg/graph"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) graph.Datastore[uint64] {
		return memory.New[uint64]()
	})
}

func TestOwnedCopies(t *testing.T) {
	ctx := context.Background()
	ds := memory.New[uint64]()
	user, err := graph.NewType("user")
	require.NoError(t, err)

	_, err = ds.CreateVertex(ctx, graph.NewVertex(uint64(1), user))
	require.NoError(t, err)

	vs, err := ds.GetVertices(ctx, graph.VerticesByID(uint64(1)))
	require.NoError(t, err)
	require.Len(t, vs, 1)

	// Mutating a returned copy must not leak into stored state.
	vs[0].Type = graph.Type("tampered")

	vs, err = ds.GetVertices(ctx, graph.VerticesByID(uint64(1)))
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, user, vs[0].Type)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	ds := memory.New[uint64]()
	user, err := graph.NewType("user")
	require.NoError(t, err)
	likes, err := graph.NewType("likes")
	require.NoError(t, err)

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := uint64(w*perWriter + i)
				if _, err := ds.CreateVertex(ctx, graph.NewVertex(id, user)); err != nil {
					t.Errorf("create vertex %d: %v", id, err)
					return
				}
				weight, _ := graph.NewWeight(0.5)
				if _, err := ds.CreateEdge(ctx, graph.NewEdgeNow(id, likes, id+1, weight)); err != nil {
					t.Errorf("create edge %d: %v", id, err)
					return
				}
				if _, err := ds.GetVertices(ctx, graph.AllVertices[uint64]()); err != nil {
					t.Errorf("get vertices: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	vs, err := ds.GetVertices(ctx, graph.AllVertices[uint64]())
	require.NoError(t, err)
	assert.Len(t, vs, writers*perWriter)
}

func TestCanceledContext(t *testing.T) {
	ds := memory.New[uint64]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ds.GetVertices(ctx, graph.AllVertices[uint64]())
	require.Error(t, err)
	kind, ok := graph.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, graph.ErrorStorage, kind)
}
