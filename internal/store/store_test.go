package store_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidstore/braid/internal/server"
	"github.com/braidstore/braid/internal/store"
	"github.com/braidstore/braid/internal/store/badgerstore"
	"github.com/braidstore/braid/internal/store/memory"
	"github.com/braidstore/braid/pkg/client"
	"github.com/braidstore/braid/pkg/graph"
)

func TestOpenMemory(t *testing.T) {
	ds, err := store.Open[uint64]("memory://")
	require.NoError(t, err)
	defer ds.Close()
	assert.IsType(t, &memory.Store[uint64]{}, ds)
}

func TestOpenBadger(t *testing.T) {
	dir := t.TempDir()
	ds, err := store.Open[uint64]("badger://" + dir)
	require.NoError(t, err)
	defer ds.Close()
	assert.IsType(t, &badgerstore.Store[uint64]{}, ds)
}

func TestOpenTCP(t *testing.T) {
	// The client dials lazily, so opening needs no live server.
	ds, err := store.Open[uint64]("tcp://127.0.0.1:9797")
	require.NoError(t, err)
	defer ds.Close()
	assert.IsType(t, &client.Client[uint64]{}, ds)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"unknown scheme": "etcd://127.0.0.1:2379",
		"missing path":   "badger://",
		"missing host":   "tcp://",
		"no scheme":      "just-a-word",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := store.Open[uint64](raw)
			assert.Error(t, err)
		})
	}
}

// script runs one fixed operation sequence and collects every observable
// output, so backends can be compared outcome for outcome.
func script(t *testing.T, ds graph.Datastore[uint64]) []any {
	t.Helper()
	ctx := context.Background()
	user, err := graph.NewType("user")
	require.NoError(t, err)
	follows, err := graph.NewType("follows")
	require.NoError(t, err)

	var out []any
	record := func(v any, err error) {
		if err != nil {
			kind, ok := graph.KindOf(err)
			require.True(t, ok, "non-operational error escaped: %v", err)
			out = append(out, kind)
			return
		}
		out = append(out, v)
	}

	stamp := time.Date(2024, 5, 1, 12, 0, 0, 42, time.UTC)

	created, err := ds.CreateVertex(ctx, graph.NewVertex(uint64(1), user))
	record(created, err)
	created, err = ds.CreateVertex(ctx, graph.NewVertex(uint64(2), user))
	record(created, err)
	created, err = ds.CreateVertex(ctx, graph.NewVertex(uint64(1), user))
	record(created, err) // collision

	created, err = ds.CreateEdge(ctx, graph.NewEdge(uint64(1), follows, uint64(2), 0.5, stamp))
	record(created, err)
	created, err = ds.CreateEdge(ctx, graph.NewEdge(uint64(1), follows, uint64(2), -0.25, stamp.Add(time.Hour)))
	record(created, err) // upsert

	vs, err := ds.GetVertices(ctx, graph.AllVertices[uint64]())
	record(vs, err)
	es, err := ds.GetEdges(ctx, graph.EdgesByOutbound(uint64(1)))
	record(es, err)

	err = ds.DeleteVertices(ctx, graph.VerticesByID(uint64(2)))
	record(nil, err)
	es, err = ds.GetEdges(ctx, graph.AllEdges[uint64]())
	record(es, err) // cascade removed the edge

	return out
}

// TestBackendEquivalence runs the same script against the in-memory backend,
// the badger backend and a remote client proxying to a third, and requires
// identical observable outcomes from all three.
func TestBackendEquivalence(t *testing.T) {
	mem, err := store.Open[uint64]("memory://")
	require.NoError(t, err)
	defer mem.Close()

	bdg, err := store.Open[uint64]("badger://" + t.TempDir())
	require.NoError(t, err)
	defer bdg.Close()

	srv, err := server.New(server.Config{Addr: "127.0.0.1:0", Workers: 2},
		memory.New[uint64](), log.New(io.Discard))
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Close()
	remote, err := store.Open[uint64]("tcp://" + srv.Addr().String())
	require.NoError(t, err)
	defer remote.Close()

	want := script(t, mem)
	assert.Equal(t, want, script(t, bdg), "badger diverged from memory")
	assert.Equal(t, want, script(t, remote), "remote diverged from memory")
}
