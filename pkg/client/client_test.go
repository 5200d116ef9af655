package client_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidstore/braid/internal/server"
	"github.com/braidstore/braid/internal/store/memory"
	"github.com/braidstore/braid/pkg/client"
	"github.com/braidstore/braid/pkg/graph"
)

func startServer(t *testing.T) *server.Server[uint64] {
	t.Helper()
	srv, err := server.New(server.Config{Addr: "127.0.0.1:0", Workers: 2},
		memory.New[uint64](), log.New(io.Discard))
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestEagerDial(t *testing.T) {
	srv := startServer(t)
	c, err := client.Dial[uint64](context.Background(), srv.Addr().String())
	require.NoError(t, err)
	defer c.Close()
}

func TestEagerDialFailure(t *testing.T) {
	// A port nothing listens on: the dial error surfaces as a storage-kind
	// operational failure, never a panic or a retry loop.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := client.Dial[uint64](ctx, "127.0.0.1:1")
	require.Error(t, err)
	kind, ok := graph.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, graph.ErrorStorage, kind)
}

func TestLazyDial(t *testing.T) {
	srv := startServer(t)
	c := client.New[uint64](srv.Addr().String())
	defer c.Close()

	// No connection exists yet; the first call establishes it.
	user, err := graph.NewType("user")
	require.NoError(t, err)
	created, err := c.CreateVertex(context.Background(), graph.NewVertex(uint64(1), user))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestConnectionReusedAcrossCalls(t *testing.T) {
	srv := startServer(t)
	c := client.New[uint64](srv.Addr().String())
	defer c.Close()
	ctx := context.Background()

	user, err := graph.NewType("user")
	require.NoError(t, err)
	for id := uint64(1); id <= 20; id++ {
		_, err := c.CreateVertex(ctx, graph.NewVertex(id, user))
		require.NoError(t, err)
	}

	assert.Equal(t, uint64(1), srv.Stats().ConnsTotal, "calls should share one connection")
}

func TestRemoteErrorsAreBackendAgnostic(t *testing.T) {
	srv := startServer(t)
	c := client.New[uint64](srv.Addr().String())
	defer c.Close()
	ctx := context.Background()

	user, err := graph.NewType("user")
	require.NoError(t, err)
	_, err = c.CreateVertex(ctx, graph.NewVertex(uint64(5), user))
	require.NoError(t, err)

	// The collision raised on the server decodes into the same kind a local
	// backend would have returned.
	_, err = c.CreateVertex(ctx, graph.NewVertex(uint64(5), user))
	require.Error(t, err)
	assert.True(t, graph.IsIdTaken(err))
}

func TestReconnectAfterServerRestart(t *testing.T) {
	srv := startServer(t)
	addr := srv.Addr().String()
	c := client.New[uint64](addr)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, srv.Close())

	// The broken connection surfaces as an operational error...
	require.Error(t, c.Ping(ctx))

	// ...and a fresh server at the same address is reachable again because
	// the client dropped the dead connection. State is gone: the backend was
	// ephemeral, which is the documented memory:// behavior.
	srv2, err := server.New(server.Config{Addr: addr, Workers: 2},
		memory.New[uint64](), log.New(io.Discard))
	require.NoError(t, err)
	require.NoError(t, srv2.Start())
	defer srv2.Close()

	require.NoError(t, c.Ping(ctx))
}
