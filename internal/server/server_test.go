package server_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidstore/braid/internal/server"
	"github.com/braidstore/braid/internal/store/memory"
	"github.com/braidstore/braid/internal/store/storetest"
	"github.com/braidstore/braid/pkg/client"
	"github.com/braidstore/braid/pkg/graph"
)

func startServer(t *testing.T, workers int) *server.Server[uint64] {
	t.Helper()
	srv, err := server.New(server.Config{Addr: "127.0.0.1:0", Workers: workers},
		memory.New[uint64](), log.New(io.Discard))
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestRemoteConformance(t *testing.T) {
	// The whole contract, exercised through the client/server round-trip.
	storetest.Run(t, func(t *testing.T) graph.Datastore[uint64] {
		srv := startServer(t, 4)
		c := client.New[uint64](srv.Addr().String())
		t.Cleanup(func() { c.Close() })
		return c
	})
}

func TestWorkerPoolSizeValidation(t *testing.T) {
	_, err := server.New(server.Config{Addr: "127.0.0.1:0", Workers: 0},
		memory.New[uint64](), log.New(io.Discard))
	require.Error(t, err)
	_, err = server.New(server.Config{Addr: "127.0.0.1:0", Workers: -3},
		memory.New[uint64](), log.New(io.Discard))
	require.Error(t, err)
}

func TestMalformedRequestTerminatesOnlyThatConnection(t *testing.T) {
	srv := startServer(t, 2)
	addr := srv.Addr().String()

	// A healthy connection established first keeps working afterwards.
	healthy := client.New[uint64](addr)
	defer healthy.Close()
	require.NoError(t, healthy.Ping(context.Background()))

	raw, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer raw.Close()

	_, err = fmt.Fprintln(raw, "{this is not json")
	require.NoError(t, err)

	// The worker answers with a serialization error, then closes.
	raw.SetReadDeadline(time.Now().Add(5 * time.Second))
	rd := bufio.NewReader(raw)
	line, err := rd.ReadBytes('\n')
	require.NoError(t, err)
	var resp struct {
		Error *struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(line, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "serialization", resp.Error.Kind)

	_, err = rd.ReadByte()
	require.Error(t, err, "connection should be closed after a protocol error")

	// Other connections are unaffected.
	require.NoError(t, healthy.Ping(context.Background()))
}

func TestConcurrentConnections(t *testing.T) {
	srv := startServer(t, 4)
	addr := srv.Addr().String()
	ctx := context.Background()

	user, err := graph.NewType("user")
	require.NoError(t, err)

	const clients = 8
	const perClient = 25

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := client.New[uint64](addr)
			defer c.Close()
			for j := 0; j < perClient; j++ {
				id := uint64(i*perClient + j)
				if _, err := c.CreateVertex(ctx, graph.NewVertex(id, user)); err != nil {
					t.Errorf("create vertex %d: %v", id, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	c := client.New[uint64](addr)
	defer c.Close()
	vs, err := c.GetVertices(ctx, graph.AllVertices[uint64]())
	require.NoError(t, err)
	assert.Len(t, vs, clients*perClient)

	stats := srv.Stats()
	assert.GreaterOrEqual(t, stats.ConnsTotal, uint64(clients))
	assert.GreaterOrEqual(t, stats.Ops, uint64(clients*perClient))
}

func TestStatsCountErrors(t *testing.T) {
	srv := startServer(t, 1)
	c := client.New[uint64](srv.Addr().String())
	defer c.Close()
	ctx := context.Background()

	user, err := graph.NewType("user")
	require.NoError(t, err)

	_, err = c.CreateVertex(ctx, graph.NewVertex(uint64(1), user))
	require.NoError(t, err)
	_, err = c.CreateVertex(ctx, graph.NewVertex(uint64(1), user))
	require.Error(t, err)

	stats := srv.Stats()
	assert.Equal(t, uint64(2), stats.Ops)
	assert.Equal(t, uint64(1), stats.OpErrors)
}
