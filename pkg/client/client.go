// Package client implements the datastore contract against a remote braid
// server. Every call is one blocking request/response round-trip over a
// reusable connection, decoded into the same result and error kinds a local
// backend would produce, so a caller cannot tell where the data lives.
//
// A Client introduces no concurrency of its own and is not safe for
// unsynchronized concurrent use; share one per caller or synchronize
// externally. It never retries: transport failures surface as operational
// errors and retry policy belongs to the caller.
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/braidstore/braid/internal/wire"
	"github.com/braidstore/braid/pkg/graph"
)

// Client is a remote datastore proxy.
type Client[I graph.Id] struct {
	addr string
	conn *wire.Conn[I]
	raw  net.Conn
}

// New builds a client that dials addr lazily on first use.
func New[I graph.Id](addr string) *Client[I] {
	return &Client[I]{addr: addr}
}

// Dial builds a client with an eager connection, verified with a ping.
func Dial[I graph.Id](ctx context.Context, addr string) (*Client[I], error) {
	c := New[I](addr)
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

var _ graph.Datastore[uint64] = (*Client[uint64])(nil)

func (c *Client[I]) ensureConn(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return graph.StorageError(fmt.Errorf("dialing %s: %w", c.addr, err))
	}
	c.raw = raw
	c.conn = wire.NewConn[I](raw)
	return nil
}

// dropConn discards a connection after a transport failure so the next call
// redials instead of reading a desynchronized stream.
func (c *Client[I]) dropConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.raw = nil
	}
}

func (c *Client[I]) roundTrip(ctx context.Context, req wire.Request[I]) (*wire.Response[I], error) {
	if err := c.ensureConn(ctx); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.raw.SetDeadline(deadline); err != nil {
			c.dropConn()
			return nil, graph.StorageError(err)
		}
		defer c.raw.SetDeadline(time.Time{})
	}

	if err := c.conn.WriteRequest(&req); err != nil {
		c.dropConn()
		return nil, graph.StorageError(fmt.Errorf("sending request: %w", err))
	}
	resp, err := c.conn.ReadResponse()
	if err != nil {
		c.dropConn()
		return nil, graph.SerializationError(fmt.Errorf("reading response: %w", err))
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp, nil
}

// Ping verifies the server is reachable and speaking the protocol.
func (c *Client[I]) Ping(ctx context.Context) error {
	_, err := c.roundTrip(ctx, wire.Request[I]{Op: graph.Op[I]{Code: wire.OpPing}})
	return err
}

// CreateVertex implements graph.Datastore.
func (c *Client[I]) CreateVertex(ctx context.Context, v graph.Vertex[I]) (bool, error) {
	resp, err := c.roundTrip(ctx, wire.Request[I]{Op: graph.CreateVertexOp(v)})
	if err != nil {
		return false, err
	}
	return resp.Created != nil && *resp.Created, nil
}

// UpdateVertex implements graph.Datastore.
func (c *Client[I]) UpdateVertex(ctx context.Context, v graph.Vertex[I]) (bool, error) {
	resp, err := c.roundTrip(ctx, wire.Request[I]{Op: graph.UpdateVertexOp(v)})
	if err != nil {
		return false, err
	}
	return resp.Created != nil && *resp.Created, nil
}

// GetVertices implements graph.Datastore.
func (c *Client[I]) GetVertices(ctx context.Context, q graph.VertexQuery[I]) ([]graph.Vertex[I], error) {
	resp, err := c.roundTrip(ctx, wire.Request[I]{Op: graph.GetVerticesOp(q)})
	if err != nil {
		return nil, err
	}
	if resp.Vertices == nil {
		return []graph.Vertex[I]{}, nil
	}
	return resp.Vertices, nil
}

// DeleteVertices implements graph.Datastore.
func (c *Client[I]) DeleteVertices(ctx context.Context, q graph.VertexQuery[I]) error {
	_, err := c.roundTrip(ctx, wire.Request[I]{Op: graph.DeleteVerticesOp(q)})
	return err
}

// CreateEdge implements graph.Datastore.
func (c *Client[I]) CreateEdge(ctx context.Context, e graph.Edge[I]) (bool, error) {
	resp, err := c.roundTrip(ctx, wire.Request[I]{Op: graph.CreateEdgeOp(e)})
	if err != nil {
		return false, err
	}
	return resp.Created != nil && *resp.Created, nil
}

// GetEdges implements graph.Datastore.
func (c *Client[I]) GetEdges(ctx context.Context, q graph.EdgeQuery[I]) ([]graph.Edge[I], error) {
	resp, err := c.roundTrip(ctx, wire.Request[I]{Op: graph.GetEdgesOp(q)})
	if err != nil {
		return nil, err
	}
	if resp.Edges == nil {
		return []graph.Edge[I]{}, nil
	}
	return resp.Edges, nil
}

// DeleteEdges implements graph.Datastore.
func (c *Client[I]) DeleteEdges(ctx context.Context, q graph.EdgeQuery[I]) error {
	_, err := c.roundTrip(ctx, wire.Request[I]{Op: graph.DeleteEdgesOp(q)})
	return err
}

// Transaction ships the whole sequence in one request; atomicity is whatever
// the server-side backend provides.
func (c *Client[I]) Transaction(ctx context.Context, ops []graph.Op[I]) ([]graph.OpResult[I], error) {
	resp, err := c.roundTrip(ctx, wire.Request[I]{
		Op:  graph.Op[I]{Code: wire.OpTransaction},
		Ops: ops,
	})
	if err != nil {
		return nil, err
	}
	if resp.Results == nil {
		return []graph.OpResult[I]{}, nil
	}
	return resp.Results, nil
}

// Close closes the connection if one is open.
func (c *Client[I]) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.raw = nil
	if err != nil {
		return graph.StorageError(err)
	}
	return nil
}
