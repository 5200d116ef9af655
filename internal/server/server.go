// Package server exposes a local datastore over a TCP byte stream so a
// remote client can satisfy the same contract. A fixed-size worker pool
// services connections: each worker owns one connection's full
// read-dispatch-write cycle at a time, leaning on the backend's own locking
// rather than adding any server-level serialization.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/braidstore/braid/internal/wire"
	"github.com/braidstore/braid/pkg/graph"
)

// Config carries the startup parameters, fixed for the server's lifetime.
type Config struct {
	// Addr is the host:port the server binds exactly.
	Addr string `json:"addr"`
	// Workers is the connection worker pool size.
	Workers int `json:"workers"`
}

// Stats is a point-in-time snapshot of server counters.
type Stats struct {
	ConnsTotal  uint64 `json:"conns_total"`
	ConnsActive uint64 `json:"conns_active"`
	Ops         uint64 `json:"ops"`
	OpErrors    uint64 `json:"op_errors"`
}

// Server accepts connections and dispatches decoded requests against one
// shared backend instance.
type Server[I graph.Id] struct {
	cfg Config
	ds  graph.Datastore[I]
	log *log.Logger

	ln    net.Listener
	conns chan net.Conn
	wg    sync.WaitGroup
	done  chan struct{}

	mu     sync.Mutex
	active map[net.Conn]struct{}

	connsTotal  atomic.Uint64
	connsActive atomic.Uint64
	ops         atomic.Uint64
	opErrors    atomic.Uint64
}

// New validates the configuration and builds a server around a backend.
func New[I graph.Id](cfg Config, ds graph.Datastore[I], logger *log.Logger) (*Server[I], error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("worker pool size must be positive, got %d", cfg.Workers)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server[I]{
		cfg:    cfg,
		ds:     ds,
		log:    logger,
		conns:  make(chan net.Conn),
		done:   make(chan struct{}),
		active: make(map[net.Conn]struct{}),
	}, nil
}

// Start binds the configured address, spins up the worker pool and begins
// accepting connections in the background.
func (s *Server[I]) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	s.log.Info("listening", "addr", ln.Addr().String(), "workers", s.cfg.Workers)

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound address, useful when Config.Addr carried port 0.
func (s *Server[I]) Addr() net.Addr {
	return s.ln.Addr()
}

// Stats snapshots the server counters.
func (s *Server[I]) Stats() Stats {
	return Stats{
		ConnsTotal:  s.connsTotal.Load(),
		ConnsActive: s.connsActive.Load(),
		Ops:         s.ops.Load(),
		OpErrors:    s.opErrors.Load(),
	}
}

// Close stops accepting, severs open connections and drains the workers. The
// backend is left to its owner.
func (s *Server[I]) Close() error {
	close(s.done)
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.mu.Lock()
	for conn := range s.active {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server[I]) track(conn net.Conn) {
	s.mu.Lock()
	s.active[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server[I]) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.active, conn)
	s.mu.Unlock()
}

func (s *Server[I]) acceptLoop() {
	defer s.wg.Done()
	defer close(s.conns)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("accept failed", "err", err)
			return
		}
		select {
		case s.conns <- conn:
		case <-s.done:
			conn.Close()
			return
		}
	}
}

func (s *Server[I]) worker(id int) {
	defer s.wg.Done()
	s.log.Debug("worker started", "worker", id)
	for conn := range s.conns {
		s.connsTotal.Add(1)
		s.connsActive.Add(1)
		s.track(conn)
		s.serveConn(conn)
		s.untrack(conn)
		s.connsActive.Add(^uint64(0))
	}
}

// serveConn runs one connection's state machine: read a request, dispatch it,
// write the response, loop until the peer closes or a protocol error occurs.
// A malformed request gets a serialization-kind response and ends only this
// connection.
func (s *Server[I]) serveConn(conn net.Conn) {
	defer conn.Close()
	wc := wire.NewConn[I](conn)
	peer := conn.RemoteAddr().String()
	s.log.Debug("connection accepted", "peer", peer)

	for {
		req, err := wc.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				s.log.Debug("connection closed", "peer", peer)
				return
			}
			resp := wire.ErrResponse[I](graph.SerializationError(err))
			if werr := wc.WriteResponse(&resp); werr != nil {
				s.log.Debug("write failed", "peer", peer, "err", werr)
			}
			s.log.Warn("malformed request", "peer", peer, "err", err)
			return
		}

		resp := s.dispatch(context.Background(), req)
		s.ops.Add(1)
		if resp.Error != nil {
			s.opErrors.Add(1)
		}
		if err := wc.WriteResponse(&resp); err != nil {
			s.log.Debug("write failed", "peer", peer, "err", err)
			return
		}
	}
}

// dispatch invokes the contract operation the request tags and folds the
// outcome into a response. Errors are reported on the connection, never fatal
// to the worker.
func (s *Server[I]) dispatch(ctx context.Context, req *wire.Request[I]) wire.Response[I] {
	switch req.Code {
	case wire.OpPing:
		return wire.Response[I]{}
	case wire.OpTransaction:
		results, err := s.ds.Transaction(ctx, req.Ops)
		if err != nil {
			return wire.ErrResponse[I](err)
		}
		return wire.Response[I]{Results: results}
	case graph.OpCreateVertex:
		if req.Vertex == nil {
			return wire.ErrResponse[I](graph.SerializationError(graph.ErrMissingPayload))
		}
		created, err := s.ds.CreateVertex(ctx, *req.Vertex)
		if err != nil {
			return wire.ErrResponse[I](err)
		}
		return wire.OkResponse(graph.CreatedResult[I](created))
	case graph.OpUpdateVertex:
		if req.Vertex == nil {
			return wire.ErrResponse[I](graph.SerializationError(graph.ErrMissingPayload))
		}
		updated, err := s.ds.UpdateVertex(ctx, *req.Vertex)
		if err != nil {
			return wire.ErrResponse[I](err)
		}
		return wire.OkResponse(graph.CreatedResult[I](updated))
	case graph.OpGetVertices:
		if req.VertexQuery == nil {
			return wire.ErrResponse[I](graph.SerializationError(graph.ErrMissingPayload))
		}
		vs, err := s.ds.GetVertices(ctx, *req.VertexQuery)
		if err != nil {
			return wire.ErrResponse[I](err)
		}
		return wire.OkResponse(graph.VerticesResult(vs))
	case graph.OpDeleteVertices:
		if req.VertexQuery == nil {
			return wire.ErrResponse[I](graph.SerializationError(graph.ErrMissingPayload))
		}
		if err := s.ds.DeleteVertices(ctx, *req.VertexQuery); err != nil {
			return wire.ErrResponse[I](err)
		}
		return wire.Response[I]{}
	case graph.OpCreateEdge:
		if req.Edge == nil {
			return wire.ErrResponse[I](graph.SerializationError(graph.ErrMissingPayload))
		}
		created, err := s.ds.CreateEdge(ctx, *req.Edge)
		if err != nil {
			return wire.ErrResponse[I](err)
		}
		return wire.OkResponse(graph.CreatedResult[I](created))
	case graph.OpGetEdges:
		if req.EdgeQuery == nil {
			return wire.ErrResponse[I](graph.SerializationError(graph.ErrMissingPayload))
		}
		es, err := s.ds.GetEdges(ctx, *req.EdgeQuery)
		if err != nil {
			return wire.ErrResponse[I](err)
		}
		return wire.OkResponse(graph.EdgesResult(es))
	case graph.OpDeleteEdges:
		if req.EdgeQuery == nil {
			return wire.ErrResponse[I](graph.SerializationError(graph.ErrMissingPayload))
		}
		if err := s.ds.DeleteEdges(ctx, *req.EdgeQuery); err != nil {
			return wire.ErrResponse[I](err)
		}
		return wire.Response[I]{}
	}
	return wire.ErrResponse[I](graph.SerializationError(graph.UnknownOp(req.Code)))
}
