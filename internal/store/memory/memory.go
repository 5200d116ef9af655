// Package memory implements the Datastore contract against process memory.
// Nothing survives a restart; it exists for tests and ephemeral workloads.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/braidstore/braid/pkg/graph"
)

type edgeKey[I graph.Id] struct {
	out I
	t   graph.Type
	in  I
}

type edgeState struct {
	weight    graph.Weight
	updatedAt time.Time
}

// Store holds all vertices and edges in memory, indexed by id, by type and by
// touching vertex. Concurrent readers proceed together; any mutation excludes
// all other access for its duration, and a transaction holds the write lock
// for its whole sequence so other callers observe it atomically.
type Store[I graph.Id] struct {
	mu       sync.RWMutex
	vertices map[I]graph.Type
	byType   map[graph.Type]map[I]struct{}
	edges    map[edgeKey[I]]edgeState
	byVertex map[I]map[edgeKey[I]]struct{}
}

// New creates an empty in-memory store.
func New[I graph.Id]() *Store[I] {
	return &Store[I]{
		vertices: make(map[I]graph.Type),
		byType:   make(map[graph.Type]map[I]struct{}),
		edges:    make(map[edgeKey[I]]edgeState),
		byVertex: make(map[I]map[edgeKey[I]]struct{}),
	}
}

var _ graph.Datastore[uint64] = (*Store[uint64])(nil)

// CreateVertex inserts a vertex, failing with the id-taken kind when the
// identifier is already bound.
func (s *Store[I]) CreateVertex(ctx context.Context, v graph.Vertex[I]) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, graph.StorageError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	created, _, err := s.createVertexLocked(v)
	return created, err
}

// createVertexLocked assumes the write lock and returns an undo step.
func (s *Store[I]) createVertexLocked(v graph.Vertex[I]) (bool, func(), error) {
	if _, exists := s.vertices[v.ID]; exists {
		return false, nil, graph.IdTakenError()
	}
	s.vertices[v.ID] = v.Type
	s.indexType(v.Type, v.ID)
	undo := func() {
		delete(s.vertices, v.ID)
		s.unindexType(v.Type, v.ID)
	}
	return true, undo, nil
}

// UpdateVertex rewrites the type of an existing vertex; a missing id is
// reported as false, not as a failure.
func (s *Store[I]) UpdateVertex(ctx context.Context, v graph.Vertex[I]) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, graph.StorageError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	updated, _, err := s.updateVertexLocked(v)
	return updated, err
}

func (s *Store[I]) updateVertexLocked(v graph.Vertex[I]) (bool, func(), error) {
	prev, exists := s.vertices[v.ID]
	if !exists {
		return false, func() {}, nil
	}
	s.vertices[v.ID] = v.Type
	s.unindexType(prev, v.ID)
	s.indexType(v.Type, v.ID)
	undo := func() {
		s.vertices[v.ID] = prev
		s.unindexType(v.Type, v.ID)
		s.indexType(prev, v.ID)
	}
	return true, undo, nil
}

// GetVertices returns owned copies of matching vertices in id order.
func (s *Store[I]) GetVertices(ctx context.Context, q graph.VertexQuery[I]) ([]graph.Vertex[I], error) {
	if err := ctx.Err(); err != nil {
		return nil, graph.StorageError(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getVerticesLocked(q), nil
}

func (s *Store[I]) getVerticesLocked(q graph.VertexQuery[I]) []graph.Vertex[I] {
	matched := make([]graph.Vertex[I], 0)
	if len(q.IDs) > 0 {
		for _, id := range q.IDs {
			if t, ok := s.vertices[id]; ok {
				if v := graph.NewVertex(id, t); q.Matches(v) {
					matched = append(matched, v)
				}
			}
		}
	} else if q.Type != nil {
		for id := range s.byType[*q.Type] {
			if v := graph.NewVertex(id, *q.Type); q.Matches(v) {
				matched = append(matched, v)
			}
		}
	} else {
		for id, t := range s.vertices {
			if v := graph.NewVertex(id, t); q.Matches(v) {
				matched = append(matched, v)
			}
		}
	}
	graph.SortVertices(matched)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched
}

// DeleteVertices removes matching vertices and every edge referencing them.
func (s *Store[I]) DeleteVertices(ctx context.Context, q graph.VertexQuery[I]) error {
	if err := ctx.Err(); err != nil {
		return graph.StorageError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.deleteVerticesLocked(q)
	return err
}

func (s *Store[I]) deleteVerticesLocked(q graph.VertexQuery[I]) (func(), error) {
	victims := s.getVerticesLocked(q)
	type removedEdge struct {
		key   edgeKey[I]
		state edgeState
	}
	var removedEdges []removedEdge
	for _, v := range victims {
		delete(s.vertices, v.ID)
		s.unindexType(v.Type, v.ID)
		for k := range s.byVertex[v.ID] {
			if st, ok := s.edges[k]; ok {
				removedEdges = append(removedEdges, removedEdge{key: k, state: st})
				s.removeEdgeLocked(k)
			}
		}
	}
	undo := func() {
		for _, v := range victims {
			s.vertices[v.ID] = v.Type
			s.indexType(v.Type, v.ID)
		}
		for _, re := range removedEdges {
			s.edges[re.key] = re.state
			s.indexEdge(re.key)
		}
	}
	return undo, nil
}

// CreateEdge upserts by identity triple and reports whether the edge was
// newly created.
func (s *Store[I]) CreateEdge(ctx context.Context, e graph.Edge[I]) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, graph.StorageError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	created, _, err := s.createEdgeLocked(e)
	return created, err
}

func (s *Store[I]) createEdgeLocked(e graph.Edge[I]) (bool, func(), error) {
	k := edgeKey[I]{out: e.Outbound, t: e.Type, in: e.Inbound}
	prev, existed := s.edges[k]
	s.edges[k] = edgeState{weight: e.Weight, updatedAt: e.UpdatedAt}
	if !existed {
		s.indexEdge(k)
	}
	undo := func() {
		if existed {
			s.edges[k] = prev
		} else {
			s.removeEdgeLocked(k)
		}
	}
	return !existed, undo, nil
}

// GetEdges returns owned copies of matching edges in identity order.
func (s *Store[I]) GetEdges(ctx context.Context, q graph.EdgeQuery[I]) ([]graph.Edge[I], error) {
	if err := ctx.Err(); err != nil {
		return nil, graph.StorageError(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEdgesLocked(q), nil
}

func (s *Store[I]) getEdgesLocked(q graph.EdgeQuery[I]) []graph.Edge[I] {
	matched := make([]graph.Edge[I], 0)
	collect := func(k edgeKey[I]) {
		st, ok := s.edges[k]
		if !ok {
			return
		}
		e := graph.NewEdge(k.out, k.t, k.in, st.weight, st.updatedAt)
		if q.Matches(e) {
			matched = append(matched, e)
		}
	}
	switch {
	case q.Outbound != nil:
		for k := range s.byVertex[*q.Outbound] {
			if k.out == *q.Outbound {
				collect(k)
			}
		}
	case q.Inbound != nil:
		for k := range s.byVertex[*q.Inbound] {
			if k.in == *q.Inbound {
				collect(k)
			}
		}
	default:
		for k := range s.edges {
			collect(k)
		}
	}
	graph.SortEdges(matched)
	return matched
}

// DeleteEdges removes matching edges.
func (s *Store[I]) DeleteEdges(ctx context.Context, q graph.EdgeQuery[I]) error {
	if err := ctx.Err(); err != nil {
		return graph.StorageError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.deleteEdgesLocked(q)
	return err
}

func (s *Store[I]) deleteEdgesLocked(q graph.EdgeQuery[I]) (func(), error) {
	victims := s.getEdgesLocked(q)
	for _, e := range victims {
		s.removeEdgeLocked(edgeKey[I]{out: e.Outbound, t: e.Type, in: e.Inbound})
	}
	undo := func() {
		for _, e := range victims {
			k := edgeKey[I]{out: e.Outbound, t: e.Type, in: e.Inbound}
			s.edges[k] = edgeState{weight: e.Weight, updatedAt: e.UpdatedAt}
			s.indexEdge(k)
		}
	}
	return undo, nil
}

// Transaction applies the whole sequence under the write lock. On the first
// failing operation every applied step is rolled back in reverse order, so
// either all effects commit or none do.
func (s *Store[I]) Transaction(ctx context.Context, ops []graph.Op[I]) ([]graph.OpResult[I], error) {
	if err := ctx.Err(); err != nil {
		return nil, graph.StorageError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]graph.OpResult[I], 0, len(ops))
	undos := make([]func(), 0, len(ops))
	rollback := func() {
		for i := len(undos) - 1; i >= 0; i-- {
			undos[i]()
		}
	}

	for _, op := range ops {
		res, undo, err := s.applyLocked(op)
		if err != nil {
			rollback()
			return nil, err
		}
		if undo != nil {
			undos = append(undos, undo)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Store[I]) applyLocked(op graph.Op[I]) (graph.OpResult[I], func(), error) {
	switch op.Code {
	case graph.OpCreateVertex:
		if op.Vertex == nil {
			return graph.OpResult[I]{}, nil, graph.SerializationError(graph.ErrMissingPayload)
		}
		created, undo, err := s.createVertexLocked(*op.Vertex)
		if err != nil {
			return graph.OpResult[I]{}, nil, err
		}
		return graph.CreatedResult[I](created), undo, nil
	case graph.OpUpdateVertex:
		if op.Vertex == nil {
			return graph.OpResult[I]{}, nil, graph.SerializationError(graph.ErrMissingPayload)
		}
		updated, undo, err := s.updateVertexLocked(*op.Vertex)
		if err != nil {
			return graph.OpResult[I]{}, nil, err
		}
		return graph.CreatedResult[I](updated), undo, nil
	case graph.OpGetVertices:
		if op.VertexQuery == nil {
			return graph.OpResult[I]{}, nil, graph.SerializationError(graph.ErrMissingPayload)
		}
		return graph.VerticesResult(s.getVerticesLocked(*op.VertexQuery)), nil, nil
	case graph.OpDeleteVertices:
		if op.VertexQuery == nil {
			return graph.OpResult[I]{}, nil, graph.SerializationError(graph.ErrMissingPayload)
		}
		undo, err := s.deleteVerticesLocked(*op.VertexQuery)
		if err != nil {
			return graph.OpResult[I]{}, nil, err
		}
		return graph.OpResult[I]{}, undo, nil
	case graph.OpCreateEdge:
		if op.Edge == nil {
			return graph.OpResult[I]{}, nil, graph.SerializationError(graph.ErrMissingPayload)
		}
		created, undo, err := s.createEdgeLocked(*op.Edge)
		if err != nil {
			return graph.OpResult[I]{}, nil, err
		}
		return graph.CreatedResult[I](created), undo, nil
	case graph.OpGetEdges:
		if op.EdgeQuery == nil {
			return graph.OpResult[I]{}, nil, graph.SerializationError(graph.ErrMissingPayload)
		}
		return graph.EdgesResult(s.getEdgesLocked(*op.EdgeQuery)), nil, nil
	case graph.OpDeleteEdges:
		if op.EdgeQuery == nil {
			return graph.OpResult[I]{}, nil, graph.SerializationError(graph.ErrMissingPayload)
		}
		undo, err := s.deleteEdgesLocked(*op.EdgeQuery)
		if err != nil {
			return graph.OpResult[I]{}, nil, err
		}
		return graph.OpResult[I]{}, undo, nil
	}
	return graph.OpResult[I]{}, nil, graph.SerializationError(graph.UnknownOp(op.Code))
}

// Close is a no-op for the in-memory store.
func (s *Store[I]) Close() error { return nil }

func (s *Store[I]) indexType(t graph.Type, id I) {
	ids, ok := s.byType[t]
	if !ok {
		ids = make(map[I]struct{})
		s.byType[t] = ids
	}
	ids[id] = struct{}{}
}

func (s *Store[I]) unindexType(t graph.Type, id I) {
	if ids, ok := s.byType[t]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byType, t)
		}
	}
}

func (s *Store[I]) indexEdge(k edgeKey[I]) {
	for _, id := range []I{k.out, k.in} {
		keys, ok := s.byVertex[id]
		if !ok {
			keys = make(map[edgeKey[I]]struct{})
			s.byVertex[id] = keys
		}
		keys[k] = struct{}{}
	}
}

// removeEdgeLocked drops an edge and its vertex-index entries.
func (s *Store[I]) removeEdgeLocked(k edgeKey[I]) {
	delete(s.edges, k)
	for _, id := range []I{k.out, k.in} {
		if keys, ok := s.byVertex[id]; ok {
			delete(keys, k)
			if len(keys) == 0 {
				delete(s.byVertex, id)
			}
		}
	}
}
