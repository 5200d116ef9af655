package graph

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingPayload marks an operation without the payload its code requires.
var ErrMissingPayload = errors.New("missing op payload")

// UnknownOp builds the cause for an unrecognized op code.
func UnknownOp(code OpCode) error { return fmt.Errorf("unknown op %q", code) }

// Datastore is the capability contract every backend satisfies identically:
// the in-memory store, the badger-backed persistent store and the remote
// client all produce the same observable results for the same operation
// sequence. Callers receive owned copies on read and may mutate or discard
// them freely; every operation returns either its result or a *Error.
type Datastore[I Id] interface {
	// CreateVertex inserts a vertex. It fails with the id-taken kind when the
	// identifier is already bound.
	CreateVertex(ctx context.Context, v Vertex[I]) (bool, error)

	// UpdateVertex rewrites the type of an existing vertex. A missing vertex
	// is reported as false, not as an operational failure.
	UpdateVertex(ctx context.Context, v Vertex[I]) (bool, error)

	// GetVertices returns the vertices matching the query in id order. An
	// empty result is not an error.
	GetVertices(ctx context.Context, q VertexQuery[I]) ([]Vertex[I], error)

	// DeleteVertices removes matching vertices and cascades to every edge
	// referencing them as outbound or inbound.
	DeleteVertices(ctx context.Context, q VertexQuery[I]) error

	// CreateEdge upserts an edge by identity triple: an existing edge takes
	// the new weight and timestamp, never a duplicate. The result reports
	// whether the edge was newly created.
	CreateEdge(ctx context.Context, e Edge[I]) (bool, error)

	// GetEdges returns matching edges in identity order.
	GetEdges(ctx context.Context, q EdgeQuery[I]) ([]Edge[I], error)

	// DeleteEdges removes matching edges.
	DeleteEdges(ctx context.Context, q EdgeQuery[I]) error

	// Transaction applies the operation sequence with the backend's atomicity
	// guarantee: persistent and in-memory backends are all-or-nothing, and
	// callers observe the sequence as a single serialized step with respect
	// to that backend instance. One result is returned per operation.
	Transaction(ctx context.Context, ops []Op[I]) ([]OpResult[I], error)

	// Close releases backend resources.
	Close() error
}

// OpCode tags one contract operation on the wire and in transactions.
type OpCode string

const (
	OpCreateVertex   OpCode = "create_vertex"
	OpUpdateVertex   OpCode = "update_vertex"
	OpGetVertices    OpCode = "get_vertices"
	OpDeleteVertices OpCode = "delete_vertices"
	OpCreateEdge     OpCode = "create_edge"
	OpGetEdges       OpCode = "get_edges"
	OpDeleteEdges    OpCode = "delete_edges"
)

// Op is one step of a transaction. Exactly one payload field is set,
// according to the code.
type Op[I Id] struct {
	Code        OpCode          `json:"op"`
	Vertex      *Vertex[I]      `json:"vertex,omitempty"`
	Edge        *Edge[I]        `json:"edge,omitempty"`
	VertexQuery *VertexQuery[I] `json:"vertex_query,omitempty"`
	EdgeQuery   *EdgeQuery[I]   `json:"edge_query,omitempty"`
}

// OpResult is the outcome of one transaction step: a created/updated flag for
// mutations, or result sets for reads.
type OpResult[I Id] struct {
	Created  *bool       `json:"created,omitempty"`
	Vertices []Vertex[I] `json:"vertices,omitempty"`
	Edges    []Edge[I]   `json:"edges,omitempty"`
}

// CreateVertexOp builds a create_vertex transaction step.
func CreateVertexOp[I Id](v Vertex[I]) Op[I] {
	return Op[I]{Code: OpCreateVertex, Vertex: &v}
}

// UpdateVertexOp builds an update_vertex transaction step.
func UpdateVertexOp[I Id](v Vertex[I]) Op[I] {
	return Op[I]{Code: OpUpdateVertex, Vertex: &v}
}

// GetVerticesOp builds a get_vertices transaction step.
func GetVerticesOp[I Id](q VertexQuery[I]) Op[I] {
	return Op[I]{Code: OpGetVertices, VertexQuery: &q}
}

// DeleteVerticesOp builds a delete_vertices transaction step.
func DeleteVerticesOp[I Id](q VertexQuery[I]) Op[I] {
	return Op[I]{Code: OpDeleteVertices, VertexQuery: &q}
}

// CreateEdgeOp builds a create_edge transaction step.
func CreateEdgeOp[I Id](e Edge[I]) Op[I] {
	return Op[I]{Code: OpCreateEdge, Edge: &e}
}

// GetEdgesOp builds a get_edges transaction step.
func GetEdgesOp[I Id](q EdgeQuery[I]) Op[I] {
	return Op[I]{Code: OpGetEdges, EdgeQuery: &q}
}

// DeleteEdgesOp builds a delete_edges transaction step.
func DeleteEdgesOp[I Id](q EdgeQuery[I]) Op[I] {
	return Op[I]{Code: OpDeleteEdges, EdgeQuery: &q}
}

func boolPtr(b bool) *bool { return &b }

// CreatedResult builds the result of a mutation step.
func CreatedResult[I Id](created bool) OpResult[I] {
	return OpResult[I]{Created: boolPtr(created)}
}

// VerticesResult builds the result of a vertex read step.
func VerticesResult[I Id](vs []Vertex[I]) OpResult[I] {
	return OpResult[I]{Vertices: vs}
}

// EdgesResult builds the result of an edge read step.
func EdgesResult[I Id](es []Edge[I]) OpResult[I] {
	return OpResult[I]{Edges: es}
}
