// Package graph defines the braid value model: typed vertices connected by
// directed, weighted edges, addressed by an abstract identifier. Everything
// here is a validated, immutable-once-constructed value; nothing in this
// package touches storage.
package graph

import (
	"math"
	"regexp"
	"time"
)

// MaxTypeLen is the maximum length of a vertex or edge type, in bytes.
const MaxTypeLen = 255

var typePattern = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)

// Type classifies vertices and edges. Types are short identifier strings
// restricted to letters, digits, dashes and underscores, and are compared by
// value. Backends use them as map and index keys.
type Type string

// NewType validates and constructs a Type.
func NewType(s string) (Type, error) {
	if len(s) > MaxTypeLen {
		return "", &ValidationError{Kind: ValueTooLong}
	}
	if !typePattern.MatchString(s) {
		return "", &ValidationError{Kind: InvalidValue}
	}
	return Type(s), nil
}

func (t Type) String() string { return string(t) }

// Weight is the strength and polarity of an edge, constrained to [-1, 1].
type Weight float32

// NewWeight validates and constructs a Weight.
func NewWeight(w float32) (Weight, error) {
	if math.IsNaN(float64(w)) || w < -1.0 || w > 1.0 {
		return 0, &ValidationError{Kind: InvalidValue}
	}
	return Weight(w), nil
}

// Value returns the underlying float.
func (w Weight) Value() float32 { return float32(w) }

// Vertex is an entity node. Identity is defined by ID alone; the type is
// mutable metadata and does not participate in identity comparison.
type Vertex[I Id] struct {
	ID   I    `json:"id"`
	Type Type `json:"type"`
}

// NewVertex constructs a vertex from an already-validated type.
func NewVertex[I Id](id I, t Type) Vertex[I] {
	return Vertex[I]{ID: id, Type: t}
}

// Same reports whether two vertices share an identity.
func (v Vertex[I]) Same(other Vertex[I]) bool {
	return v.ID == other.ID
}

// Edge is a directed, typed, weighted relationship between two vertex ids.
// Identity is the (Outbound, Type, Inbound) triple; weight and timestamp are
// mutable payload. At most one edge exists per triple: creating it again
// collapses into an update of weight and timestamp.
type Edge[I Id] struct {
	Outbound  I         `json:"outbound_id"`
	Type      Type      `json:"type"`
	Inbound   I         `json:"inbound_id"`
	Weight    Weight    `json:"weight"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEdge constructs an edge with an explicit update timestamp. The timestamp
// is normalized to UTC.
func NewEdge[I Id](outbound I, t Type, inbound I, w Weight, updatedAt time.Time) Edge[I] {
	return Edge[I]{
		Outbound:  outbound,
		Type:      t,
		Inbound:   inbound,
		Weight:    w,
		UpdatedAt: updatedAt.UTC(),
	}
}

// NewEdgeNow constructs an edge stamped with the current UTC time.
func NewEdgeNow[I Id](outbound I, t Type, inbound I, w Weight) Edge[I] {
	return NewEdge(outbound, t, inbound, w, time.Now().UTC())
}

// Same reports whether two edges share an identity triple.
func (e Edge[I]) Same(other Edge[I]) bool {
	return e.Outbound == other.Outbound && e.Type == other.Type && e.Inbound == other.Inbound
}
