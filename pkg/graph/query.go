package graph

import "slices"

// VertexQuery selects vertices by explicit ids, by type, or as an ordered
// range. Set fields must all hold for a vertex to match; a zero query matches
// every vertex. Results are always returned in encoded-id order.
type VertexQuery[I Id] struct {
	// IDs restricts the query to the given identifiers.
	IDs []I `json:"ids,omitempty"`
	// Type restricts the query to vertices of one type.
	Type *Type `json:"type,omitempty"`
	// After restricts the query to identifiers sorting strictly after this
	// one, for paging ordered scans.
	After *I `json:"after,omitempty"`
	// Limit caps the number of results when positive.
	Limit int `json:"limit,omitempty"`
}

// VerticesByID queries explicit identifiers.
func VerticesByID[I Id](ids ...I) VertexQuery[I] {
	return VertexQuery[I]{IDs: ids}
}

// VerticesByType queries every vertex of one type.
func VerticesByType[I Id](t Type) VertexQuery[I] {
	return VertexQuery[I]{Type: &t}
}

// VertexRange queries up to limit vertices with identifiers after the given
// one, in id order.
func VertexRange[I Id](after I, limit int) VertexQuery[I] {
	return VertexQuery[I]{After: &after, Limit: limit}
}

// AllVertices matches every vertex.
func AllVertices[I Id]() VertexQuery[I] {
	return VertexQuery[I]{}
}

// Matches reports whether the vertex satisfies every set field. Limit is a
// result cap, not a per-vertex predicate, and is ignored here.
func (q VertexQuery[I]) Matches(v Vertex[I]) bool {
	if len(q.IDs) > 0 && !slices.Contains(q.IDs, v.ID) {
		return false
	}
	if q.Type != nil && v.Type != *q.Type {
		return false
	}
	if q.After != nil && CompareIds(v.ID, *q.After) <= 0 {
		return false
	}
	return true
}

// EdgeQuery selects edges by any combination of outbound id, type, inbound id
// and weight range. Set fields must all hold; a zero query matches every
// edge. Results are always returned in identity-triple order.
type EdgeQuery[I Id] struct {
	Outbound  *I      `json:"outbound_id,omitempty"`
	Type      *Type   `json:"type,omitempty"`
	Inbound   *I      `json:"inbound_id,omitempty"`
	MinWeight *Weight `json:"min_weight,omitempty"`
	MaxWeight *Weight `json:"max_weight,omitempty"`
}

// EdgesByOutbound queries every edge leaving a vertex.
func EdgesByOutbound[I Id](outbound I) EdgeQuery[I] {
	return EdgeQuery[I]{Outbound: &outbound}
}

// EdgesByInbound queries every edge arriving at a vertex.
func EdgesByInbound[I Id](inbound I) EdgeQuery[I] {
	return EdgeQuery[I]{Inbound: &inbound}
}

// EdgeByIdentity queries the single edge with the given identity triple.
func EdgeByIdentity[I Id](outbound I, t Type, inbound I) EdgeQuery[I] {
	return EdgeQuery[I]{Outbound: &outbound, Type: &t, Inbound: &inbound}
}

// AllEdges matches every edge.
func AllEdges[I Id]() EdgeQuery[I] {
	return EdgeQuery[I]{}
}

// Matches reports whether the edge satisfies every set field.
func (q EdgeQuery[I]) Matches(e Edge[I]) bool {
	if q.Outbound != nil && e.Outbound != *q.Outbound {
		return false
	}
	if q.Type != nil && e.Type != *q.Type {
		return false
	}
	if q.Inbound != nil && e.Inbound != *q.Inbound {
		return false
	}
	if q.MinWeight != nil && e.Weight < *q.MinWeight {
		return false
	}
	if q.MaxWeight != nil && e.Weight > *q.MaxWeight {
		return false
	}
	return true
}

// SortVertices orders vertices by encoded id, the canonical result order
// every backend returns.
func SortVertices[I Id](vs []Vertex[I]) {
	slices.SortFunc(vs, func(a, b Vertex[I]) int {
		return CompareIds(a.ID, b.ID)
	})
}

// SortEdges orders edges by identity triple, the canonical result order every
// backend returns.
func SortEdges[I Id](es []Edge[I]) {
	slices.SortFunc(es, func(a, b Edge[I]) int {
		if c := CompareIds(a.Outbound, b.Outbound); c != 0 {
			return c
		}
		if a.Type != b.Type {
			if a.Type < b.Type {
				return -1
			}
			return 1
		}
		return CompareIds(a.Inbound, b.Inbound)
	})
}
