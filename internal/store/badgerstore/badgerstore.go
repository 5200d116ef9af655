// Package badgerstore implements the Datastore contract on top of badger, an
// ordered key-value engine consumed only through gets, puts, deletes and
// prefix scans. Vertices are keyed by id, edges by their identity triple, with
// secondary index entries by type and by inbound id so reverse and type-scoped
// queries avoid full scans. Concurrency control is delegated to badger's own
// transactions; a contract transaction maps onto exactly one engine update.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/braidstore/braid/pkg/graph"
)

// Key-space prefixes. Every key starts with one of these bytes; composite
// segments are length-prefixed except the trailing one, which decodes from
// the remainder.
const (
	prefixVertex    = 'v' // v | id                      -> type
	prefixTypeIndex = 't' // t | type | id               -> nil
	prefixEdge      = 'e' // e | out | type | in         -> edgeState JSON
	prefixReverse   = 'r' // r | in | type | out         -> nil
)

type edgeState struct {
	Weight    graph.Weight `json:"weight"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Store is the persistent backend. It owns the badger handle exclusively.
type Store[I graph.Id] struct {
	db *badger.DB
}

// Open opens (creating if needed) a badger-backed store at path.
func Open[I graph.Id](path string) (*Store[I], error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, graph.StorageError(fmt.Errorf("opening datastore at %s: %w", path, err))
	}
	return &Store[I]{db: db}, nil
}

var _ graph.Datastore[uint64] = (*Store[uint64])(nil)

// Close releases the engine handle.
func (s *Store[I]) Close() error {
	if err := s.db.Close(); err != nil {
		return graph.StorageError(fmt.Errorf("closing datastore: %w", err))
	}
	return nil
}

func vertexKey[I graph.Id](id I) []byte {
	return append([]byte{prefixVertex}, graph.EncodeId(id)...)
}

func typeIndexKey[I graph.Id](t graph.Type, id I) []byte {
	k := graph.AppendType([]byte{prefixTypeIndex}, t)
	return append(k, graph.EncodeId(id)...)
}

func edgeKey[I graph.Id](out I, t graph.Type, in I) []byte {
	k := graph.AppendId([]byte{prefixEdge}, out)
	k = graph.AppendType(k, t)
	return append(k, graph.EncodeId(in)...)
}

func reverseKey[I graph.Id](out I, t graph.Type, in I) []byte {
	k := graph.AppendId([]byte{prefixReverse}, in)
	k = graph.AppendType(k, t)
	return append(k, graph.EncodeId(out)...)
}

// decodeEdgeKey parses an edge or reverse-index key back into its identity
// triple. For reverse keys the first id is the inbound vertex.
func decodeEdgeKey[I graph.Id](key []byte) (first I, t graph.Type, second I, err error) {
	rest := key[1:]
	first, rest, err = graph.ConsumeId[I](rest)
	if err != nil {
		return
	}
	t, rest, err = graph.ConsumeType(rest)
	if err != nil {
		return
	}
	second, err = graph.DecodeId[I](rest)
	return
}

func storageErr(op string, err error) error {
	return graph.StorageError(fmt.Errorf("%s: %w", op, err))
}

// CreateVertex inserts a vertex, failing with the id-taken kind when the
// identifier is already bound.
func (s *Store[I]) CreateVertex(ctx context.Context, v graph.Vertex[I]) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, graph.StorageError(err)
	}
	var created bool
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		created, err = s.createVertexTxn(txn, v)
		return err
	})
	if err != nil {
		return false, normalize("creating vertex", err)
	}
	return created, nil
}

func (s *Store[I]) createVertexTxn(txn *badger.Txn, v graph.Vertex[I]) (bool, error) {
	key := vertexKey(v.ID)
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return false, graph.IdTakenError()
	case !errors.Is(err, badger.ErrKeyNotFound):
		return false, err
	}
	if err := txn.Set(key, []byte(v.Type)); err != nil {
		return false, err
	}
	if err := txn.Set(typeIndexKey(v.Type, v.ID), nil); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateVertex rewrites the type of an existing vertex; absence is reported
// as false, not as a failure.
func (s *Store[I]) UpdateVertex(ctx context.Context, v graph.Vertex[I]) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, graph.StorageError(err)
	}
	var updated bool
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		updated, err = s.updateVertexTxn(txn, v)
		return err
	})
	if err != nil {
		return false, normalize("updating vertex", err)
	}
	return updated, nil
}

func (s *Store[I]) updateVertexTxn(txn *badger.Txn, v graph.Vertex[I]) (bool, error) {
	key := vertexKey(v.ID)
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	prev, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	if err := txn.Delete(typeIndexKey(graph.Type(prev), v.ID)); err != nil {
		return false, err
	}
	if err := txn.Set(key, []byte(v.Type)); err != nil {
		return false, err
	}
	if err := txn.Set(typeIndexKey(v.Type, v.ID), nil); err != nil {
		return false, err
	}
	return true, nil
}

// GetVertices returns matching vertices in id order.
func (s *Store[I]) GetVertices(ctx context.Context, q graph.VertexQuery[I]) ([]graph.Vertex[I], error) {
	if err := ctx.Err(); err != nil {
		return nil, graph.StorageError(err)
	}
	var out []graph.Vertex[I]
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = s.getVerticesTxn(txn, q)
		return err
	})
	if err != nil {
		return nil, normalize("getting vertices", err)
	}
	return out, nil
}

func (s *Store[I]) getVerticesTxn(txn *badger.Txn, q graph.VertexQuery[I]) ([]graph.Vertex[I], error) {
	matched := make([]graph.Vertex[I], 0)
	add := func(v graph.Vertex[I]) {
		if q.Matches(v) {
			matched = append(matched, v)
		}
	}

	switch {
	case len(q.IDs) > 0:
		for _, id := range q.IDs {
			item, err := txn.Get(vertexKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			t, err := item.ValueCopy(nil)
			if err != nil {
				return nil, err
			}
			add(graph.NewVertex(id, graph.Type(t)))
		}
	case q.Type != nil:
		prefix := graph.AppendType([]byte{prefixTypeIndex}, *q.Type)
		err := scanKeys(txn, prefix, nil, func(key []byte) error {
			id, err := graph.DecodeId[I](key[len(prefix):])
			if err != nil {
				return err
			}
			add(graph.NewVertex(id, *q.Type))
			return nil
		})
		if err != nil {
			return nil, err
		}
	default:
		prefix := []byte{prefixVertex}
		// Seek past the exclusive lower bound; an exhausted id space means
		// nothing can sort after it.
		var seek []byte
		if q.After != nil {
			next, err := graph.NextId(*q.After)
			if graph.IsValidation(err, graph.CannotIncrementId) {
				return matched, nil
			}
			if err != nil {
				return nil, err
			}
			seek = append([]byte{prefixVertex}, graph.EncodeId(next)...)
		}
		err := scanItems(txn, prefix, seek, func(key, val []byte) error {
			id, err := graph.DecodeId[I](key[1:])
			if err != nil {
				return err
			}
			add(graph.NewVertex(id, graph.Type(val)))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	graph.SortVertices(matched)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// DeleteVertices removes matching vertices and cascades to every edge
// referencing them as outbound or inbound.
func (s *Store[I]) DeleteVertices(ctx context.Context, q graph.VertexQuery[I]) error {
	if err := ctx.Err(); err != nil {
		return graph.StorageError(err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return s.deleteVerticesTxn(txn, q)
	})
	if err != nil {
		return normalize("deleting vertices", err)
	}
	return nil
}

func (s *Store[I]) deleteVerticesTxn(txn *badger.Txn, q graph.VertexQuery[I]) error {
	victims, err := s.getVerticesTxn(txn, q)
	if err != nil {
		return err
	}
	for _, v := range victims {
		if err := txn.Delete(vertexKey(v.ID)); err != nil {
			return err
		}
		if err := txn.Delete(typeIndexKey(v.Type, v.ID)); err != nil {
			return err
		}
		if err := s.cascadeTxn(txn, v.ID); err != nil {
			return err
		}
	}
	return nil
}

// cascadeTxn removes every edge touching id, via the outbound edge keys and
// the reverse index.
func (s *Store[I]) cascadeTxn(txn *badger.Txn, id I) error {
	var doomed [][]byte

	outPrefix := graph.AppendId([]byte{prefixEdge}, id)
	err := scanKeys(txn, outPrefix, nil, func(key []byte) error {
		out, t, in, err := decodeEdgeKey[I](key)
		if err != nil {
			return err
		}
		doomed = append(doomed, append([]byte(nil), key...), reverseKey(out, t, in))
		return nil
	})
	if err != nil {
		return err
	}

	revPrefix := graph.AppendId([]byte{prefixReverse}, id)
	err = scanKeys(txn, revPrefix, nil, func(key []byte) error {
		in, t, out, err := decodeEdgeKey[I](key)
		if err != nil {
			return err
		}
		doomed = append(doomed, append([]byte(nil), key...), edgeKey(out, t, in))
		return nil
	})
	if err != nil {
		return err
	}

	for _, key := range doomed {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// CreateEdge upserts by identity triple and reports whether the edge was
// newly created.
func (s *Store[I]) CreateEdge(ctx context.Context, e graph.Edge[I]) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, graph.StorageError(err)
	}
	var created bool
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		created, err = s.createEdgeTxn(txn, e)
		return err
	})
	if err != nil {
		return false, normalize("creating edge", err)
	}
	return created, nil
}

func (s *Store[I]) createEdgeTxn(txn *badger.Txn, e graph.Edge[I]) (bool, error) {
	key := edgeKey(e.Outbound, e.Type, e.Inbound)
	_, err := txn.Get(key)
	existed := err == nil
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return false, err
	}
	val, err := json.Marshal(edgeState{Weight: e.Weight, UpdatedAt: e.UpdatedAt})
	if err != nil {
		return false, graph.SerializationError(err)
	}
	if err := txn.Set(key, val); err != nil {
		return false, err
	}
	if err := txn.Set(reverseKey(e.Outbound, e.Type, e.Inbound), nil); err != nil {
		return false, err
	}
	return !existed, nil
}

// GetEdges returns matching edges in identity order.
func (s *Store[I]) GetEdges(ctx context.Context, q graph.EdgeQuery[I]) ([]graph.Edge[I], error) {
	if err := ctx.Err(); err != nil {
		return nil, graph.StorageError(err)
	}
	var out []graph.Edge[I]
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = s.getEdgesTxn(txn, q)
		return err
	})
	if err != nil {
		return nil, normalize("getting edges", err)
	}
	return out, nil
}

func (s *Store[I]) getEdgesTxn(txn *badger.Txn, q graph.EdgeQuery[I]) ([]graph.Edge[I], error) {
	matched := make([]graph.Edge[I], 0)
	add := func(e graph.Edge[I]) {
		if q.Matches(e) {
			matched = append(matched, e)
		}
	}

	switch {
	case q.Outbound != nil:
		prefix := graph.AppendId([]byte{prefixEdge}, *q.Outbound)
		if q.Type != nil {
			prefix = graph.AppendType(prefix, *q.Type)
		}
		err := scanItems(txn, prefix, nil, func(key, val []byte) error {
			out, t, in, err := decodeEdgeKey[I](key)
			if err != nil {
				return err
			}
			var st edgeState
			if err := json.Unmarshal(val, &st); err != nil {
				return graph.SerializationError(err)
			}
			add(graph.NewEdge(out, t, in, st.Weight, st.UpdatedAt))
			return nil
		})
		if err != nil {
			return nil, err
		}
	case q.Inbound != nil:
		prefix := graph.AppendId([]byte{prefixReverse}, *q.Inbound)
		if q.Type != nil {
			prefix = graph.AppendType(prefix, *q.Type)
		}
		var keys [][]byte
		err := scanKeys(txn, prefix, nil, func(key []byte) error {
			in, t, out, err := decodeEdgeKey[I](key)
			if err != nil {
				return err
			}
			keys = append(keys, edgeKey(out, t, in))
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return nil, err
			}
			out, t, in, err := decodeEdgeKey[I](key)
			if err != nil {
				return nil, err
			}
			var st edgeState
			if err := json.Unmarshal(val, &st); err != nil {
				return nil, graph.SerializationError(err)
			}
			add(graph.NewEdge(out, t, in, st.Weight, st.UpdatedAt))
		}
	default:
		err := scanItems(txn, []byte{prefixEdge}, nil, func(key, val []byte) error {
			out, t, in, err := decodeEdgeKey[I](key)
			if err != nil {
				return err
			}
			var st edgeState
			if err := json.Unmarshal(val, &st); err != nil {
				return graph.SerializationError(err)
			}
			add(graph.NewEdge(out, t, in, st.Weight, st.UpdatedAt))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	graph.SortEdges(matched)
	return matched, nil
}

// DeleteEdges removes matching edges.
func (s *Store[I]) DeleteEdges(ctx context.Context, q graph.EdgeQuery[I]) error {
	if err := ctx.Err(); err != nil {
		return graph.StorageError(err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return s.deleteEdgesTxn(txn, q)
	})
	if err != nil {
		return normalize("deleting edges", err)
	}
	return nil
}

func (s *Store[I]) deleteEdgesTxn(txn *badger.Txn, q graph.EdgeQuery[I]) error {
	victims, err := s.getEdgesTxn(txn, q)
	if err != nil {
		return err
	}
	for _, e := range victims {
		if err := txn.Delete(edgeKey(e.Outbound, e.Type, e.Inbound)); err != nil {
			return err
		}
		if err := txn.Delete(reverseKey(e.Outbound, e.Type, e.Inbound)); err != nil {
			return err
		}
	}
	return nil
}

// Transaction maps the whole operation sequence onto one engine update:
// badger commits it atomically or discards every staged write on failure.
func (s *Store[I]) Transaction(ctx context.Context, ops []graph.Op[I]) ([]graph.OpResult[I], error) {
	if err := ctx.Err(); err != nil {
		return nil, graph.StorageError(err)
	}
	results := make([]graph.OpResult[I], 0, len(ops))
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			res, err := s.applyTxn(txn, op)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, normalize("applying transaction", err)
	}
	return results, nil
}

func (s *Store[I]) applyTxn(txn *badger.Txn, op graph.Op[I]) (graph.OpResult[I], error) {
	var zero graph.OpResult[I]
	switch op.Code {
	case graph.OpCreateVertex:
		if op.Vertex == nil {
			return zero, graph.SerializationError(graph.ErrMissingPayload)
		}
		created, err := s.createVertexTxn(txn, *op.Vertex)
		if err != nil {
			return zero, err
		}
		return graph.CreatedResult[I](created), nil
	case graph.OpUpdateVertex:
		if op.Vertex == nil {
			return zero, graph.SerializationError(graph.ErrMissingPayload)
		}
		updated, err := s.updateVertexTxn(txn, *op.Vertex)
		if err != nil {
			return zero, err
		}
		return graph.CreatedResult[I](updated), nil
	case graph.OpGetVertices:
		if op.VertexQuery == nil {
			return zero, graph.SerializationError(graph.ErrMissingPayload)
		}
		vs, err := s.getVerticesTxn(txn, *op.VertexQuery)
		if err != nil {
			return zero, err
		}
		return graph.VerticesResult(vs), nil
	case graph.OpDeleteVertices:
		if op.VertexQuery == nil {
			return zero, graph.SerializationError(graph.ErrMissingPayload)
		}
		return zero, s.deleteVerticesTxn(txn, *op.VertexQuery)
	case graph.OpCreateEdge:
		if op.Edge == nil {
			return zero, graph.SerializationError(graph.ErrMissingPayload)
		}
		created, err := s.createEdgeTxn(txn, *op.Edge)
		if err != nil {
			return zero, err
		}
		return graph.CreatedResult[I](created), nil
	case graph.OpGetEdges:
		if op.EdgeQuery == nil {
			return zero, graph.SerializationError(graph.ErrMissingPayload)
		}
		es, err := s.getEdgesTxn(txn, *op.EdgeQuery)
		if err != nil {
			return zero, err
		}
		return graph.EdgesResult(es), nil
	case graph.OpDeleteEdges:
		if op.EdgeQuery == nil {
			return zero, graph.SerializationError(graph.ErrMissingPayload)
		}
		return zero, s.deleteEdgesTxn(txn, *op.EdgeQuery)
	}
	return zero, graph.SerializationError(graph.UnknownOp(op.Code))
}

// scanKeys iterates keys under prefix, optionally seeking past a lower bound.
func scanKeys(txn *badger.Txn, prefix, seek []byte, fn func(key []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	if seek == nil {
		seek = prefix
	}
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		if err := fn(it.Item().KeyCopy(nil)); err != nil {
			return err
		}
	}
	return nil
}

// scanItems iterates key/value pairs under prefix.
func scanItems(txn *badger.Txn, prefix, seek []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	if seek == nil {
		seek = prefix
	}
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}

// normalize guarantees the operational error type at the contract boundary,
// preserving an already-classified kind and wrapping raw engine failures as
// storage errors with context.
func normalize(op string, err error) error {
	var oe *graph.Error
	if errors.As(err, &oe) {
		return oe
	}
	return storageErr(op, err)
}
