// Package dump moves a whole graph in and out of a datastore as a stream of
// JSON lines. The stream carries every vertex, then every edge, then a
// trailing manifest with record counts so a truncated stream is detectable.
// It speaks only the datastore contract, so any backend can be dumped into
// any other, including across identifier-compatible deployments.
package dump

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/braidstore/braid/pkg/graph"
)

// FormatVersion tags the stream layout.
const FormatVersion = 1

// pageSize bounds how many vertices one scan request may return, keeping
// dumps of large graphs from materializing everything at once.
const pageSize = 512

// Manifest is the trailing summary record of a dump stream.
type Manifest struct {
	Version  int       `json:"version"`
	Created  time.Time `json:"created"`
	Vertices int       `json:"vertices"`
	Edges    int       `json:"edges"`
}

// record is one line of the stream. Exactly one payload field is set,
// according to Kind.
type record[I graph.Id] struct {
	Kind     string           `json:"kind"`
	Vertex   *graph.Vertex[I] `json:"vertex,omitempty"`
	Edge     *graph.Edge[I]   `json:"edge,omitempty"`
	Manifest *Manifest        `json:"manifest,omitempty"`
}

const (
	kindVertex   = "vertex"
	kindEdge     = "edge"
	kindManifest = "manifest"
)

// Exporter streams a datastore's full contents to a writer.
type Exporter[I graph.Id] struct {
	ds  graph.Datastore[I]
	enc *json.Encoder
}

// NewExporter builds an exporter over an open datastore.
func NewExporter[I graph.Id](ds graph.Datastore[I], w io.Writer) *Exporter[I] {
	return &Exporter[I]{ds: ds, enc: json.NewEncoder(w)}
}

// Export writes every vertex and edge followed by the manifest. Vertices are
// paged through ordered range scans so the datastore never has to hold the
// whole set; edges come out in identity-triple order.
func (e *Exporter[I]) Export(ctx context.Context) (Manifest, error) {
	manifest := Manifest{Version: FormatVersion, Created: time.Now().UTC()}

	q := graph.VertexQuery[I]{Limit: pageSize}
	for {
		page, err := e.ds.GetVertices(ctx, q)
		if err != nil {
			return manifest, fmt.Errorf("scanning vertices: %w", err)
		}
		for i := range page {
			if err := e.enc.Encode(record[I]{Kind: kindVertex, Vertex: &page[i]}); err != nil {
				return manifest, fmt.Errorf("writing vertex: %w", err)
			}
			manifest.Vertices++
		}
		if len(page) < pageSize {
			break
		}
		last := page[len(page)-1].ID
		q = graph.VertexRange(last, pageSize)
	}

	edges, err := e.ds.GetEdges(ctx, graph.AllEdges[I]())
	if err != nil {
		return manifest, fmt.Errorf("scanning edges: %w", err)
	}
	for i := range edges {
		if err := e.enc.Encode(record[I]{Kind: kindEdge, Edge: &edges[i]}); err != nil {
			return manifest, fmt.Errorf("writing edge: %w", err)
		}
		manifest.Edges++
	}

	if err := e.enc.Encode(record[I]{Kind: kindManifest, Manifest: &manifest}); err != nil {
		return manifest, fmt.Errorf("writing manifest: %w", err)
	}
	return manifest, nil
}

// Options tunes import behavior.
type Options struct {
	// Merge makes identifier collisions non-fatal: an existing vertex keeps
	// its stored type and the imported one is skipped. Edges always upsert.
	Merge bool
}

// Importer replays a dump stream into a datastore.
type Importer[I graph.Id] struct {
	ds   graph.Datastore[I]
	sc   *bufio.Scanner
	opts Options
}

// NewImporter builds an importer feeding an open datastore.
func NewImporter[I graph.Id](ds graph.Datastore[I], r io.Reader, opts Options) *Importer[I] {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Importer[I]{ds: ds, sc: sc, opts: opts}
}

// Import replays the stream in order and returns the manifest it ended with.
// A stream that ends without a manifest, or whose manifest counts disagree
// with the records seen, is rejected; records applied before the mismatch was
// detected stay applied.
func (im *Importer[I]) Import(ctx context.Context) (Manifest, error) {
	var (
		seen     Manifest
		manifest *Manifest
	)
	for im.sc.Scan() {
		line := im.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if manifest != nil {
			return seen, graph.SerializationError(fmt.Errorf("record after manifest"))
		}

		var rec record[I]
		if err := json.Unmarshal(line, &rec); err != nil {
			return seen, graph.SerializationError(fmt.Errorf("parsing record: %w", err))
		}

		switch rec.Kind {
		case kindVertex:
			if rec.Vertex == nil {
				return seen, graph.SerializationError(fmt.Errorf("vertex record without payload"))
			}
			if _, err := im.ds.CreateVertex(ctx, *rec.Vertex); err != nil {
				if im.opts.Merge && graph.IsIdTaken(err) {
					seen.Vertices++
					continue
				}
				return seen, fmt.Errorf("importing vertex: %w", err)
			}
			seen.Vertices++
		case kindEdge:
			if rec.Edge == nil {
				return seen, graph.SerializationError(fmt.Errorf("edge record without payload"))
			}
			if _, err := im.ds.CreateEdge(ctx, *rec.Edge); err != nil {
				return seen, fmt.Errorf("importing edge: %w", err)
			}
			seen.Edges++
		case kindManifest:
			if rec.Manifest == nil {
				return seen, graph.SerializationError(fmt.Errorf("manifest record without payload"))
			}
			manifest = rec.Manifest
		default:
			return seen, graph.SerializationError(fmt.Errorf("unrecognized record kind %q", rec.Kind))
		}
	}
	if err := im.sc.Err(); err != nil {
		return seen, fmt.Errorf("reading stream: %w", err)
	}
	if manifest == nil {
		return seen, graph.SerializationError(fmt.Errorf("stream ended without manifest"))
	}
	if manifest.Vertices != seen.Vertices || manifest.Edges != seen.Edges {
		return seen, graph.SerializationError(fmt.Errorf(
			"manifest promises %d vertices and %d edges, stream carried %d and %d",
			manifest.Vertices, manifest.Edges, seen.Vertices, seen.Edges))
	}
	seen.Version = manifest.Version
	seen.Created = manifest.Created
	return seen, nil
}
