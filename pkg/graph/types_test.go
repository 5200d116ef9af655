package graph_test

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidstore/braid/pkg/graph"
)

func TestNewType(t *testing.T) {
	valid := []string{"user", "follows", "a", "A-B_c9", strings.Repeat("x", 255)}
	for _, s := range valid {
		t.Run(s[:min(len(s), 12)], func(t *testing.T) {
			tp, err := graph.NewType(s)
			require.NoError(t, err)
			assert.Equal(t, s, tp.String())
		})
	}

	t.Run("too long", func(t *testing.T) {
		_, err := graph.NewType(strings.Repeat("x", 256))
		assert.True(t, graph.IsValidation(err, graph.ValueTooLong))
	})
	t.Run("empty", func(t *testing.T) {
		_, err := graph.NewType("")
		assert.True(t, graph.IsValidation(err, graph.InvalidValue))
	})
	for _, s := range []string{"has space", "has.dot", "emoji☃", "tab\t"} {
		t.Run("invalid "+s, func(t *testing.T) {
			_, err := graph.NewType(s)
			assert.True(t, graph.IsValidation(err, graph.InvalidValue))
		})
	}
}

func TestNewWeight(t *testing.T) {
	for _, w := range []float32{-1, -0.5, 0, 0.25, 1} {
		got, err := graph.NewWeight(w)
		require.NoError(t, err)
		assert.Equal(t, w, got.Value())
	}
	for _, w := range []float32{-1.0001, 1.0001, float32(math.NaN())} {
		_, err := graph.NewWeight(w)
		assert.True(t, graph.IsValidation(err, graph.InvalidValue), "weight %v", w)
	}
}

func TestVertexIdentity(t *testing.T) {
	user, _ := graph.NewType("user")
	org, _ := graph.NewType("org")
	a := graph.NewVertex(uint64(1), user)
	b := graph.NewVertex(uint64(1), org)
	c := graph.NewVertex(uint64(2), user)

	// Identity is the id alone; type is payload.
	assert.True(t, a.Same(b))
	assert.False(t, a.Same(c))
}

func TestEdgeIdentity(t *testing.T) {
	follows, _ := graph.NewType("follows")
	blocks, _ := graph.NewType("blocks")
	now := time.Now().UTC()

	a := graph.NewEdge(uint64(1), follows, uint64(2), 0.5, now)
	sameTriple := graph.NewEdge(uint64(1), follows, uint64(2), -0.5, now.Add(time.Hour))
	assert.True(t, a.Same(sameTriple))

	assert.False(t, a.Same(graph.NewEdge(uint64(2), follows, uint64(1), 0.5, now)))
	assert.False(t, a.Same(graph.NewEdge(uint64(1), blocks, uint64(2), 0.5, now)))
	assert.False(t, a.Same(graph.NewEdge(uint64(1), follows, uint64(3), 0.5, now)))
}

func TestNewEdgeNormalizesUTC(t *testing.T) {
	follows, _ := graph.NewType("follows")
	loc := time.FixedZone("UTC+7", 7*3600)
	stamp := time.Date(2024, 3, 10, 9, 30, 0, 123456789, loc)

	e := graph.NewEdge(uint64(1), follows, uint64(2), 1, stamp)
	assert.Equal(t, time.UTC, e.UpdatedAt.Location())
	assert.True(t, e.UpdatedAt.Equal(stamp))
}

func TestEdgeJSONRoundTrip(t *testing.T) {
	follows, _ := graph.NewType("follows")
	stamp := time.Date(2024, 3, 10, 9, 30, 0, 123456789, time.UTC)
	e := graph.NewEdge(uint64(7), follows, uint64(9), -0.25, stamp)

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var got graph.Edge[uint64]
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, e.Outbound, got.Outbound)
	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, e.Inbound, got.Inbound)
	assert.Equal(t, e.Weight, got.Weight)
	assert.True(t, got.UpdatedAt.Equal(stamp), "nanosecond precision must survive")
}
