package graph_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidstore/braid/pkg/graph"
)

func TestErrorKindJSON(t *testing.T) {
	for kind, tag := range map[graph.ErrorKind]string{
		graph.ErrorSerialization: `"serialization"`,
		graph.ErrorStorage:       `"storage"`,
		graph.ErrorIdTaken:       `"id_taken"`,
	} {
		raw, err := json.Marshal(kind)
		require.NoError(t, err)
		assert.Equal(t, tag, string(raw))

		var got graph.ErrorKind
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, kind, got)
	}

	// An unrecognized tag from a newer peer still decodes as a failure.
	var got graph.ErrorKind
	require.NoError(t, json.Unmarshal([]byte(`"quota_exceeded"`), &got))
	assert.Equal(t, graph.ErrorStorage, got)
}

func TestKindOf(t *testing.T) {
	cause := errors.New("disk full")
	kind, ok := graph.KindOf(fmt.Errorf("writing batch: %w", graph.StorageError(cause)))
	require.True(t, ok)
	assert.Equal(t, graph.ErrorStorage, kind)

	_, ok = graph.KindOf(errors.New("plain"))
	assert.False(t, ok)

	assert.True(t, graph.IsIdTaken(graph.IdTakenError()))
	assert.False(t, graph.IsIdTaken(graph.StorageError(cause)))
}

func TestStorageErrorPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := graph.StorageError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "storage")
	assert.Contains(t, err.Error(), "disk full")
}

func TestValidationKindStrings(t *testing.T) {
	assert.Equal(t, "invalid value", (&graph.ValidationError{Kind: graph.InvalidValue}).Error())
	assert.Equal(t, "value too long", (&graph.ValidationError{Kind: graph.ValueTooLong}).Error())
	assert.Equal(t, "cannot increment id", (&graph.ValidationError{Kind: graph.CannotIncrementId}).Error())
}
