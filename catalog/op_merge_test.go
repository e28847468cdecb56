package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeDataConcat(t *testing.T) {
	ec := &ExecContext{OperationID: "m", Args: map[string]any{
		"sources":  []any{[]any{float64(1), float64(2)}, []any{float64(3)}},
		"strategy": "concat",
	}}
	out, err := executeMergeData(ec)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, out)
}

func TestMergeDataUnionDedupes(t *testing.T) {
	ec := &ExecContext{OperationID: "m", Args: map[string]any{
		"sources":  []any{[]any{float64(1), float64(2)}, []any{float64(2), float64(3)}},
		"strategy": "union",
	}}
	out, err := executeMergeData(ec)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, out)
}

func TestMergeDataIntersect(t *testing.T) {
	ec := &ExecContext{OperationID: "m", Args: map[string]any{
		"sources":  []any{[]any{float64(1), float64(2), float64(3)}, []any{float64(2), float64(3), float64(4)}},
		"strategy": "intersect",
	}}
	out, err := executeMergeData(ec)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(2), float64(3)}, out)
}

func TestMergeDataDeepMergeRightPrecedence(t *testing.T) {
	ec := &ExecContext{OperationID: "m", Args: map[string]any{
		"sources": []any{
			map[string]any{"a": float64(1), "nested": map[string]any{"x": float64(1)}},
			map[string]any{"a": float64(2), "nested": map[string]any{"y": float64(2)}},
		},
		"strategy": "deepMerge",
	}}
	out, err := executeMergeData(ec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(2), "nested": map[string]any{"x": float64(1), "y": float64(2)}}, out)
}

func TestMergeDataRejectsFewerThanTwoSources(t *testing.T) {
	ec := &ExecContext{OperationID: "m", Args: map[string]any{
		"sources":  []any{[]any{float64(1)}},
		"strategy": "concat",
	}}
	_, err := executeMergeData(ec)
	assert.Error(t, err)
}

func TestMergeDataConcatRejectsNonArrayEntry(t *testing.T) {
	ec := &ExecContext{OperationID: "m", Args: map[string]any{
		"sources":  []any{[]any{float64(1)}, "not-an-array"},
		"strategy": "concat",
	}}
	_, err := executeMergeData(ec)
	assert.Error(t, err)
}
