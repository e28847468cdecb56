package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itemsFixture() []any {
	return []any{
		map[string]any{"name": "bob", "score": float64(3)},
		map[string]any{"name": "alice", "score": float64(5)},
		map[string]any{"name": "cam", "score": float64(1)},
	}
}

func TestTransformDataSortAscendingByField(t *testing.T) {
	ec := &ExecContext{OperationID: "t", Args: map[string]any{
		"inputPath": itemsFixture(), "transform": "sort",
		"config": map[string]any{"field": "score"},
	}}
	out, err := executeTransformData(ec)
	require.NoError(t, err)
	arr := out.([]any)
	require.Len(t, arr, 3)
	assert.Equal(t, "cam", arr[0].(map[string]any)["name"])
	assert.Equal(t, "alice", arr[2].(map[string]any)["name"])
}

func TestTransformDataSortDescending(t *testing.T) {
	ec := &ExecContext{OperationID: "t", Args: map[string]any{
		"inputPath": itemsFixture(), "transform": "sort",
		"config": map[string]any{"field": "score", "order": "desc"},
	}}
	out, err := executeTransformData(ec)
	require.NoError(t, err)
	arr := out.([]any)
	assert.Equal(t, "alice", arr[0].(map[string]any)["name"])
}

func TestTransformDataGroupByField(t *testing.T) {
	items := []any{
		map[string]any{"team": "a", "v": float64(1)},
		map[string]any{"team": "b", "v": float64(2)},
		map[string]any{"team": "a", "v": float64(3)},
	}
	ec := &ExecContext{OperationID: "t", Args: map[string]any{
		"inputPath": items, "transform": "group",
		"config": map[string]any{"field": "team"},
	}}
	out, err := executeTransformData(ec)
	require.NoError(t, err)
	groups := out.(map[string]any)
	assert.Len(t, groups["a"].([]any), 2)
	assert.Len(t, groups["b"].([]any), 1)
}

func TestTransformDataAggregateSumAndAvg(t *testing.T) {
	items := itemsFixture()
	sumEC := &ExecContext{OperationID: "t", Args: map[string]any{
		"inputPath": items, "transform": "aggregate",
		"config": map[string]any{"op": "sum", "field": "score"},
	}}
	sum, err := executeTransformData(sumEC)
	require.NoError(t, err)
	assert.Equal(t, float64(9), sum)

	avgEC := &ExecContext{OperationID: "t", Args: map[string]any{
		"inputPath": items, "transform": "aggregate",
		"config": map[string]any{"op": "avg", "field": "score"},
	}}
	avg, err := executeTransformData(avgEC)
	require.NoError(t, err)
	assert.Equal(t, float64(3), avg)
}

func TestTransformDataAggregateMinOverEmptyIsError(t *testing.T) {
	ec := &ExecContext{OperationID: "t", Args: map[string]any{
		"inputPath": []any{}, "transform": "aggregate",
		"config": map[string]any{"op": "min", "field": "score"},
	}}
	_, err := executeTransformData(ec)
	assert.Error(t, err)
}

func TestTransformDataSelectProjectsFields(t *testing.T) {
	ec := &ExecContext{OperationID: "t", Args: map[string]any{
		"inputPath": itemsFixture(), "transform": "select",
		"config": map[string]any{"fields": []any{"name"}},
	}}
	out, err := executeTransformData(ec)
	require.NoError(t, err)
	arr := out.([]any)
	assert.Equal(t, map[string]any{"name": "bob"}, arr[0])
}

func TestTransformDataMapAppliesFieldRewrite(t *testing.T) {
	items := []any{map[string]any{"name": "bob", "score": float64(3)}}
	ec := &ExecContext{OperationID: "t", Args: map[string]any{
		"inputPath": items, "transform": "map",
		"config": map[string]any{"fields": map[string]any{
			"name": map[string]any{"op": "toUpper"},
		}},
	}}
	out, err := executeTransformData(ec)
	require.NoError(t, err)
	arr := out.([]any)
	assert.Equal(t, "BOB", arr[0].(map[string]any)["name"])
	assert.Equal(t, float64(3), arr[0].(map[string]any)["score"])
}

func TestTransformDataRejectsNonArrayInput(t *testing.T) {
	ec := &ExecContext{OperationID: "t", Args: map[string]any{
		"inputPath": "not-an-array", "transform": "sort",
		"config": map[string]any{"field": "x"},
	}}
	_, err := executeTransformData(ec)
	assert.Error(t, err)
}
