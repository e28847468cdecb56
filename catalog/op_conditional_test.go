package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvalPathConditionExistsAndEmpty(t *testing.T) {
	matched, err := evalPathCondition(map[string]any{"op": "exists", "path": nil})
	assert.NoError(t, err)
	assert.False(t, matched, "a nil (absent) path must not satisfy exists")

	matched, err = evalPathCondition(map[string]any{"op": "exists", "path": "present"})
	assert.NoError(t, err)
	assert.True(t, matched)

	matched, err = evalPathCondition(map[string]any{"op": "empty", "path": nil})
	assert.NoError(t, err)
	assert.True(t, matched)

	matched, err = evalPathCondition(map[string]any{"op": "empty", "path": []any{}})
	assert.NoError(t, err)
	assert.True(t, matched)

	matched, err = evalPathCondition(map[string]any{"op": "empty", "path": []any{float64(1)}})
	assert.NoError(t, err)
	assert.False(t, matched)
}

func TestEvalPathConditionComparisons(t *testing.T) {
	matched, err := evalPathCondition(map[string]any{"op": "==", "path": float64(5), "value": float64(5)})
	assert.NoError(t, err)
	assert.True(t, matched)

	matched, err = evalPathCondition(map[string]any{"op": ">", "path": float64(5), "value": float64(3)})
	assert.NoError(t, err)
	assert.True(t, matched)
}

func TestEvalPathConditionUnsupportedOpErrors(t *testing.T) {
	_, err := evalPathCondition(map[string]any{"op": "regex", "path": "x", "value": "x"})
	assert.Error(t, err)
}
