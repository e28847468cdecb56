package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/flowengine/storage"
)

func TestStoreDataWritesThroughCollaborator(t *testing.T) {
	mem := storage.NewDefault("")
	ec := &ExecContext{
		Ctx: context.Background(), OperationID: "s", Storage: mem,
		Args: map[string]any{"inputPath": "value", "storage": "localStorage", "key": "k1"},
	}
	out, err := executeStoreData(ec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"stored": true, "storage": "localStorage", "key": "k1"}, out)
}

func TestStoreDataRequiresStorageAndKey(t *testing.T) {
	mem := storage.NewDefault("")
	ec := &ExecContext{
		Ctx: context.Background(), OperationID: "s", Storage: mem,
		Args: map[string]any{"inputPath": "value"},
	}
	_, err := executeStoreData(ec)
	assert.Error(t, err)
}

func TestStoreDataMissingCollaboratorIsExecutionError(t *testing.T) {
	ec := &ExecContext{
		Ctx: context.Background(), OperationID: "s", Storage: nil,
		Args: map[string]any{"inputPath": "value", "storage": "localStorage", "key": "k1"},
	}
	_, err := executeStoreData(ec)
	assert.Error(t, err)
}

func TestStoreDataUnknownBackendErrors(t *testing.T) {
	mem := storage.NewDefault("")
	ec := &ExecContext{
		Ctx: context.Background(), OperationID: "s", Storage: mem,
		Args: map[string]any{"inputPath": "value", "storage": "nope", "key": "k1"},
	}
	_, err := executeStoreData(ec)
	assert.Error(t, err)
}
