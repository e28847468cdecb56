package catalog

import (
	"github.com/agentforge/flowengine/flowerr"
	"github.com/agentforge/flowengine/storage"
)

// storeDataDescriptor implements StoreData: `{inputPath, storage, key}`,
// delegating to the external Storage collaborator (storage.Storage). Never
// cacheable: it is a side-effecting write, not a value-producing read
// (spec.md §4.2).
func storeDataDescriptor() *Descriptor {
	return &Descriptor{
		Kind:           KindStoreData,
		RequiredFields: []string{"inputPath", "storage", "key"},
		Cacheable:      false,
		OutputType:     OutputObject,
		Execute:        executeStoreData,
	}
}

func executeStoreData(ec *ExecContext) (any, error) {
	if ec.Storage == nil {
		return nil, flowerr.New("ExecutionError", flowerr.CategoryExecution, flowerr.ErrExecution, "no storage collaborator configured for StoreData").WithOperation(ec.OperationID)
	}
	value := ec.Args["inputPath"]
	backend, _ := ec.Args["storage"].(string)
	key, _ := ec.Args["key"].(string)
	if backend == "" || key == "" {
		return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "StoreData.storage and StoreData.key are required").WithOperation(ec.OperationID)
	}

	if err := ec.Storage.Store(ec.Ctx, storage.Backend(backend), key, value); err != nil {
		return nil, flowerr.New("DataError", flowerr.CategoryData, flowerr.ErrData, "storage write failed").
			WithOperation(ec.OperationID).
			WithContext(map[string]any{"storage": backend, "key": key}).
			WithRecoverable(true)
	}

	return map[string]any{"stored": true, "storage": backend, "key": key}, nil
}
