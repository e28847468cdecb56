package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/flowengine/catalog"
	"github.com/agentforge/flowengine/parser"
)

func allowAll() Permissions {
	return Permissions{
		OperationKinds: map[catalog.Kind]bool{
			catalog.KindApiCall: true, catalog.KindFilterData: true,
		},
		APIHosts:      map[string]bool{"api.example.com": true},
		CredentialIDs: map[string]bool{},
	}
}

func mustParse(t *testing.T, jsonl string) *parser.Workflow {
	t.Helper()
	wf, err := parser.Parse([]byte(jsonl))
	require.NoError(t, err)
	return wf
}

func TestValidate_FetchAndFilterPasses(t *testing.T) {
	wf := mustParse(t, `{"type":"operationUpdate","operationId":"a","operation":{"ApiCall":{"method":"GET","url":"https://api.example.com/users","outputPath":"/workflow/users"}}}
{"type":"operationUpdate","operationId":"b","operation":{"FilterData":{"inputPath":"/workflow/users","conditions":[{"field":"points","op":">","value":100}],"outputPath":"/workflow/top"}}}
{"type":"beginExecution","executionId":"e1","operationOrder":["a","b"]}`)

	res := Validate(wf, allowAll(), catalog.New())
	assert.True(t, res.Valid, "%+v", res.Errors)
}

func TestValidate_ForwardReferenceRejected(t *testing.T) {
	wf := mustParse(t, `{"type":"operationUpdate","operationId":"a","operation":{"ApiCall":{"method":"GET","url":"https://api.example.com/users","outputPath":"/workflow/users"}}}
{"type":"operationUpdate","operationId":"b","operation":{"FilterData":{"inputPath":"/workflow/users","conditions":[{"field":"points","op":">","value":100}],"outputPath":"/workflow/top"}}}
{"type":"beginExecution","executionId":"e1","operationOrder":["b","a"]}`)

	res := Validate(wf, allowAll(), catalog.New())
	require.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, CategoryDependency, res.Errors[0].Category)
}

func TestValidate_UnknownCredentialRejected(t *testing.T) {
	wf := mustParse(t, `{"type":"operationUpdate","operationId":"a","operation":{"ApiCall":{"method":"GET","url":"https://api.example.com/users","headers":{"Authorization":{"credentialRef":{"id":"missing"}}},"outputPath":"/workflow/users"}}}
{"type":"beginExecution","executionId":"e1","operationOrder":["a"]}`)

	res := Validate(wf, allowAll(), catalog.New())
	require.False(t, res.Valid)
	assert.Equal(t, CategoryPermission, res.Errors[0].Category)
}

func TestValidate_MergeDataSingleSourceRejected(t *testing.T) {
	wf := mustParse(t, `{"type":"operationUpdate","operationId":"a","operation":{"ApiCall":{"method":"GET","url":"https://api.example.com/users","outputPath":"/workflow/users"}}}
{"type":"operationUpdate","operationId":"b","operation":{"MergeData":{"sources":["/workflow/users"],"strategy":"concat","outputPath":"/workflow/merged"}}}
{"type":"beginExecution","executionId":"e1","operationOrder":["a","b"]}`)

	perms := allowAll()
	perms.OperationKinds[catalog.KindMergeData] = true

	res := Validate(wf, perms, catalog.New())
	require.False(t, res.Valid)
}
