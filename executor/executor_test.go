package executor_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/flowengine/catalog"
	"github.com/agentforge/flowengine/executor"
)

// fakeDoer answers every request with a canned JSON body, counting calls so
// tests can assert on cache hits / retries.
type fakeDoer struct {
	calls  int32
	status int
	body   string
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	status := f.status
	if status == 0 {
		status = 200
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

func fetchAndFilterWorkflow() []byte {
	var b bytes.Buffer
	b.WriteString(`{"type":"operationUpdate","operationId":"fetch","operation":{"ApiCall":{"method":"GET","url":"https://api.example.com/items","outputPath":"/workflow/items"}}}` + "\n")
	b.WriteString(`{"type":"operationUpdate","operationId":"filter","operation":{"FilterData":{"inputPath":"/workflow/items/body/items","conditions":[{"field":"active","op":"==","value":true}],"outputPath":"/workflow/active"}}}` + "\n")
	b.WriteString(`{"type":"beginExecution","executionId":"exec-1","operationOrder":["fetch","filter"]}` + "\n")
	return b.Bytes()
}

func TestRun_FetchAndFilterSucceeds(t *testing.T) {
	doer := &fakeDoer{body: `{"items":[{"id":1,"active":true},{"id":2,"active":false}]}`}
	catalog.SetHTTPClient(doer)

	eng := executor.New()
	outcome, err := eng.Run(context.Background(), "agent-1", fetchAndFilterWorkflow())
	require.NoError(t, err)
	require.Nil(t, outcome.Validation)
	require.NotNil(t, outcome.Response)

	resp := outcome.Response
	assert.Equal(t, executor.StatusSuccess, resp.Status)
	assert.Equal(t, executor.OpSuccess, resp.Operations["fetch"].Status)
	assert.Equal(t, executor.OpSuccess, resp.Operations["filter"].Status)

	active, ok := resp.Data["active"]
	require.True(t, ok)
	arr, ok := active.([]any)
	require.True(t, ok)
	assert.Len(t, arr, 1)
}

func TestRun_ForwardReferenceRejectedBeforeExecution(t *testing.T) {
	var b bytes.Buffer
	b.WriteString(`{"type":"operationUpdate","operationId":"filter","operation":{"FilterData":{"inputPath":"/workflow/items","conditions":[{"field":"active","op":"==","value":true}],"outputPath":"/workflow/active"}}}` + "\n")
	b.WriteString(`{"type":"operationUpdate","operationId":"fetch","operation":{"ApiCall":{"method":"GET","url":"https://api.example.com/items","outputPath":"/workflow/items"}}}` + "\n")
	b.WriteString(`{"type":"beginExecution","executionId":"exec-2","operationOrder":["filter","fetch"]}` + "\n")

	eng := executor.New()
	outcome, err := eng.Run(context.Background(), "agent-1", b.Bytes())
	require.NoError(t, err)
	require.Nil(t, outcome.Response)
	require.NotNil(t, outcome.Validation)
	assert.False(t, outcome.Validation.Valid)
	require.Len(t, outcome.Validation.Errors, 1)
	assert.Equal(t, "dependency", string(outcome.Validation.Errors[0].Category))
}

func TestRun_CachesRepeatedGetApiCall(t *testing.T) {
	doer := &fakeDoer{body: `{"ok":true}`}
	catalog.SetHTTPClient(doer)

	var b bytes.Buffer
	b.WriteString(`{"type":"operationUpdate","operationId":"a","operation":{"ApiCall":{"method":"GET","url":"https://api.example.com/x","outputPath":"/workflow/a"}}}` + "\n")
	b.WriteString(`{"type":"operationUpdate","operationId":"b","operation":{"ApiCall":{"method":"GET","url":"https://api.example.com/x","outputPath":"/workflow/b"}}}` + "\n")
	b.WriteString(`{"type":"beginExecution","executionId":"exec-3","operationOrder":["a","b"]}` + "\n")

	eng := executor.New()
	outcome, err := eng.Run(context.Background(), "agent-1", b.Bytes())
	require.NoError(t, err)
	require.NotNil(t, outcome.Response)
	assert.Equal(t, executor.StatusSuccess, outcome.Response.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&doer.calls), "second identical GET should be served from cache")
}

func TestRun_ConditionalSkipsUntakenBranch(t *testing.T) {
	doer := &fakeDoer{body: `{"flag":true}`}
	catalog.SetHTTPClient(doer)

	var b bytes.Buffer
	b.WriteString(`{"type":"operationUpdate","operationId":"fetchState","operation":{"ApiCall":{"method":"GET","url":"https://api.example.com/state","outputPath":"/workflow/state"}}}` + "\n")
	b.WriteString(`{"type":"operationUpdate","operationId":"check","operation":{"Conditional":{"condition":{"path":"/workflow/state/body/flag","op":"==","value":true},"ifTrue":["onTrue"],"ifFalse":["onFalse"]}}}` + "\n")
	b.WriteString(`{"type":"operationUpdate","operationId":"onTrue","operation":{"Wait":{"duration":0}}}` + "\n")
	b.WriteString(`{"type":"operationUpdate","operationId":"onFalse","operation":{"Wait":{"duration":0}}}` + "\n")
	b.WriteString(`{"type":"beginExecution","executionId":"exec-4","operationOrder":["fetchState","check","onTrue","onFalse"]}` + "\n")

	eng := executor.New()
	outcome, err := eng.Run(context.Background(), "agent-1", b.Bytes())
	require.NoError(t, err)
	require.NotNil(t, outcome.Response)

	resp := outcome.Response
	assert.Equal(t, executor.StatusPartialSuccess, resp.Status, "a conditionally skipped operation makes the run partial, not full, success")
	assert.Equal(t, executor.OpSkipped, resp.Operations["onFalse"].Status)
	assert.Equal(t, executor.OpSuccess, resp.Operations["onTrue"].Status)
}

func TestRun_ConditionalExistsToleratesMissingOptionalField(t *testing.T) {
	doer := &fakeDoer{body: `{"flag":true}`}
	catalog.SetHTTPClient(doer)

	var b bytes.Buffer
	b.WriteString(`{"type":"operationUpdate","operationId":"fetchState","operation":{"ApiCall":{"method":"GET","url":"https://api.example.com/state","outputPath":"/workflow/state"}}}` + "\n")
	b.WriteString(`{"type":"operationUpdate","operationId":"check","operation":{"Conditional":{"condition":{"path":"/workflow/state/body/missing","op":"exists"},"ifTrue":["onTrue"],"ifFalse":["onFalse"]}}}` + "\n")
	b.WriteString(`{"type":"operationUpdate","operationId":"onTrue","operation":{"Wait":{"duration":0}}}` + "\n")
	b.WriteString(`{"type":"operationUpdate","operationId":"onFalse","operation":{"Wait":{"duration":0}}}` + "\n")
	b.WriteString(`{"type":"beginExecution","executionId":"exec-6","operationOrder":["fetchState","check","onTrue","onFalse"]}` + "\n")

	eng := executor.New()
	outcome, err := eng.Run(context.Background(), "agent-1", b.Bytes())
	require.NoError(t, err)
	require.NotNil(t, outcome.Response)

	resp := outcome.Response
	assert.Equal(t, executor.StatusPartialSuccess, resp.Status, "a missing optional field must not fail the operation, but the untaken branch is still a skip")
	assert.Equal(t, executor.OpSuccess, resp.Operations["onFalse"].Status)
	assert.Equal(t, executor.OpSkipped, resp.Operations["onTrue"].Status)
}

func TestRun_UnknownCredentialRejectedAtValidation(t *testing.T) {
	var b bytes.Buffer
	b.WriteString(`{"type":"operationUpdate","operationId":"fetch","operation":{"ApiCall":{"method":"GET","url":"https://api.example.com/x","headers":{"Authorization":{"credentialRef":{"id":"not-allowed"}}},"outputPath":"/workflow/a"}}}` + "\n")
	b.WriteString(`{"type":"beginExecution","executionId":"exec-5","operationOrder":["fetch"]}` + "\n")

	eng := executor.New(executor.WithCatalogProvider(fixedProvider{kinds: []catalog.Kind{catalog.KindApiCall}, creds: []string{}}))
	outcome, err := eng.Run(context.Background(), "agent-1", b.Bytes())
	require.NoError(t, err)
	require.Nil(t, outcome.Response)
	require.NotNil(t, outcome.Validation)
	assert.False(t, outcome.Validation.Valid)
	require.Len(t, outcome.Validation.Errors, 1)
	assert.Equal(t, "permission", string(outcome.Validation.Errors[0].Category))
}

type fixedProvider struct {
	kinds []catalog.Kind
	hosts []string
	creds []string
}

func (p fixedProvider) GetAllowedCatalog(context.Context, string) (executor.AllowedCatalog, error) {
	return executor.AllowedCatalog{OperationKinds: p.kinds, APIHosts: p.hosts, CredentialIDs: p.creds}, nil
}
