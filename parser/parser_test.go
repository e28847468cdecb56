package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FetchAndFilter(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"operationUpdate","operationId":"a","operation":{"ApiCall":{"method":"GET","url":"https://api.example.com/users","outputPath":"/workflow/users"}}}`,
		`{"type":"operationUpdate","operationId":"b","operation":{"FilterData":{"inputPath":"/workflow/users","conditions":[{"field":"points","op":">","value":100}],"outputPath":"/workflow/top"}}}`,
		`{"type":"beginExecution","executionId":"e1","operationOrder":["a","b"]}`,
	}, "\n")

	wf, err := Parse([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, "e1", wf.ExecutionID)
	assert.Equal(t, []string{"a", "b"}, wf.Order)
	require.Contains(t, wf.Operations, "a")
	assert.Equal(t, "ApiCall", string(wf.Operations["a"].Kind))
	assert.Equal(t, "GET", wf.Operations["a"].Args["method"])
}

func TestParse_RejectsBatchedForm(t *testing.T) {
	input := `{"type":"operationUpdate","operations":[{"operationId":"a"}]}`
	_, err := Parse([]byte(input))
	require.Error(t, err)
}

func TestParse_RejectsBeginExecutionNotLast(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"beginExecution","executionId":"e1","operationOrder":["a"]}`,
		`{"type":"operationUpdate","operationId":"a","operation":{"Wait":{"duration":0}}}`,
	}, "\n")
	_, err := Parse([]byte(input))
	require.Error(t, err)
}

func TestParse_RejectsDuplicateOperationID(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"operationUpdate","operationId":"a","operation":{"Wait":{"duration":0}}}`,
		`{"type":"operationUpdate","operationId":"a","operation":{"Wait":{"duration":0}}}`,
		`{"type":"beginExecution","executionId":"e1","operationOrder":["a"]}`,
	}, "\n")
	_, err := Parse([]byte(input))
	require.Error(t, err)
}

func TestParse_RejectsEmptyOrder(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"operationUpdate","operationId":"a","operation":{"Wait":{"duration":0}}}`,
		`{"type":"beginExecution","executionId":"e1","operationOrder":[]}`,
	}, "\n")
	_, err := Parse([]byte(input))
	require.Error(t, err)
}

func TestParse_RejectsMissingBeginExecution(t *testing.T) {
	input := `{"type":"operationUpdate","operationId":"a","operation":{"Wait":{"duration":0}}}`
	_, err := Parse([]byte(input))
	require.Error(t, err)
}

func TestParse_RejectsOrderReferencingUndefinedID(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"operationUpdate","operationId":"a","operation":{"Wait":{"duration":0}}}`,
		`{"type":"beginExecution","executionId":"e1","operationOrder":["a","b"]}`,
	}, "\n")
	_, err := Parse([]byte(input))
	require.Error(t, err)
}

func TestParse_IgnoresEmptyLines(t *testing.T) {
	input := strings.Join([]string{
		"",
		`{"type":"operationUpdate","operationId":"a","operation":{"Wait":{"duration":0}}}`,
		"",
		`{"type":"beginExecution","executionId":"e1","operationOrder":["a"]}`,
		"",
	}, "\n")
	wf, err := Parse([]byte(input))
	require.NoError(t, err)
	assert.Len(t, wf.Operations, 1)
}
