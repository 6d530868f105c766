package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Document(t *testing.T) {
	raw := []byte(`{"nodes":[
		{"id":"function_1_op_1","operation_type":"PythonCode","dependencies":[],
		 "details":{"code":"result = [4, 1, 3]","use_sandbox":true}},
		{"id":"function_1_op_2","operation_type":"SQLQuery","dependencies":["function_1_op_1"],
		 "details":{"query":"SELECT ?","params":[1]}},
		{"id":"function_1_op_3","operation_type":"Print","dependencies":[],
		 "details":{"value_ref":"function_1_op_1"}},
		{"id":"function_1_op_4","operation_type":"Return","dependencies":[],
		 "details":{"function_ref":"previous"}}
	]}`)

	nodes, err := Decode("function_1", raw)
	require.NoError(t, err)
	require.Len(t, nodes, 4)

	assert.Equal(t, OpPythonCode, nodes[0].Type)
	assert.Equal(t, PythonCode{Code: "result = [4, 1, 3]", UseSandbox: true}, nodes[0].Details)

	sql, ok := nodes[1].Details.(SQLQuery)
	require.True(t, ok)
	assert.Equal(t, "SELECT ?", sql.Query)
	assert.Len(t, sql.Params, 1)

	assert.Equal(t, Print{Ref{ValueRef: "function_1_op_1"}}, nodes[2].Details)
	assert.Equal(t, Return{Ref{FunctionRef: PreviousFunction}}, nodes[3].Details)
}

func TestDecode_BareArrayAndMissingDetails(t *testing.T) {
	nodes, err := Decode("function_1", []byte(`[{"id":"a","operation_type":"PythonCode"}]`))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, PythonCode{}, nodes[0].Details)
}

func TestDecode_UnknownOperationType(t *testing.T) {
	_, err := Decode("function_1", []byte(`[{"id":"a","operation_type":"Shell","details":{}}]`))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "a", perr.NodeID)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode("function_1", []byte(`{"nodes":[`))
	require.ErrorIs(t, err, ErrMalformed)

	var perr *ParseError
	assert.False(t, errors.As(err, &perr))

	_, err = Decode("function_1", []byte("  "))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestEncode_RoundTripsThroughDecode(t *testing.T) {
	g, err := Compile("function_1", []Node{
		{ID: "a", Type: OpDataTransform, Details: DataTransform{TransformType: "sort", Args: map[string]any{"desc": true}}},
		{ID: "b", Type: OpFileIO, Dependencies: []string{"a"}, Details: FileIO{Operation: "write", Path: "out.json", Format: "json", ValueRef: "a"}},
	}, nil)
	require.NoError(t, err)

	data, err := Encode(g)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"function_id": "function_1"`)

	nodes, err := Decode("function_1", data)
	require.NoError(t, err)
	assert.Equal(t, g.Nodes(), nodes)
}
