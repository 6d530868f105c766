package ir

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrMalformed marks a payload that is not a readable IR document at all, as
// opposed to a readable one describing an invalid graph.
var ErrMalformed = errors.New("malformed IR document")

type wireNode struct {
	ID            string          `json:"id"`
	OperationType OperationType   `json:"operation_type"`
	Dependencies  []string        `json:"dependencies"`
	Details       json.RawMessage `json:"details"`
}

type wireDocument struct {
	Nodes []wireNode `json:"nodes"`
}

// Decode reads the JSON node list produced by a generator. Both
// {"nodes":[...]} and a bare array are accepted.
func Decode(functionID string, data []byte) ([]Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", functionID, ErrMalformed)
	}

	var wire []wireNode
	if data[0] == '[' {
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", functionID, ErrMalformed, err)
		}
	} else {
		var doc wireDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", functionID, ErrMalformed, err)
		}
		wire = doc.Nodes
	}

	nodes := make([]Node, 0, len(wire))
	for _, w := range wire {
		details, err := decodeDetails(w.OperationType, w.Details)
		if err != nil {
			return nil, parseErrorf(functionID, w.ID, "%v", err)
		}
		var deps []string
		if len(w.Dependencies) > 0 {
			deps = w.Dependencies
		}
		nodes = append(nodes, Node{
			ID:           w.ID,
			Type:         w.OperationType,
			Dependencies: deps,
			Details:      details,
		})
	}
	return nodes, nil
}

func decodeDetails(op OperationType, raw json.RawMessage) (Details, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}

	var (
		details Details
		err     error
	)
	switch op {
	case OpPythonCode:
		var d PythonCode
		err = json.Unmarshal(raw, &d)
		details = d
	case OpSQLQuery:
		var d SQLQuery
		err = json.Unmarshal(raw, &d)
		details = d
	case OpDataTransform:
		var d DataTransform
		err = json.Unmarshal(raw, &d)
		details = d
	case OpFileIO:
		var d FileIO
		err = json.Unmarshal(raw, &d)
		details = d
	case OpPrint:
		var d Print
		err = json.Unmarshal(raw, &d)
		details = d
	case OpReturn:
		var d Return
		err = json.Unmarshal(raw, &d)
		details = d
	default:
		return nil, fmt.Errorf("unknown operation type %q", op)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s details: %w", op, err)
	}
	return details, nil
}

// Encode writes a graph back to the wire format, in declaration order.
func Encode(g *Graph) ([]byte, error) {
	doc := struct {
		FunctionID string `json:"function_id"`
		Nodes      []any  `json:"nodes"`
	}{FunctionID: g.FunctionID}

	for _, node := range g.nodes {
		deps := node.Dependencies
		if deps == nil {
			deps = []string{}
		}
		doc.Nodes = append(doc.Nodes, struct {
			ID            string        `json:"id"`
			OperationType OperationType `json:"operation_type"`
			Dependencies  []string      `json:"dependencies"`
			Details       Details       `json:"details"`
		}{node.ID, node.Type, deps, node.Details})
	}
	return json.MarshalIndent(doc, "", "  ")
}
