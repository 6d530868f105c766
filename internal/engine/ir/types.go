package ir

// OperationType is the kind of a node
type OperationType string

const (
	OpPythonCode    OperationType = "PythonCode"
	OpSQLQuery      OperationType = "SQLQuery"
	OpDataTransform OperationType = "DataTransform"
	OpFileIO        OperationType = "FileIO"
	OpPrint         OperationType = "Print"
	OpReturn        OperationType = "Return"
)

// Valid reports whether t is one of the six recognized kinds
func (t OperationType) Valid() bool {
	switch t {
	case OpPythonCode, OpSQLQuery, OpDataTransform, OpFileIO, OpPrint, OpReturn:
		return true
	default:
		return false
	}
}

// Details is the operation-specific payload of a node
type Details interface {
	irDetails()
	// refs returns the ids this payload reads from the context
	refs() []string
}

// Node is one operation in a function's graph
type Node struct {
	ID           string
	Type         OperationType
	Dependencies []string
	Details      Details
}

// Inputs returns the declared dependencies followed by the ids referenced by
// the payload, without duplicates.
func (n Node) Inputs() []string {
	seen := make(map[string]bool, len(n.Dependencies))
	out := make([]string, 0, len(n.Dependencies))
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, dep := range n.Dependencies {
		add(dep)
	}
	if n.Details != nil {
		for _, ref := range n.Details.refs() {
			add(ref)
		}
	}
	return out
}

// PythonCode runs a code body in the restricted interpreter
type PythonCode struct {
	Code string `json:"code"`
	// UseSandbox is accepted for compatibility; code always runs restricted.
	UseSandbox bool `json:"use_sandbox"`
}

func (PythonCode) irDetails()     {}
func (PythonCode) refs() []string { return nil }

// SQLQuery runs a statement on the session store or a named connection
type SQLQuery struct {
	Query  string `json:"query"`
	Params []any  `json:"params,omitempty"`
	// Connection names an external connection; empty means the session store.
	Connection string `json:"connection,omitempty"`
}

func (SQLQuery) irDetails()     {}
func (SQLQuery) refs() []string { return nil }

// DataTransform applies a row-wise transformation to a referenced value
type DataTransform struct {
	TransformType string         `json:"transform_type"`
	InputRef      string         `json:"input_ref,omitempty"`
	Args          map[string]any `json:"args,omitempty"`
}

func (DataTransform) irDetails()       {}
func (d DataTransform) refs() []string { return []string{d.InputRef} }

// FileIO reads or writes a file below the sandbox root
type FileIO struct {
	Operation string `json:"operation_type"` // "read" or "write"
	Path      string `json:"path"`
	Format    string `json:"format,omitempty"` // text, json, csv, yaml
	ValueRef  string `json:"value_ref,omitempty"`
}

func (FileIO) irDetails()       {}
func (f FileIO) refs() []string { return []string{f.ValueRef} }

// Ref points at a value in the context. FunctionRef is either "previous" or a
// function name and is resolved when the node runs.
type Ref struct {
	ValueRef    string `json:"value_ref,omitempty"`
	FunctionRef string `json:"function_ref,omitempty"`
}

// Print displays a referenced value and passes it through
type Print struct {
	Ref
}

func (Print) irDetails()       {}
func (p Print) refs() []string { return []string{p.ValueRef} }

// Return ends the function with a referenced value
type Return struct {
	Ref
}

func (Return) irDetails()       {}
func (r Return) refs() []string { return []string{r.ValueRef} }

// PreviousFunction is the FunctionRef alias for the most recently completed function
const PreviousFunction = "previous"
