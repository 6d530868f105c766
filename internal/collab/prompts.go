package collab

import (
	"fmt"
	"strings"

	"github.com/wonhochoi1/nature/internal/sandbox"
)

func irPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You convert natural language function instructions into a JSON intermediate representation (IR).

The IR is an object {"nodes": [...]} where each node has:
- id: unique identifier, use "%[1]s_op_N" where N is the operation number
- operation_type: one of "PythonCode", "SQLQuery", "DataTransform", "FileIO", "Print", "Return"
- dependencies: ids of earlier nodes of this function, or names of earlier functions ("function_1", ...)
- details: operation specific object

Details per operation type:
- PythonCode: {"code": string, "use_sandbox": true}. Store the outcome in a variable named "result".
- SQLQuery: {"query": string, "params": [values]}. Use ? placeholders, never inline values. SQLite dialect.
- DataTransform: {"transform_type": "filter"|"map"|"sort"|"groupby"|"aggregate"|"expression", "input_ref": id, "args": {"expr": string, "key": string, "field": string, "desc": bool, "op": "sum"|"mean"|"min"|"max"|"count"}}
- FileIO: {"operation_type": "read"|"write", "path": relative path, "format": "text"|"json"|"csv"|"yaml", "value_ref": id}
- Print: {"value_ref": id} or {"function_ref": "previous"|"function_N"}
- Return: {"value_ref": id} or {"function_ref": "previous"|"function_N"}

`, req.FunctionID)
	b.WriteString(codeRules())
	writeFeedback(&b, req.Feedback)
	fmt.Fprintf(&b, "\nINSTRUCTION: %s\n\nRespond with the JSON object only.\n", req.Instructions)
	return b.String()
}

func codePrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Generate code for the following instruction. Make sure the result is stored in a variable named 'result'.\n")
	b.WriteString("Keep the implementation focused solely on the task. Just provide the code with no explanations or markdown formatting.\n\n")
	b.WriteString(codeRules())
	writeFeedback(&b, req.Feedback)
	fmt.Fprintf(&b, "\nInstruction: %s\n", req.Instructions)
	return b.String()
}

// codeRules describes the restricted interpreter code runs in.
func codeRules() string {
	return fmt.Sprintf(`Code runs in a restricted Python dialect (Starlark):
- no import, class, try/except, f-strings, or "is"; no file, network or process access
- lists have no sort(): use sorted(); results of earlier functions are variables named after them (function_1, ...) and "previous"
- only these names are predefined: %s
`, strings.Join(sandbox.Names(), ", "))
}

func writeFeedback(b *strings.Builder, feedback string) {
	if feedback == "" {
		return
	}
	fmt.Fprintf(b, "\nThe previous attempt failed. Fix it.\n%s\n", feedback)
}

func suggestPrompt(instructions, trace, code string) string {
	return fmt.Sprintf(`You are debugging code that was generated from natural language instructions.

Instructions: %s

Generated code:
%s

Error message:
%s

Suggest a change to the code that would fix the error.
`, instructions, code, trace)
}
