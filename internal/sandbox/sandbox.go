package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ResultName is the variable code binds its outcome to.
const ResultName = "result"

const filename = "generated.py"

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// SyntaxError is returned when code fails the static check. The body has not
// run.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
	// Undefined lists the unknown names when those are the only problem.
	Undefined []string
}

func (e *SyntaxError) Error() string {
	if e.Line == 0 {
		return "syntax error: " + e.Msg
	}
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Col, e.Msg)
}

// RuntimeError is raised by code while it executes.
type RuntimeError struct {
	Msg       string
	Backtrace string
}

func (e *RuntimeError) Error() string {
	return e.Msg
}

// Outcome is what a successful run produced.
type Outcome struct {
	// Result is nil when the code never bound ResultName.
	Result any
	Bound  bool
	// Output holds the lines written with print().
	Output []string
}

// Sandbox runs generated code with access to the allow-list table and the
// values injected for the run, nothing else. It bounds execution steps but is
// not an isolation boundary.
type Sandbox struct {
	maxSteps uint64
	logger   zerolog.Logger
}

func New(maxSteps uint64, logger zerolog.Logger) *Sandbox {
	return &Sandbox{maxSteps: maxSteps, logger: logger}
}

// Check parses src and resolves every name it uses against the allow-list
// and the injected names.
func (slf *Sandbox) Check(src string, injected ...string) error {
	names := make(map[string]bool, len(injected))
	for _, name := range injected {
		names[name] = true
	}
	return check(src, func(name string) bool {
		return allowList.Has(name) || names[name]
	})
}

func check(src string, isPredeclared func(string) bool) error {
	f, err := fileOptions.Parse(filename, src, 0)
	if err != nil {
		return toSyntaxError(err)
	}
	if err := resolve.File(f, isPredeclared, func(string) bool { return false }); err != nil {
		return toSyntaxError(err)
	}
	return nil
}

// Run checks then executes src. Context entries whose keys are identifiers
// are visible to the code as read-only copies.
func (slf *Sandbox) Run(ctx context.Context, src string, globals map[string]any) (*Outcome, error) {
	predeclared := make(starlark.StringDict, len(allowList)+len(globals))
	for key, value := range globals {
		if !IsIdentifier(key) || allowList.Has(key) {
			continue
		}
		v, err := ToValue(value)
		if err != nil {
			return nil, &RuntimeError{Msg: fmt.Sprintf("cannot expose %s: %v", key, err)}
		}
		predeclared[key] = v
	}
	for name, v := range allowList {
		predeclared[name] = v
	}

	if err := check(src, predeclared.Has); err != nil {
		return nil, err
	}

	out := &Outcome{}
	thread := &starlark.Thread{
		Name: "sandbox",
		Print: func(_ *starlark.Thread, msg string) {
			out.Output = append(out.Output, msg)
		},
	}
	if slf.maxSteps > 0 {
		thread.SetMaxExecutionSteps(slf.maxSteps)
	}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	module, err := starlark.ExecFileOptions(fileOptions, thread, filename, src, predeclared)
	slf.logger.Trace().Uint64("steps", thread.ExecutionSteps()).Msg("sandbox run finished")
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return out, &RuntimeError{Msg: evalErr.Msg, Backtrace: evalErr.Backtrace()}
		}
		return out, &RuntimeError{Msg: err.Error()}
	}

	if v, ok := module[ResultName]; ok {
		result, err := FromValue(v)
		if err != nil {
			return out, &RuntimeError{Msg: fmt.Sprintf("cannot use %s: %v", ResultName, err)}
		}
		out.Result = result
		out.Bound = true
	}
	return out, nil
}

func toSyntaxError(err error) *SyntaxError {
	var serr syntax.Error
	if errors.As(err, &serr) {
		return &SyntaxError{Line: int(serr.Pos.Line), Col: int(serr.Pos.Col), Msg: serr.Msg}
	}
	var list resolve.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		msgs := make([]string, 0, len(list))
		var undefined []string
		for _, e := range list {
			msgs = append(msgs, e.Msg)
			if name, ok := undefinedName(e.Msg); ok && len(undefined) == len(msgs)-1 {
				undefined = append(undefined, name)
			}
		}
		if len(undefined) != len(list) {
			undefined = nil
		}
		return &SyntaxError{Line: int(first.Pos.Line), Col: int(first.Pos.Col), Msg: strings.Join(msgs, "; "), Undefined: undefined}
	}
	return &SyntaxError{Msg: err.Error()}
}

// undefinedName extracts the name of an "undefined: x" resolver message.
func undefinedName(msg string) (string, bool) {
	rest, ok := strings.CutPrefix(msg, "undefined: ")
	if !ok {
		return "", false
	}
	name, _, _ := strings.Cut(rest, " ")
	return name, name != ""
}

// IsIdentifier reports whether key can be referenced by name from code.
func IsIdentifier(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
