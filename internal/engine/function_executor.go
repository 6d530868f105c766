package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wonhochoi1/nature/internal/collab"
	"github.com/wonhochoi1/nature/internal/engine/ir"
	"github.com/wonhochoi1/nature/internal/engine/lib"
)

// State of a function in its lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateGenerating State = "generating"
	StateRunning    State = "running"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// ErrorKeySuffix names the context entry recording a function's failure.
const ErrorKeySuffix = "_error"

// FunctionName returns the name of the n-th function of a document.
func FunctionName(n int) string {
	return fmt.Sprintf("function_%d", n)
}

// ErrorKey returns the context key under which function's failure is recorded.
func ErrorKey(function string) string {
	return function + ErrorKeySuffix
}

// FunctionDefinition is one instruction block of a document.
type FunctionDefinition struct {
	Name         string
	Instructions string
	// Generated is the validated graph of the latest generation.
	Generated *ir.Graph
}

// Transition is one recorded state change.
type Transition struct {
	From    State `json:"from"`
	To      State `json:"to"`
	Attempt int   `json:"attempt"`
}

// FunctionResult summarizes how a function ended.
type FunctionResult struct {
	Name       string
	State      State
	Value      any
	Err        error
	Attempts   int
	Diagnostic string
	Suggestion string
	// Source names the collaborator that produced the final body.
	Source string
	// GenerationErr is set when the generator failed and the stub was used.
	GenerationErr error
	Transitions   []Transition
	Keys          []string
	Output        []string
	Graph         *ir.Graph
}

func (r *FunctionResult) transition(to State, attempt int) {
	r.Transitions = append(r.Transitions, Transition{From: r.State, To: to, Attempt: attempt})
	r.State = to
}

// FunctionExecutor drives one function from generation to a final state.
type FunctionExecutor struct {
	generator  collab.Generator
	dispatcher *Dispatcher
	recovery   *Recovery
	timeout    time.Duration
	report     lib.ProgressFunc
	logger     zerolog.Logger
}

func NewFunctionExecutor(generator collab.Generator, dispatcher *Dispatcher, recovery *Recovery, timeout time.Duration, report lib.ProgressFunc, logger zerolog.Logger) *FunctionExecutor {
	if report == nil {
		report = func(lib.Progress) {}
	}
	return &FunctionExecutor{
		generator:  generator,
		dispatcher: dispatcher,
		recovery:   recovery,
		timeout:    timeout,
		report:     report,
		logger:     logger,
	}
}

// Execute generates, validates and runs fn against ec. Failures are recorded
// in the result and under ErrorKey in ec; they never abort the run.
func (fx *FunctionExecutor) Execute(ctx context.Context, ec *ExecutionContext, fn *FunctionDefinition) *FunctionResult {
	res := &FunctionResult{Name: fn.Name, State: StatePending}
	logger := fx.logger.With().Str("function", fn.Name).Logger()
	b := &budget{}
	feedback := ""

	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1
		res.Graph = nil
		res.transition(StateGenerating, attempt)
		fx.report(lib.Progress{Function: fn.Name, Status: lib.StatusGenerating, Attempt: attempt})
		logger.Debug().Int("attempt", attempt).Msg("Generating function body")

		graph, err := fx.generate(ctx, ec, fn, res, attempt, feedback)
		if graph != nil {
			fn.Generated = graph
			res.Graph = graph
		}
		var failed *Error
		if err == nil {
			res.transition(StateRunning, attempt)
			fx.report(lib.Progress{Function: fn.Name, Status: lib.StatusRunning, Attempt: attempt})

			value, output, runErr := fx.run(ctx, ec, fn.Name, graph)
			res.Output = output
			if runErr == nil {
				res.transition(StateSucceeded, attempt)
				res.Value = value
				res.Err = nil
				ec.Publish(fn.Name, value)
				ec.Delete(ErrorKey(fn.Name))
				res.Keys = ec.Keys()
				fx.report(lib.Progress{Function: fn.Name, Status: lib.StatusSucceeded, Attempt: attempt})
				logger.Info().Int("attempt", attempt).Msg("Function succeeded")
				return res
			}
			failed = classify(fn.Name, "", runErr)
		} else {
			failed = classify(fn.Name, "", err)
		}

		res.transition(StateFailed, attempt)
		res.Err = failed
		diag := Diagnostic{
			Function:     fn.Name,
			Instructions: fn.Instructions,
			Code:         bodyOf(res.Graph),
			Trace:        FormatTrace(failed),
			Kind:         failed.Kind,
			NodeID:       failed.NodeID,
			Attempt:      attempt,
		}
		res.Diagnostic = diag.Trace
		logger.Warn().Err(failed).Int("attempt", attempt).Msg("Function attempt failed")

		decision := fx.recovery.Decide(ctx, diag, b, fx.generator != nil)
		res.Suggestion = decision.Suggestion
		if !decision.Retry {
			ec.Set(ErrorKey(fn.Name), failed.Error())
			res.Keys = ec.Keys()
			fx.report(lib.Progress{Function: fn.Name, Status: lib.StatusFailed, Attempt: attempt, Message: failed.Error()})
			return res
		}
		feedback = decision.Feedback
		fx.report(lib.Progress{Function: fn.Name, Status: lib.StatusRecovering, Attempt: attempt + 1, Message: decision.Suggestion})
	}
}

// generate asks the collaborator for a body and validates it. A first
// attempt that cannot reach a collaborator falls back to the stub. A body
// whose code fails the static check is returned with the error, unrun.
func (fx *FunctionExecutor) generate(ctx context.Context, ec *ExecutionContext, fn *FunctionDefinition, res *FunctionResult, attempt int, feedback string) (*ir.Graph, error) {
	req := collab.Request{
		FunctionID:   fn.Name,
		Instructions: fn.Instructions,
		Feedback:     feedback,
		Attempt:      attempt,
	}

	gen, err := fx.request(ctx, req)
	if err == nil && gen.Empty() {
		req.WantCode = true
		gen, err = fx.request(ctx, req)
		if err == nil && gen.Empty() {
			err = fmt.Errorf("%w: empty body", collab.ErrInvalidPayload)
		}
	}

	if err != nil {
		var perr *ir.ParseError
		if errors.As(err, &perr) {
			return nil, newError(ErrParse, fn.Name, perr.NodeID, err)
		}
		if attempt > 0 {
			return nil, newError(ErrGeneration, fn.Name, "", err)
		}
		fx.logger.Warn().Err(err).Str("function", fn.Name).Msg("Code generation failed, using stub")
		res.GenerationErr = newError(ErrGeneration, fn.Name, "", err)
		gen, _ = collab.Stub{}.Generate(ctx, req)
	}
	res.Source = gen.Source

	nodes := gen.Nodes
	if len(nodes) == 0 {
		nodes = []ir.Node{codeNode(fn.Name, gen.Code)}
	}
	graph, err := ir.Compile(fn.Name, nodes, ec.Has)
	if err != nil {
		return nil, err
	}
	if err := fx.dispatcher.CheckCode(ec, fn.Name, graph); err != nil {
		return graph, err
	}
	return graph, nil
}

func (fx *FunctionExecutor) request(ctx context.Context, req collab.Request) (*collab.Generation, error) {
	if fx.generator == nil {
		return collab.Stub{}.Generate(ctx, req)
	}
	if fx.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fx.timeout)
		defer cancel()
	}
	gen, err := fx.generator.Generate(ctx, req)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: timed out after %s", collab.ErrUnavailable, fx.timeout)
	}
	return gen, err
}

// undo restores a key written by a failed attempt.
type undo struct {
	key     string
	prev    any
	existed bool
}

// run dispatches the graph in order. On failure every key the attempt wrote
// is restored and its displayed lines and session store writes are dropped.
func (fx *FunctionExecutor) run(ctx context.Context, ec *ExecutionContext, function string, graph *ir.Graph) (any, []string, error) {
	cp, err := ec.Checkpoint(ctx, usesSession(graph))
	if err != nil {
		return nil, nil, err
	}

	var (
		value  any
		output []string
		undos  []undo
	)
	rollback := func() {
		for i := len(undos) - 1; i >= 0; i-- {
			u := undos[i]
			if u.existed {
				ec.Set(u.key, u.prev)
			} else {
				ec.Delete(u.key)
			}
		}
		if err := ec.Rollback(ctx, cp); err != nil {
			fx.logger.Warn().Err(err).Str("function", function).Msg("Session store rollback failed")
		}
	}

	for _, node := range graph.Ordered() {
		fx.report(lib.Progress{Function: function, NodeID: node.ID, Status: lib.StatusRunning})

		res, err := fx.dispatcher.Dispatch(ctx, ec, function, node)
		output = append(output, res.Output...)
		if err != nil {
			rollback()
			return nil, output, err
		}

		prev, getErr := ec.Get(node.ID)
		undos = append(undos, undo{key: node.ID, prev: prev, existed: getErr == nil})
		ec.Set(node.ID, res.Value)
		value = res.Value
		if res.Halt {
			break
		}
	}

	if err := ec.Release(ctx, cp); err != nil {
		rollback()
		return nil, output, err
	}
	return value, output, nil
}

// usesSession reports whether any node of graph runs on the session store.
func usesSession(graph *ir.Graph) bool {
	for _, node := range graph.Nodes() {
		if q, ok := node.Details.(ir.SQLQuery); ok && q.Connection == "" {
			return true
		}
	}
	return false
}

// codeNode wraps a plain code body as the single node of a function.
func codeNode(function, code string) ir.Node {
	return ir.Node{
		ID:      function + "_op_1",
		Type:    ir.OpPythonCode,
		Details: ir.PythonCode{Code: code, UseSandbox: true},
	}
}

// bodyOf renders a graph for diagnostics: the code of a single code node, the
// IR document otherwise.
func bodyOf(g *ir.Graph) string {
	if g == nil {
		return ""
	}
	nodes := g.Nodes()
	if len(nodes) == 1 {
		if pc, ok := nodes[0].Details.(ir.PythonCode); ok {
			return pc.Code
		}
	}
	data, err := ir.Encode(g)
	if err != nil {
		return ""
	}
	return string(data)
}
