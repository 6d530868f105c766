package response

import (
	"github.com/wonhochoi1/nature/internal/engine"
)

type FunctionDTO struct {
	Name         string `json:"name"`
	Instructions string `json:"instructions"`
}

type ParseResponse struct {
	Functions []FunctionDTO `json:"functions"`
}

type FunctionResultDTO struct {
	Name        string              `json:"name"`
	State       engine.State        `json:"state"`
	Value       any                 `json:"value,omitempty"`
	Error       string              `json:"error,omitempty"`
	Kind        string              `json:"kind,omitempty"`
	Attempts    int                 `json:"attempts"`
	Source      string              `json:"source,omitempty"`
	Diagnostic  string              `json:"diagnostic,omitempty"`
	Suggestion  string              `json:"suggestion,omitempty"`
	Output      []string            `json:"output,omitempty"`
	Transitions []engine.Transition `json:"transitions"`
	Keys        []string            `json:"keys"`
}

type RunResponse struct {
	RunID      string              `json:"runId"`
	Functions  []FunctionResultDTO `json:"functions"`
	Displayed  []string            `json:"displayed"`
	Context    map[string]any      `json:"context"`
	Succeeded  int                 `json:"succeeded"`
	Failed     int                 `json:"failed"`
	DurationMs int64               `json:"durationMs"`
}

func NewParseResponse(defs []*engine.FunctionDefinition) ParseResponse {
	out := ParseResponse{Functions: make([]FunctionDTO, 0, len(defs))}
	for _, d := range defs {
		out.Functions = append(out.Functions, FunctionDTO{Name: d.Name, Instructions: d.Instructions})
	}
	return out
}

func NewRunResponse(report *engine.RunReport) RunResponse {
	out := RunResponse{
		RunID:      report.RunID,
		Functions:  make([]FunctionResultDTO, 0, len(report.Functions)),
		Displayed:  report.Displayed,
		Context:    report.Values,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
		DurationMs: report.Duration.Milliseconds(),
	}
	for _, f := range report.Functions {
		dto := FunctionResultDTO{
			Name:        f.Name,
			State:       f.State,
			Value:       f.Value,
			Attempts:    f.Attempts,
			Source:      f.Source,
			Diagnostic:  f.Diagnostic,
			Suggestion:  f.Suggestion,
			Output:      f.Output,
			Transitions: f.Transitions,
			Keys:        f.Keys,
		}
		if f.Err != nil {
			dto.Error = f.Err.Error()
			dto.Kind = engine.KindOf(f.Err).Error()
		}
		out.Functions = append(out.Functions, dto)
	}
	return out
}
