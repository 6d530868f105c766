package collab

import (
	"context"
	"strconv"
)

// Stub generates a placeholder body without any backend. The same
// instructions always produce the same code.
type Stub struct{}

func (Stub) Generate(_ context.Context, req Request) (*Generation, error) {
	code := StubCode(req.Instructions)
	return &Generation{Code: code, Source: SourceStub, Raw: code}, nil
}

// Suggest always answers with the fallback advice.
func (Stub) Suggest(_ context.Context, _, trace, _ string) (string, error) {
	return FallbackSuggestion(trace), nil
}

func StubCode(instructions string) string {
	runes := []rune(instructions)
	if len(runes) > 50 {
		runes = runes[:50]
	}
	return "result = " + strconv.Quote("Completed instruction: "+string(runes)+"...")
}
