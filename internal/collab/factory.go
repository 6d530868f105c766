package collab

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Provider   string
	Model      string
	OllamaHost string
	APIKey     string
	Timeout    time.Duration
}

// New returns the backend selected by cfg. An empty provider yields a nil
// LLM: functions then run on stubs and failures are not regenerated.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*LLM, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "ollama":
		client := &http.Client{Timeout: cfg.Timeout}
		return NewLLM(NewOllamaClient(cfg.OllamaHost, cfg.Model, client), "ollama", logger), nil
	default:
		model, err := NewLangChainModel(ctx, cfg.Provider, cfg.Model, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return NewLLM(NewLangChainClient(model), cfg.Provider, logger), nil
	}
}
