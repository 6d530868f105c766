package collab

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRawResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

type ollamaApiCall struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   map[string]any  `json:"format,omitempty"`
	Options  map[string]any  `json:"options"`
}

const defaultOllamaModel = "qwen3-coder:30b"

// OllamaClient talks to the /api/chat endpoint of an Ollama server.
type OllamaClient struct {
	host   string
	model  string
	client *http.Client
}

func NewOllamaClient(host, model string, client *http.Client) *OllamaClient {
	if client == nil {
		client = &http.Client{}
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaClient{host: strings.TrimRight(host, "/"), model: model, client: client}
}

func (slf *OllamaClient) Complete(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	call := ollamaApiCall{
		Model:    slf.model,
		Messages: []ollamaMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Format:   schema,
		Options: map[string]any{
			"temperature": 0,
		},
	}
	data, err := json.Marshal(call)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/chat", slf.host), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := slf.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var raw ollamaRawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("ollama returned %d: %w", resp.StatusCode, err)
	}
	if raw.Error != "" {
		return "", fmt.Errorf("ollama: %s", raw.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned %d", resp.StatusCode)
	}
	if !raw.Done {
		return "", fmt.Errorf("llama call not done")
	}
	return raw.Message.Content, nil
}
