// Package collabtest provides scripted collaborators for tests.
package collabtest

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/wonhochoi1/nature/internal/collab"
)

// Reply is one scripted answer. Text is interpreted like a backend answer
// unless Err is set.
type Reply struct {
	Text string
	Err  error
}

// Generator answers requests from a script, in order. When the script is
// exhausted the last reply repeats.
type Generator struct {
	mu       sync.Mutex
	Script   []Reply
	Requests []collab.Request
}

func NewGenerator(replies ...Reply) *Generator {
	return &Generator{Script: replies}
}

// Code builds a reply carrying a plain code body.
func Code(src string) Reply {
	return Reply{Text: src}
}

// Unavailable builds a reply failing with collab.ErrUnavailable.
func Unavailable() Reply {
	return Reply{Err: collab.ErrUnavailable}
}

func (g *Generator) Generate(_ context.Context, req collab.Request) (*collab.Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Requests = append(g.Requests, req)
	if len(g.Script) == 0 {
		return nil, collab.ErrUnavailable
	}
	idx := len(g.Requests) - 1
	if idx >= len(g.Script) {
		idx = len(g.Script) - 1
	}
	reply := g.Script[idx]
	if reply.Err != nil {
		return nil, reply.Err
	}
	gen, err := collab.Interpret(req.FunctionID, reply.Text)
	if err != nil {
		return nil, err
	}
	gen.Source = "scripted"
	return gen, nil
}

func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}

// Suggester returns a fixed suggestion and records the traces it saw.
type Suggester struct {
	mu     sync.Mutex
	Text   string
	Err    error
	Traces []string
}

func (s *Suggester) Suggest(_ context.Context, _, trace, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Traces = append(s.Traces, trace)
	if s.Err != nil {
		return "", s.Err
	}
	return s.Text, nil
}

// Cache is an in-memory collab.Cache.
type Cache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewCache() *Cache {
	return &Cache{items: make(map[string][]byte)}
}

func (c *Cache) Get(key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (c *Cache) Set(key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = data
	return nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
