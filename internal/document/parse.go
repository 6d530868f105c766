// Package document splits a Nature document into its instruction blocks.
package document

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wonhochoi1/nature/internal/engine"
)

// Extension is the recommended file extension of a document.
const Extension = ".nature"

const marker = "function:"

// Blocks returns the instruction text of every block in document order.
// A line starting with "function:" opens a block, text after the marker
// being its first line. Blank lines are skipped, lines before the first
// marker form a block of their own and blocks without text are dropped.
func Blocks(text string) []string {
	var (
		blocks  []string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(line) >= len(marker) && strings.EqualFold(line[:len(marker)], marker) {
			flush()
			if rest := strings.TrimSpace(line[len(marker):]); rest != "" {
				current = append(current, rest)
			}
			continue
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

// Parse returns the function definitions of text, named function_1,
// function_2, ... in order.
func Parse(text string) []*engine.FunctionDefinition {
	return engine.Definitions(Blocks(text))
}

// Load reads and parses a document file. hasExt is false when the file does
// not carry the recommended extension.
func Load(path string) (defs []*engine.FunctionDefinition, hasExt bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read document: %w", err)
	}
	return Parse(string(data)), strings.EqualFold(filepath.Ext(path), Extension), nil
}
