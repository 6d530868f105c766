package engine

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/wonhochoi1/nature/internal/engine/ir"
	"github.com/wonhochoi1/nature/internal/engine/lib"
	"gopkg.in/yaml.v3"
)

// FileIO formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

var errNoFileRoot = errors.New("file access is disabled: no file root configured")

func (d *Dispatcher) executeFileIO(ec *ExecutionContext, node ir.Node, details ir.FileIO) (any, error) {
	path, err := confine(ec.FileRoot(), details.Path)
	if err != nil {
		return nil, err
	}
	format := details.Format
	if format == "" {
		format = formatFromExt(details.Path)
	}

	switch strings.ToLower(details.Operation) {
	case "read":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", details.Path, err)
		}
		return decodeFile(format, data)

	case "write":
		value, ok, err := inputOf(ec, node, details.ValueRef)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, dependencyErrorf("write to %s names no value", details.Path)
		}
		data, err := encodeFile(format, value)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", details.Path, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", details.Path, err)
		}
		d.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("File written")
		return len(data), nil

	default:
		return nil, fmt.Errorf("unsupported file operation %q", details.Operation)
	}
}

// confine resolves p inside root. Absolute paths and ".." segments cannot
// leave it, and neither can symlinks below root.
func confine(root, p string) (string, error) {
	if root == "" {
		return "", errNoFileRoot
	}
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty file path")
	}

	realRoot, err := resolveExisting(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve file root: %w", err)
	}
	target, err := resolveExisting(filepath.Join(realRoot, filepath.Clean("/"+p)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", p, err)
	}
	rel, err := filepath.Rel(realRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s leaves the file root", p)
	}
	return target, nil
}

// resolveExisting follows the symlinks of the longest existing prefix of p
// and appends the part that does not exist yet.
func resolveExisting(p string) (string, error) {
	var missing []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if _, lerr := os.Lstat(cur); lerr == nil {
			return "", fmt.Errorf("%s is a broken symlink", cur)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		missing = append([]string{filepath.Base(cur)}, missing...)
		cur = parent
	}
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatText
	}
}

func decodeFile(format string, data []byte) (any, error) {
	switch format {
	case FormatText:
		return string(data), nil
	case FormatJSON:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return v, nil
	case FormatYAML:
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		return v, nil
	case FormatCSV:
		records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		if err != nil {
			return nil, fmt.Errorf("invalid CSV: %w", err)
		}
		rows := []any{}
		if len(records) == 0 {
			return rows, nil
		}
		header := records[0]
		for _, rec := range records[1:] {
			row := make(map[string]any, len(header))
			for i, col := range header {
				if i < len(rec) {
					row[col] = rec[i]
				}
			}
			rows = append(rows, row)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported file format %q", format)
	}
}

func encodeFile(format string, value any) ([]byte, error) {
	switch format {
	case FormatText:
		return []byte(FormatValue(value)), nil
	case FormatJSON:
		return json.MarshalIndent(value, "", "  ")
	case FormatYAML:
		return yaml.Marshal(value)
	case FormatCSV:
		rows, err := asRows(value)
		if err != nil {
			return nil, err
		}
		return encodeCSV(rows)
	default:
		return nil, fmt.Errorf("unsupported file format %q", format)
	}
}

// encodeCSV writes map rows under a sorted header, other rows as one column.
func encodeCSV(rows []any) ([]byte, error) {
	var header []string
	seen := make(map[string]bool)
	for _, r := range rows {
		if m, ok := r.(map[string]any); ok {
			for k := range m {
				if !seen[k] {
					seen[k] = true
					header = append(header, k)
				}
			}
		}
	}
	sort.Strings(header)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(header) > 0 {
		if err := w.Write(header); err != nil {
			return nil, err
		}
	}
	for _, r := range rows {
		var rec []string
		if m, ok := r.(map[string]any); ok {
			rec = make([]string, len(header))
			for i, col := range header {
				if m[col] != nil {
					rec[i] = lib.Text(m[col])
				}
			}
		} else {
			rec = []string{lib.Text(r)}
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
