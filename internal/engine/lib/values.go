package lib

import (
	"strings"
	"time"
)

// Coalesce returns the first non-nil value
func Coalesce(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// IsTruthy follows the usual scripting rules: nil, false, zero, and empty
// strings or collections are false.
func IsTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	case []map[string]any:
		return len(val) > 0
	}
	if f, ok := Number(v); ok {
		return f != 0
	}
	return true
}

// Compare orders two values: nil first, then numbers, then everything else by
// its text. Numbers and numeric strings compare numerically.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}

	_, aText := a.(string)
	_, bText := b.(string)
	fa, aNum := Number(a)
	fb, bNum := Number(b)
	if aNum && bNum && !(aText && bText) {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	if aNum != bNum && !(aText && bText) {
		if aNum {
			return -1
		}
		return 1
	}
	return strings.Compare(Text(a), Text(b))
}
