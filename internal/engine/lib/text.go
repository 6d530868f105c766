package lib

import (
	"fmt"
	"strings"
)

// Text renders any value as a string, nil being empty
func Text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Left returns the first n runes
func Left(v any, n int) string {
	runes := []rune(Text(v))
	if n <= 0 {
		return ""
	}
	if n >= len(runes) {
		return string(runes)
	}
	return string(runes[:n])
}

// PadLeft pads on the left up to length runes
func PadLeft(v any, length int, pad string) string {
	s := Text(v)
	if pad == "" {
		pad = " "
	}
	missing := length - len([]rune(s))
	if missing <= 0 {
		return s
	}
	return Left(strings.Repeat(pad, missing), missing) + s
}

// PadRight pads on the right up to length runes
func PadRight(v any, length int, pad string) string {
	s := Text(v)
	if pad == "" {
		pad = " "
	}
	missing := length - len([]rune(s))
	if missing <= 0 {
		return s
	}
	return s + Left(strings.Repeat(pad, missing), missing)
}

// Reverse reverses the runes of the rendered value
func Reverse(v any) string {
	runes := []rune(Text(v))
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
