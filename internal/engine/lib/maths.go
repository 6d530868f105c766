package lib

import (
	"fmt"
	"math"
	"strconv"
)

// Number converts a numeric value (or numeric string) to float64.
// ok is false when v has no numeric reading.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	default:
		f, err := strconv.ParseFloat(fmt.Sprintf("%v", v), 64)
		return f, err == nil
	}
}

func toFloat64(v any) float64 {
	f, _ := Number(v)
	return f
}

// Round rounds to the given number of decimal places
func Round(v any, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(toFloat64(v)*multiplier) / multiplier
}

// Clamp restricts v to [minVal, maxVal]
func Clamp(v, minVal, maxVal any) float64 {
	f := toFloat64(v)
	lo, hi := toFloat64(minVal), toFloat64(maxVal)
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

// Percent returns (value / total) * 100, or 0 when total is 0
func Percent(value, total any) float64 {
	t := toFloat64(total)
	if t == 0 {
		return 0
	}
	return (toFloat64(value) / t) * 100
}

// Sum adds every numeric value, skipping the rest
func Sum(values []any) float64 {
	var total float64
	for _, v := range values {
		if f, ok := Number(v); ok {
			total += f
		}
	}
	return total
}

// Mean is the average of the numeric values, 0 when there are none
func Mean(values []any) float64 {
	var (
		total float64
		n     int
	)
	for _, v := range values {
		if f, ok := Number(v); ok {
			total += f
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// MinOf returns the smallest numeric value
func MinOf(values []any) (float64, bool) {
	found := false
	var min float64
	for _, v := range values {
		f, ok := Number(v)
		if !ok {
			continue
		}
		if !found || f < min {
			min = f
			found = true
		}
	}
	return min, found
}

// MaxOf returns the largest numeric value
func MaxOf(values []any) (float64, bool) {
	found := false
	var max float64
	for _, v := range values {
		f, ok := Number(v)
		if !ok {
			continue
		}
		if !found || f > max {
			max = f
			found = true
		}
	}
	return max, found
}
