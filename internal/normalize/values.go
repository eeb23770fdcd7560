package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ToFloat converts a decoded field value to a float. It returns nil for nil input, non-numeric
// strings, booleans, NaN, infinities and anything else it cannot read as a number.
func ToFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case *float64:
		if x == nil {
			return nil
		}
		f = *x
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RelativeExcess is how far x sits above limit as a fraction of limit, 0 when at or below it.
func RelativeExcess(x *float64, limit float64) *float64 {
	if x == nil || limit <= 0 {
		return nil
	}
	if *x <= limit {
		zero := 0.0
		return &zero
	}
	r := *x/limit - 1
	return &r
}

func RelativeAbsoluteError(x *float64, nominal float64) *float64 {
	if x == nil || nominal <= 0 {
		return nil
	}
	r := math.Abs(nominal-*x) / nominal
	return &r
}

// Average is the mean of the non-nil entries, nil when there are none.
func Average(values []*float64) *float64 {
	sum := 0.0
	n := 0
	for _, v := range values {
		if v == nil {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}
