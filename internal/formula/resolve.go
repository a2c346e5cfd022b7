package formula

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Resolution holds the numeric contribution of every variable of a formula.
type Resolution struct {
	Values map[string]float64
	// Degraded lists variable ids whose answer could not be resolved and fell back to 0.
	Degraded []string
}

// ResolveAll resolves every variable of f against the customer's answers. Missing answers
// fall back to the variable's default value.
func ResolveAll(f Formula, answers map[string]any) Resolution {
	res := Resolution{Values: make(map[string]float64, len(f.Variables))}
	for _, v := range f.Variables {
		raw, ok := answers[v.ID]
		if !ok || raw == nil {
			raw = v.DefaultValue
		}
		value, resolved := Resolve(v, raw)
		res.Values[v.ID] = value
		if !resolved {
			res.Degraded = append(res.Degraded, v.ID)
		}
	}
	return res
}

// Resolve maps a raw input value to the number substituted into the expression. It never
// fails: unresolvable input yields 0 and false.
func Resolve(v Variable, raw any) (float64, bool) {
	switch v.Type {
	case TypeNumber, TypeSlider:
		return toNumber(raw)
	case TypeCheckbox:
		if raw == nil {
			return 0, true
		}
		if truthy(raw) {
			return 1, true
		}
		return 0, true
	case TypeSelect, TypeDropdown:
		if list, ok := asList(raw); ok {
			if len(list) == 0 {
				return 0, false
			}
			raw = list[0]
		}
		opt, ok := findOption(v.Options, raw)
		if !ok {
			return 0, false
		}
		if opt.NumericValue != nil && isFinite(*opt.NumericValue) {
			return *opt.NumericValue, true
		}
		if v.Type == TypeSelect && opt.Multiplier != nil && isFinite(*opt.Multiplier) {
			return *opt.Multiplier, true
		}
		return 0, false
	case TypeMultipleChoice:
		list, ok := asList(raw)
		if !ok {
			return 0, raw == nil
		}
		var sum float64
		resolved := true
		for _, item := range list {
			opt, found := findOption(v.Options, item)
			if !found || opt.NumericValue == nil || !isFinite(*opt.NumericValue) {
				resolved = false
				continue
			}
			sum += *opt.NumericValue
		}
		return sum, resolved
	case TypeText:
		return 0, true
	default:
		return 0, false
	}
}

func toNumber(raw any) (float64, bool) {
	var f float64
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
	if !isFinite(f) {
		return 0, false
	}
	return f, true
}

func truthy(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "yes", "checked":
			return true
		}
		return false
	case []any:
		return len(v) > 0
	default:
		n, ok := toNumber(v)
		return ok && n != 0
	}
}

func asList(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func findOption(options []Option, raw any) (Option, bool) {
	key, ok := optionKey(raw)
	if !ok {
		return Option{}, false
	}
	for _, opt := range options {
		if opt.Value == key {
			return opt, true
		}
	}
	return Option{}, false
}

func optionKey(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case json.Number:
		f, err := v.Float64()
		if err != nil || !isFinite(f) {
			return v.String(), true
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
