package formula

import (
	"math"
	"strconv"
	"strings"
)

// MaxPrice is the largest price a single formula may produce.
const MaxPrice = 1e12

// Result is the outcome of evaluating one formula against one set of answers.
type Result struct {
	Price    int64    `json:"price"`
	Degraded []string `json:"degraded,omitempty"`
}

// Substitute replaces every whole-word occurrence of each id in values with its decimal
// form. Negative values are wrapped in parentheses so "a - b" with b=-2 stays well formed.
func Substitute(expr string, values map[string]float64) string {
	if len(values) == 0 || expr == "" {
		return expr
	}
	var b strings.Builder
	b.Grow(len(expr))
	i := 0
	for i < len(expr) {
		if !isSubstByte(expr[i]) {
			b.WriteByte(expr[i])
			i++
			continue
		}
		start := i
		for i < len(expr) && isSubstByte(expr[i]) {
			i++
		}
		word := expr[start:i]
		v, ok := values[word]
		if !ok {
			b.WriteString(word)
			continue
		}
		b.WriteString(formatNumber(v))
	}
	return b.String()
}

func isSubstByte(c byte) bool { return isWordByte(c) || c == '$' }

func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if v < 0 || (v == 0 && math.Signbit(v)) {
		return "(" + s + ")"
	}
	return s
}

// EvaluateExpression substitutes values into expr, evaluates it in the restricted grammar and
// returns the price: clamped to zero and rounded half-up. Failures wrap ErrEvaluation.
func EvaluateExpression(expr string, values map[string]float64) (int64, error) {
	if len(expr) > MaxExpressionLength {
		return 0, evalErr(-1, "expression exceeds %d bytes", MaxExpressionLength)
	}
	tree, err := compile(Substitute(expr, values))
	if err != nil {
		return 0, err
	}
	raw := tree.eval()
	if !isFinite(raw) {
		return 0, evalErr(-1, "expression result is not a finite number")
	}
	if raw > MaxPrice {
		return 0, evalErr(-1, "price out of range")
	}
	return Price(raw), nil
}

// Price clamps a raw result to [0, MaxPrice] and rounds it half-up to a whole amount.
// Callers reject values above MaxPrice before pricing them.
func Price(raw float64) int64 {
	if raw <= 0 || math.IsNaN(raw) {
		return 0
	}
	if raw >= MaxPrice {
		return MaxPrice
	}
	f := math.Floor(raw)
	if raw-f >= 0.5 {
		f++
	}
	return int64(f)
}

// Evaluate resolves the answers against f's variables and evaluates its expression.
func Evaluate(f Formula, answers map[string]any) (Result, error) {
	res := ResolveAll(f, answers)
	price, err := EvaluateExpression(f.Expression, res.Values)
	if err != nil {
		return Result{Degraded: res.Degraded}, err
	}
	return Result{Price: price, Degraded: res.Degraded}, nil
}

// Check dry-runs the expression with every variable resolved to zero. Only syntax and
// unresolved identifiers are reported; a division by zero under zeroed inputs is accepted.
func Check(f Formula) error {
	if len(f.Expression) > MaxExpressionLength {
		return evalErr(-1, "expression exceeds %d bytes", MaxExpressionLength)
	}
	values := make(map[string]float64, len(f.Variables))
	for _, v := range f.Variables {
		values[v.ID] = 0
	}
	_, err := compile(Substitute(f.Expression, values))
	return err
}
