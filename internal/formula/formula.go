package formula

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// VariableType enumerates the supported calculator input kinds.
type VariableType string

const (
	TypeNumber         VariableType = "number"
	TypeText           VariableType = "text"
	TypeCheckbox       VariableType = "checkbox"
	TypeSelect         VariableType = "select"
	TypeDropdown       VariableType = "dropdown"
	TypeMultipleChoice VariableType = "multiple-choice"
	TypeSlider         VariableType = "slider"
)

// Valid reports whether the type is one the resolver understands.
func (t VariableType) Valid() bool {
	switch t {
	case TypeNumber, TypeText, TypeCheckbox, TypeSelect, TypeDropdown, TypeMultipleChoice, TypeSlider:
		return true
	default:
		return false
	}
}

// Option is one choice of a select, dropdown or multiple-choice variable.
type Option struct {
	Label        string   `json:"label"`
	Value        string   `json:"value"`
	NumericValue *float64 `json:"numericValue,omitempty"`
	// Multiplier is the legacy pricing field still present on old select variables.
	Multiplier *float64 `json:"multiplier,omitempty"`
}

// Variable is one configurable input on a calculator.
type Variable struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         VariableType `json:"type"`
	Options      []Option     `json:"options,omitempty"`
	DefaultValue any          `json:"defaultValue,omitempty"`
}

// Formula is a business owner's calculator definition.
type Formula struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenantId"`
	Name       string     `json:"name"`
	Title      string     `json:"title,omitempty"`
	Icon       string     `json:"icon,omitempty"`
	Variables  []Variable `json:"variables"`
	Expression string     `json:"formula"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ErrInvalidFormula is returned when a definition fails validation.
var ErrInvalidFormula = errors.New("formula: invalid definition")

// Validate checks structural invariants of the definition. It does not parse the expression.
func (f Formula) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidFormula)
	}
	expr := strings.TrimSpace(f.Expression)
	if expr == "" {
		return fmt.Errorf("%w: formula expression is required", ErrInvalidFormula)
	}
	if len(f.Expression) > MaxExpressionLength {
		return fmt.Errorf("%w: formula expression exceeds %d bytes", ErrInvalidFormula, MaxExpressionLength)
	}
	seen := make(map[string]struct{}, len(f.Variables))
	for i, v := range f.Variables {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return fmt.Errorf("%w: variable %d has no id", ErrInvalidFormula, i)
		}
		if !isIdentifier(id) {
			return fmt.Errorf("%w: variable id %q is not an identifier", ErrInvalidFormula, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate variable id %q", ErrInvalidFormula, id)
		}
		seen[id] = struct{}{}
		if !v.Type.Valid() {
			return fmt.Errorf("%w: variable %q has unknown type %q", ErrInvalidFormula, id, v.Type)
		}
	}
	return nil
}

// Variable returns the variable with the given id.
func (f Formula) Variable(id string) (Variable, bool) {
	for _, v := range f.Variables {
		if v.ID == id {
			return v, true
		}
	}
	return Variable{}, false
}

func isIdentifier(s string) bool {
	if s == "" || isDigit(s[0]) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isWordByte(s[i]) {
			return false
		}
	}
	return true
}
