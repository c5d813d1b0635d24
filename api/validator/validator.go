// Package validator checks outbound request bodies before they reach the
// network, so a malformed write is rejected locally instead of round-tripping
// for a 400.
package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps the underlying validation library behind a single-error
// interface.
type Validator struct {
	cli *validator.Validate
}

// New returns a ready Validator.
func New() *Validator {
	return &Validator{
		cli: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// A FieldError describes one rejected field.
type FieldError struct {
	Field string
	Rule  string
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s violates %q", f.Field, f.Rule)
}

// Invalid aggregates every violation found in a single body.
type Invalid struct {
	Fields []FieldError
}

func (e *Invalid) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "invalid body: " + strings.Join(parts, ", ")
}

// Struct validates s against its `validate` tags. It returns nil when the
// body is acceptable and an *Invalid listing every violation otherwise.
func (v *Validator) Struct(s any) error {
	err := v.cli.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate: %w", err)
	}
	inv := &Invalid{Fields: make([]FieldError, len(verrs))}
	for i, fe := range verrs {
		inv.Fields[i] = FieldError{Field: fe.StructField(), Rule: fe.Tag()}
	}
	return inv
}
