package schemas

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator. Field errors are reported under
// their JSON names.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ErrorDetail is one entry of a validation error list, in the shape clients
// of the API already parse: {"loc": [...], "msg": "...", "type": "..."}.
type ErrorDetail struct {
	Loc   []any  `json:"loc"`
	Msg   string `json:"msg"`
	Type  string `json:"type"`
	Input any    `json:"input,omitempty"`
}

// ValidationError lists every field that failed.
type ValidationError struct {
	Details []ErrorDetail
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s: %s", joinLoc(d.Loc), d.Msg))
	}
	return fmt.Sprintf("%d validation error(s): %s", len(e.Details), strings.Join(parts, "; "))
}

// Validate checks v against its validate tags. It returns nil or a
// *ValidationError with locations rooted at "response".
func Validate(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{Details: make([]ErrorDetail, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Details = append(out.Details, ErrorDetail{
			Loc:  append([]any{"response"}, namespaceLoc(fe.Namespace())...),
			Msg:  message(fe),
			Type: errorType(fe.Tag()),
		})
	}
	return out
}

// namespaceLoc turns "CompetitionSearch.results[2].id" into [results 2 id].
func namespaceLoc(ns string) []any {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return nil
	}
	var loc []any
	for _, seg := range strings.Split(rest, ".") {
		name, idx, indexed := strings.Cut(seg, "[")
		loc = append(loc, name)
		if indexed {
			var n int
			if _, err := fmt.Sscanf(strings.TrimSuffix(idx, "]"), "%d", &n); err == nil {
				loc = append(loc, n)
			}
		}
	}
	return loc
}

func joinLoc(loc []any) string {
	parts := make([]string, len(loc))
	for i, l := range loc {
		parts[i] = fmt.Sprint(l)
	}
	return strings.Join(parts, ".")
}

func errorType(tag string) string {
	switch tag {
	case "required":
		return "missing"
	case "gte":
		return "greater_than_equal"
	case "lte":
		return "less_than_equal"
	}
	return "value_error"
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Field required"
	case "gte":
		return "Input should be greater than or equal to " + fe.Param()
	case "lte":
		return "Input should be less than or equal to " + fe.Param()
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
