// Package validate resolves raw command-line parameter values against
// an endpoint's argument schema. It is pure: no network, no process
// state, just inputs to outputs.
package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/perfx-labs/perfx/pkg/models"
)

// ParameterError describes one violated parameter constraint
type ParameterError struct {
	Parameter string
	Message   string
}

func (e ParameterError) Error() string {
	return fmt.Sprintf("%s: %s", e.Parameter, e.Message)
}

// Errors accumulates every violated constraint so the operator gets a
// single report before any cost is incurred.
type Errors []ParameterError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, pe := range e {
		msgs[i] = pe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate resolves raw inputs against the schema, in schema order.
// Hyphen and underscore forms of a parameter name are interchangeable
// on input. Returns the resolved arguments, or every constraint
// violation found.
func Validate(schema models.ArgumentSchema, rawInputs map[string]string) (models.ResolvedArguments, error) {
	var errs Errors
	resolved := make(models.ResolvedArguments)

	for _, param := range schema.Parameters {
		value, ok := lookup(rawInputs, param.Name)

		if !ok {
			if param.HasDefault() {
				coerced, err := coerce(param, *param.Default)
				if err != nil {
					errs = append(errs, ParameterError{
						Parameter: param.Name,
						Message:   fmt.Sprintf("default value %q: %v", *param.Default, err),
					})
					continue
				}
				resolved[param.Name] = coerced
				continue
			}
			if param.Required {
				errs = append(errs, ParameterError{
					Parameter: param.Name,
					Message:   fmt.Sprintf("parameter %q is required", param.Name),
				})
			}
			continue
		}

		coerced, err := coerce(param, value)
		if err != nil {
			errs = append(errs, ParameterError{
				Parameter: param.Name,
				Message:   err.Error(),
			})
			continue
		}
		resolved[param.Name] = coerced
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return resolved, nil
}

// lookup tries the schema name as-is, then its underscore form
func lookup(inputs map[string]string, name string) (string, bool) {
	if v, ok := inputs[name]; ok {
		return v, true
	}
	underscore := strings.ReplaceAll(name, "-", "_")
	if v, ok := inputs[underscore]; ok {
		return v, true
	}
	return "", false
}

// coerce checks that value is a member of the parameter's kind and
// returns its canonical string form.
func coerce(param models.ParameterSpec, value string) (string, error) {
	switch param.Kind {
	case models.KindString, "":
		return value, nil

	case models.KindInt:
		if _, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err != nil {
			return "", fmt.Errorf("expected int, got %q", value)
		}
		return strings.TrimSpace(value), nil

	case models.KindFloat:
		if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil {
			return "", fmt.Errorf("expected float, got %q", value)
		}
		return strings.TrimSpace(value), nil

	case models.KindBool:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes":
			return "true", nil
		case "false", "0", "no":
			return "false", nil
		}
		return "", fmt.Errorf("expected bool (true/1/yes or false/0/no), got %q", value)

	case models.KindChoice:
		for _, choice := range param.Choices {
			if value == choice {
				return value, nil
			}
		}
		return "", fmt.Errorf("value %q is not one of %v", value, param.Choices)

	default:
		// Unknown kinds fall back to string so a newer platform schema
		// does not break an older client.
		return value, nil
	}
}

// FormatHelp renders schema parameter documentation for the operator
func FormatHelp(schema models.ArgumentSchema) string {
	if len(schema.Parameters) == 0 {
		return "This endpoint defines no extra parameters."
	}

	lines := []string{"Endpoint parameters:", ""}
	for _, param := range schema.Parameters {
		marker := "[optional]"
		if param.Required {
			marker = "[required]"
		}
		line := fmt.Sprintf("  --%-20s %s %s", param.Name, marker, param.Description)
		if param.HasDefault() {
			line += fmt.Sprintf(" (default: %s)", *param.Default)
		}
		if len(param.Choices) > 0 {
			line += fmt.Sprintf(" choices: %v", param.Choices)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
