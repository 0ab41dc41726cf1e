package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

// HandlingOf returns the effective sensitive-data policy. An unset policy
// behaves as sanitize.
func HandlingOf(spec *models.AgentSpecification) models.SensitiveDataHandling {
	if spec.InputValidation.SensitiveDataHandling == "" {
		return models.SensitiveSanitize
	}
	return spec.InputValidation.SensitiveDataHandling
}

// ValidateRequest checks req.Input against spec's input policy. Values are
// scanned recursively, so strings nested in lists and objects count too.
// Under the sanitize policy req.Input is rewritten in place so the redacted
// form is what later stages see.
//
// Every failure is a *models.AgentError with code VALIDATION_ERROR.
func ValidateRequest(req *models.AgentRequest, spec *models.AgentSpecification) error {
	keys := make([]string, 0, len(req.Input))
	for k := range req.Input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !spec.Allows(k) {
			return models.NewAgentError(models.ErrValidation, "Invalid input field %q for agent %s", k, spec.ID).
				WithDetail("field", k).
				WithDetail("allowed_fields", spec.InputValidation.AllowedFields)
		}
	}

	max := spec.InputValidation.MaxLength
	for _, k := range keys {
		v := req.Input[k]
		if v == nil {
			continue
		}
		if n := utf8.RuneCountInString(Stringify(v)); max > 0 && n > max {
			return models.NewAgentError(models.ErrValidation, "Invalid input: field %q exceeds maximum length %d (got %d)", k, max, n).
				WithDetail("field", k).
				WithDetail("max_length", max)
		}
	}

	switch HandlingOf(spec) {
	case models.SensitiveBlock:
		for _, k := range keys {
			if kind, found := findSensitive(req.Input[k]); found {
				return models.NewAgentError(models.ErrValidation, "Invalid input: field %q contains sensitive data (%s)", k, kind).
					WithDetail("field", k).
					WithDetail("pattern", string(kind))
			}
		}
	case models.SensitiveSanitize:
		for _, k := range keys {
			req.Input[k] = sanitizeValue(req.Input[k])
		}
	case models.SensitiveAllow:
	}

	return nil
}

// Stringify renders an input value the way it is measured and sent to the
// model: strings verbatim, everything else as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// findSensitive reports the first sensitive match anywhere inside v,
// including map keys.
func findSensitive(v any) (SensitiveKind, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return ContainsSensitive(t)
	case []any:
		for _, e := range t {
			if kind, ok := findSensitive(e); ok {
				return kind, true
			}
		}
		return "", false
	case map[string]any:
		for k, e := range t {
			if kind, ok := ContainsSensitive(k); ok {
				return kind, true
			}
			if kind, ok := findSensitive(e); ok {
				return kind, true
			}
		}
		return "", false
	}
	return ContainsSensitive(Stringify(v))
}

// sanitizeValue returns v with every nested string redacted. Values of
// other shapes that render to sensitive text are normalised through JSON
// first so they can be walked.
func sanitizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return Sanitize(t)
	case []any:
		for i, e := range t {
			t[i] = sanitizeValue(e)
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[Sanitize(k)] = sanitizeValue(e)
		}
		return out
	}

	if _, found := ContainsSensitive(Stringify(v)); !found {
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Sanitize(Stringify(v))
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return Sanitize(string(b))
	}
	return sanitizeValue(generic)
}
