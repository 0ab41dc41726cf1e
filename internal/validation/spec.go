// Package validation checks agent specifications at registration time and
// agent requests at execution time.
package validation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

// SpecError lists every problem found in a specification.
type SpecError struct {
	AgentID  string
	Problems []string
}

func (e *SpecError) Error() string {
	id := e.AgentID
	if id == "" {
		id = "<missing id>"
	}
	return fmt.Sprintf("invalid agent specification %s: %s", id, strings.Join(e.Problems, "; "))
}

// ValidateSpecification checks that spec is structurally complete. A
// failure is a configuration bug and should stop startup.
func ValidateSpecification(spec *models.AgentSpecification) error {
	if spec == nil {
		return &SpecError{Problems: []string{"specification is nil"}}
	}

	var problems []string
	required := map[string]string{
		"id":            spec.ID,
		"name":          spec.Name,
		"description":   spec.Description,
		"version":       spec.Version,
		"system_prompt": spec.SystemPrompt,
	}
	for _, field := range []string{"id", "name", "description", "version", "system_prompt"} {
		if strings.TrimSpace(required[field]) == "" {
			problems = append(problems, field+" is required")
		}
	}

	if len(spec.TargetUsers) == 0 {
		problems = append(problems, "target_users must not be empty")
	}
	for _, r := range spec.TargetUsers {
		if !slices.Contains(models.KnownRoles, r) {
			problems = append(problems, fmt.Sprintf("unknown target role %q", r))
		}
	}

	if spec.Temperature < 0 || spec.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("temperature %.2f out of range [0, 2]", spec.Temperature))
	}
	if spec.MaxTokens < 0 {
		problems = append(problems, "max_tokens must not be negative")
	}

	iv := spec.InputValidation
	if len(iv.AllowedFields) == 0 {
		problems = append(problems, "input_validation.allowed_fields must not be empty")
	}
	if iv.MaxLength <= 0 {
		problems = append(problems, "input_validation.max_length must be positive")
	}
	switch iv.SensitiveDataHandling {
	case "", models.SensitiveBlock, models.SensitiveSanitize, models.SensitiveAllow:
	default:
		problems = append(problems, fmt.Sprintf("unknown sensitive_data_handling %q", iv.SensitiveDataHandling))
	}

	for _, k := range slices.Concat(spec.RequiredContext, spec.OptionalContext) {
		if !slices.Contains(models.AllContextKeys, k) {
			problems = append(problems, fmt.Sprintf("unknown context key %q", k))
		}
	}

	if len(problems) > 0 {
		return &SpecError{AgentID: spec.ID, Problems: problems}
	}
	return nil
}
