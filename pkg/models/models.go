// Package models holds the shared data types of the StrumHub agent plane:
// agent specifications, per-request contexts, requests and responses.
package models

import (
	"slices"
	"time"
)

// ── Roles ───────────────────────────────────────────────────

// Role is the caller's role as reported by the auth layer.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTeacher   Role = "teacher"
	RoleStudent   Role = "student"
	RoleSystem    Role = "system"
	RoleAnonymous Role = "anonymous"
)

// KnownRoles lists every role a specification may target.
var KnownRoles = []Role{RoleAdmin, RoleTeacher, RoleStudent, RoleSystem}

// ParseRole normalises a role string. Unknown values map to RoleAnonymous.
func ParseRole(s string) Role {
	r := Role(s)
	if slices.Contains(KnownRoles, r) {
		return r
	}
	return RoleAnonymous
}

// ── Agent Specification ─────────────────────────────────────

// SensitiveDataHandling controls how request input containing PII is treated.
type SensitiveDataHandling string

const (
	SensitiveBlock    SensitiveDataHandling = "block"
	SensitiveSanitize SensitiveDataHandling = "sanitize"
	SensitiveAllow    SensitiveDataHandling = "allow"
)

// AccessLevel is the advisory permission an agent declares on a store entity.
type AccessLevel string

const (
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
)

// DataAccess documents a backing-store entity touched by an agent.
// It is advisory only and never enforced by the registry.
type DataAccess struct {
	Table      string      `json:"table" yaml:"table"`
	Permission AccessLevel `json:"permission" yaml:"permission"`
}

// InputValidation is the per-agent input policy.
type InputValidation struct {
	MaxLength             int                   `json:"max_length" yaml:"max_length"`
	AllowedFields         []string              `json:"allowed_fields" yaml:"allowed_fields"`
	SensitiveDataHandling SensitiveDataHandling `json:"sensitive_data_handling" yaml:"sensitive_data_handling"`
}

// UIMetadata is passed through to dashboards untouched.
type UIMetadata struct {
	Category  string `json:"category,omitempty" yaml:"category"`
	Icon      string `json:"icon,omitempty" yaml:"icon"`
	Placement string `json:"placement,omitempty" yaml:"placement"`
}

// AgentSpecification declares one capability. It is built once at startup
// and must not be mutated after registration.
type AgentSpecification struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Version     string `json:"version" yaml:"version"`

	TargetUsers []Role   `json:"target_users" yaml:"target_users"`
	UseCases    []string `json:"use_cases,omitempty" yaml:"use_cases"`

	SystemPrompt string   `json:"system_prompt" yaml:"system_prompt"`
	Temperature  float64  `json:"temperature" yaml:"temperature"`
	MaxTokens    int      `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Model        string   `json:"model,omitempty" yaml:"model"`

	RequiredContext []ContextKey `json:"required_context,omitempty" yaml:"required_context"`
	OptionalContext []ContextKey `json:"optional_context,omitempty" yaml:"optional_context"`

	DataAccess      []DataAccess    `json:"data_access,omitempty" yaml:"data_access"`
	InputValidation InputValidation `json:"input_validation" yaml:"input_validation"`
	UI              UIMetadata      `json:"ui" yaml:"ui"`

	// EnableAnalytics persists a log row per execution in addition to the
	// in-memory buffer.
	EnableAnalytics bool `json:"enable_analytics" yaml:"enable_analytics"`
}

// Targets reports whether role may invoke the agent.
func (s *AgentSpecification) Targets(role Role) bool {
	return slices.Contains(s.TargetUsers, role)
}

// Allows reports whether field is on the agent's input whitelist.
func (s *AgentSpecification) Allows(field string) bool {
	return slices.Contains(s.InputValidation.AllowedFields, field)
}

// ── Context keys ────────────────────────────────────────────

// ContextKey names a piece of background data resolved before execution.
type ContextKey string

const (
	ContextCurrentUser       ContextKey = "current_user"
	ContextCurrentStudent    ContextKey = "current_student"
	ContextCurrentLesson     ContextKey = "current_lesson"
	ContextRecentLessons     ContextKey = "recent_lessons"
	ContextLessonHistory     ContextKey = "lesson_history"
	ContextAssignmentHistory ContextKey = "assignment_history"
	ContextStudentSongs      ContextKey = "student_songs"
	ContextSongLibrary       ContextKey = "song_library"
	ContextSchoolStats       ContextKey = "school_stats"
)

// AllContextKeys is the closed set of resolvable keys.
var AllContextKeys = []ContextKey{
	ContextCurrentUser,
	ContextCurrentStudent,
	ContextCurrentLesson,
	ContextRecentLessons,
	ContextLessonHistory,
	ContextAssignmentHistory,
	ContextStudentSongs,
	ContextSongLibrary,
	ContextSchoolStats,
}

// ── Request / Response ──────────────────────────────────────

// AgentContext is built fresh for every call from the caller's session.
type AgentContext struct {
	UserID      string         `json:"user_id"`
	UserRole    Role           `json:"user_role"`
	SessionID   string         `json:"session_id"`
	RequestID   string         `json:"request_id"`
	Timestamp   time.Time      `json:"timestamp"`
	CurrentPage string         `json:"current_page,omitempty"`
	EntityID    string         `json:"entity_id,omitempty"`
	EntityType  string         `json:"entity_type,omitempty"`
	ContextData map[string]any `json:"context_data,omitempty"`
}

// Overrides let a caller adjust model parameters for a single request.
type Overrides struct {
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

// AgentRequest is consumed once by the registry.
type AgentRequest struct {
	AgentID   string         `json:"agent_id"`
	Input     map[string]any `json:"input"`
	Context   AgentContext   `json:"context"`
	Overrides *Overrides     `json:"overrides,omitempty"`
}

// TokenUsage is the provider-reported token count for one completion.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// AgentResult is the success payload, or the fallback payload on failure.
type AgentResult struct {
	Content    string      `json:"content"`
	Usage      *TokenUsage `json:"usage,omitempty"`
	IsFallback bool        `json:"is_fallback,omitempty"`
	// Raw is the provider's response, passed through untouched.
	Raw        any         `json:"raw,omitempty"`
}

// ResponseMetadata describes how a response was produced.
type ResponseMetadata struct {
	AgentID       string `json:"agent_id"`
	ExecutionTime int64  `json:"execution_time_ms"`
	TokensUsed    int64  `json:"tokens_used,omitempty"`
	Model         string `json:"model,omitempty"`
	Provider      string `json:"provider,omitempty"`
}

// ResponseAnalytics is attached to every response for log correlation.
type ResponseAnalytics struct {
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
	InputHash  string    `json:"input_hash"`
	Successful bool      `json:"successful"`
}

// AgentResponse is the only value returned to callers. Exactly one of
// Result (on success) or Error (on failure) is the authoritative payload;
// a failed response may still carry a fallback Result with IsFallback set.
type AgentResponse struct {
	Success   bool              `json:"success"`
	Result    *AgentResult      `json:"result,omitempty"`
	Error     *AgentError       `json:"error,omitempty"`
	Metadata  ResponseMetadata  `json:"metadata"`
	Analytics ResponseAnalytics `json:"analytics"`
}
