package agents_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strumhub/strumhub/agent-plane/internal/agentctx"
	"github.com/strumhub/strumhub/agent-plane/internal/agents"
	"github.com/strumhub/strumhub/agent-plane/internal/registry"
	"github.com/strumhub/strumhub/agent-plane/internal/store"
	"github.com/strumhub/strumhub/agent-plane/internal/validation"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

func TestBuiltin(t *testing.T) {
	defs, err := agents.Builtin()
	require.NoError(t, err)

	var ids []string
	for _, d := range defs {
		ids = append(ids, d.ID)
		assert.NoError(t, validation.ValidateSpecification(&d.AgentSpecification), d.ID)
		assert.NotEmpty(t, d.Fallback, "%s has no fallback", d.ID)
	}
	assert.Equal(t, []string{
		"admin-dashboard-insights",
		"assignment-generator",
		"email-draft",
		"lesson-notes",
		"post-lesson-summary",
		"student-progress-insights",
	}, ids)
}

func TestBuiltin_Fields(t *testing.T) {
	defs, err := agents.Builtin()
	require.NoError(t, err)

	var notes agents.Definition
	for _, d := range defs {
		if d.ID == "lesson-notes" {
			notes = d
		}
	}
	assert.Equal(t, []models.Role{models.RoleTeacher, models.RoleAdmin}, notes.TargetUsers)
	assert.Equal(t, []models.ContextKey{models.ContextCurrentUser}, notes.RequiredContext)
	assert.Equal(t, models.SensitiveSanitize, notes.InputValidation.SensitiveDataHandling)
	assert.Equal(t, 4000, notes.InputValidation.MaxLength)
	assert.Equal(t, "lesson-form", notes.UI.Placement)
	assert.True(t, notes.EnableAnalytics)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	fsys := fstest.MapFS{
		"typo.yaml": {Data: []byte("id: x\nsytem_prompt: hi\n")},
	}
	_, err := agents.Load(fsys)
	assert.Error(t, err)
}

func TestLoad_SkipsOtherFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"README.md":     {Data: []byte("# agents")},
		"extra.yml":     {Data: []byte("id: extra\nname: Extra\n")},
		"nested/a.yaml": {Data: []byte("id: nested\n")},
	}
	defs, err := agents.Load(fsys)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "extra", defs[0].ID)
}

func TestRegisterDefaults(t *testing.T) {
	reg := registry.New(nil, agentctx.New(store.NewMemoryStore()), nil, nil)
	require.NoError(t, agents.RegisterDefaults(reg, ""))

	assert.Len(t, reg.All(), 6)
	assert.Len(t, reg.AvailableFor(models.RoleStudent), 1)
	assert.ErrorContains(t, agents.RegisterDefaults(reg, ""), "already registered")
}
