package agentctx_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strumhub/strumhub/agent-plane/internal/agentctx"
	"github.com/strumhub/strumhub/agent-plane/internal/store"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

func seeded(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })

	s.Seed(store.TableProfiles,
		store.Row{"id": "t1", "full_name": "Tom Teacher", "is_teacher": true},
		store.Row{"id": "s1", "full_name": "Jane Student", "is_student": true},
		store.Row{"id": "s2", "full_name": "Sam Student", "is_student": true},
	)
	s.Seed(store.TableLessons,
		store.Row{"id": "l1", "teacher_id": "t1", "student_id": "s1", "scheduled_at": "2026-02-01T10:00:00Z"},
		store.Row{"id": "l2", "teacher_id": "t1", "student_id": "s1", "scheduled_at": "2026-02-08T10:00:00Z"},
		store.Row{"id": "l3", "teacher_id": "t9", "student_id": "s2", "scheduled_at": "2026-02-09T10:00:00Z"},
	)
	s.Seed(store.TableAssignments,
		store.Row{"id": "a1", "teacher_id": "t1", "student_id": "s1", "due_date": "2026-02-10"},
	)
	s.Seed(store.TableSongs,
		store.Row{"id": "song1", "title": "Wonderwall"},
		store.Row{"id": "song2", "title": "Blackbird"},
	)
	return s
}

func teacherCtx() *models.AgentContext {
	return &models.AgentContext{UserID: "t1", UserRole: models.RoleTeacher}
}

func TestFetch_UnknownKey(t *testing.T) {
	f := agentctx.New(seeded(t))
	_, err := f.Fetch(context.Background(), "weather", teacherCtx())
	assert.ErrorIs(t, err, agentctx.ErrUnknownContextKey)
}

func TestFetch_CurrentUser(t *testing.T) {
	f := agentctx.New(seeded(t))
	v, err := f.Fetch(context.Background(), models.ContextCurrentUser, teacherCtx())
	require.NoError(t, err)
	row, ok := v.(store.Row)
	require.True(t, ok, "value type = %T", v)
	assert.Equal(t, "Tom Teacher", row["full_name"])
}

func TestFetch_NotFoundIsNil(t *testing.T) {
	f := agentctx.New(seeded(t))
	ac := &models.AgentContext{UserID: "ghost", UserRole: models.RoleTeacher}
	v, err := f.Fetch(context.Background(), models.ContextCurrentUser, ac)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFetch_LessonScopedByOwnership(t *testing.T) {
	f := agentctx.New(seeded(t))
	ctx := context.Background()

	own := teacherCtx()
	own.EntityType, own.EntityID = agentctx.EntityLesson, "l1"
	v, err := f.Fetch(ctx, models.ContextCurrentLesson, own)
	require.NoError(t, err)
	assert.NotNil(t, v)

	other := teacherCtx()
	other.EntityType, other.EntityID = agentctx.EntityLesson, "l3"
	v, err = f.Fetch(ctx, models.ContextCurrentLesson, other)
	require.NoError(t, err)
	assert.Nil(t, v, "teacher must not see another teacher's lesson")
}

func TestFetch_RecentLessonsOrdered(t *testing.T) {
	f := agentctx.New(seeded(t))
	v, err := f.Fetch(context.Background(), models.ContextRecentLessons, teacherCtx())
	require.NoError(t, err)
	rows := v.([]store.Row)
	require.Len(t, rows, 2)
	assert.Equal(t, "l2", rows[0]["id"])
}

func TestFetch_StudentSeesOwnHistory(t *testing.T) {
	f := agentctx.New(seeded(t))
	ac := &models.AgentContext{UserID: "s1", UserRole: models.RoleStudent}
	v, err := f.Fetch(context.Background(), models.ContextLessonHistory, ac)
	require.NoError(t, err)
	assert.Len(t, v.([]store.Row), 2)
}

func TestFetch_SchoolStats(t *testing.T) {
	f := agentctx.New(seeded(t))
	ac := &models.AgentContext{UserID: "admin", UserRole: models.RoleAdmin}
	v, err := f.Fetch(context.Background(), models.ContextSchoolStats, ac)
	require.NoError(t, err)
	assert.Equal(t, agentctx.SchoolStats{Students: 2, Teachers: 1, Lessons: 3, Assignments: 1, Songs: 2}, v)
}

func TestResolve_RequiredFailureIsContextError(t *testing.T) {
	f := agentctx.New(seeded(t))
	f.Override(models.ContextRecentLessons, func(context.Context, store.Store, *models.AgentContext) (any, error) {
		return nil, errors.New("connection refused")
	})
	spec := &models.AgentSpecification{ID: "x", RequiredContext: []models.ContextKey{models.ContextRecentLessons}}

	_, err := f.Resolve(context.Background(), spec, teacherCtx())
	require.Error(t, err)
	assert.Equal(t, models.ErrContext, models.CodeOf(err))
}

func TestResolve_RequiredMissingIsContextError(t *testing.T) {
	f := agentctx.New(seeded(t))
	spec := &models.AgentSpecification{ID: "x", RequiredContext: []models.ContextKey{models.ContextCurrentLesson}}

	_, err := f.Resolve(context.Background(), spec, teacherCtx())
	require.Error(t, err)
	assert.Equal(t, models.ErrContext, models.CodeOf(err))
}

func TestResolve_OptionalFailureIsNil(t *testing.T) {
	f := agentctx.New(seeded(t))
	f.Override(models.ContextSongLibrary, func(context.Context, store.Store, *models.AgentContext) (any, error) {
		return nil, errors.New("timeout")
	})
	spec := &models.AgentSpecification{
		ID:              "x",
		RequiredContext: []models.ContextKey{models.ContextCurrentUser},
		OptionalContext: []models.ContextKey{models.ContextSongLibrary},
	}

	got, err := f.Resolve(context.Background(), spec, teacherCtx())
	require.NoError(t, err)
	assert.NotNil(t, got[models.ContextCurrentUser])
	v, present := got[models.ContextSongLibrary]
	assert.True(t, present)
	assert.Nil(t, v)
}
