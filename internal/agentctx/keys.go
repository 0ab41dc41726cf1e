package agentctx

import (
	"context"

	"github.com/strumhub/strumhub/agent-plane/internal/store"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

const (
	recentLessonsLimit = 5
	historyLimit       = 20
	studentSongsLimit  = 50
	songLibraryLimit   = 100
)

// Entity types recognised in AgentContext.EntityType.
const (
	EntityStudent = "student"
	EntityLesson  = "lesson"
)

var builtins = map[models.ContextKey]FetchFunc{
	models.ContextCurrentUser:       fetchCurrentUser,
	models.ContextCurrentStudent:    fetchCurrentStudent,
	models.ContextCurrentLesson:     fetchCurrentLesson,
	models.ContextRecentLessons:     fetchRecentLessons,
	models.ContextLessonHistory:     fetchLessonHistory,
	models.ContextAssignmentHistory: fetchAssignmentHistory,
	models.ContextStudentSongs:      fetchStudentSongs,
	models.ContextSongLibrary:       fetchSongLibrary,
	models.ContextSchoolStats:       fetchSchoolStats,
}

func fetchCurrentUser(ctx context.Context, s store.Store, ac *models.AgentContext) (any, error) {
	if ac.UserID == "" {
		return nil, nil
	}
	return s.Get(ctx, store.TableProfiles, ac.UserID)
}

func fetchCurrentStudent(ctx context.Context, s store.Store, ac *models.AgentContext) (any, error) {
	id := studentOf(ac)
	if id == "" {
		return nil, nil
	}
	return s.First(ctx, store.Query{
		Table:   store.TableProfiles,
		Filters: []store.Filter{store.Eq("id", id), store.Eq("is_student", true)},
	})
}

func fetchCurrentLesson(ctx context.Context, s store.Store, ac *models.AgentContext) (any, error) {
	if ac.EntityType != EntityLesson || ac.EntityID == "" {
		return nil, nil
	}
	filters := append([]store.Filter{store.Eq("id", ac.EntityID)}, ownership(ac)...)
	return s.First(ctx, store.Query{Table: store.TableLessons, Filters: filters})
}

func fetchRecentLessons(ctx context.Context, s store.Store, ac *models.AgentContext) (any, error) {
	return s.List(ctx, store.Query{
		Table:      store.TableLessons,
		Filters:    ownership(ac),
		OrderBy:    "scheduled_at",
		Descending: true,
		Limit:      recentLessonsLimit,
	})
}

func fetchLessonHistory(ctx context.Context, s store.Store, ac *models.AgentContext) (any, error) {
	id := studentOf(ac)
	if id == "" {
		return nil, nil
	}
	return s.List(ctx, store.Query{
		Table:      store.TableLessons,
		Filters:    append([]store.Filter{store.Eq("student_id", id)}, ownership(ac)...),
		OrderBy:    "scheduled_at",
		Descending: true,
		Limit:      historyLimit,
	})
}

func fetchAssignmentHistory(ctx context.Context, s store.Store, ac *models.AgentContext) (any, error) {
	id := studentOf(ac)
	if id == "" {
		return nil, nil
	}
	return s.List(ctx, store.Query{
		Table:      store.TableAssignments,
		Filters:    append([]store.Filter{store.Eq("student_id", id)}, ownership(ac)...),
		OrderBy:    "due_date",
		Descending: true,
		Limit:      historyLimit,
	})
}

func fetchStudentSongs(ctx context.Context, s store.Store, ac *models.AgentContext) (any, error) {
	id := studentOf(ac)
	if id == "" {
		return nil, nil
	}
	return s.List(ctx, store.Query{
		Table:      store.TableStudentSongs,
		Filters:    []store.Filter{store.Eq("student_id", id)},
		OrderBy:    "updated_at",
		Descending: true,
		Limit:      studentSongsLimit,
	})
}

func fetchSongLibrary(ctx context.Context, s store.Store, _ *models.AgentContext) (any, error) {
	return s.List(ctx, store.Query{
		Table:   store.TableSongs,
		OrderBy: "title",
		Limit:   songLibraryLimit,
	})
}

// SchoolStats is the aggregate snapshot behind the school_stats key.
type SchoolStats struct {
	Students    int64 `json:"total_students"`
	Teachers    int64 `json:"total_teachers"`
	Lessons     int64 `json:"total_lessons"`
	Assignments int64 `json:"total_assignments"`
	Songs       int64 `json:"total_songs"`
}

func fetchSchoolStats(ctx context.Context, s store.Store, _ *models.AgentContext) (any, error) {
	var (
		st  SchoolStats
		err error
	)
	counts := []struct {
		dst     *int64
		table   string
		filters []store.Filter
	}{
		{&st.Students, store.TableProfiles, []store.Filter{store.Eq("is_student", true)}},
		{&st.Teachers, store.TableProfiles, []store.Filter{store.Eq("is_teacher", true)}},
		{&st.Lessons, store.TableLessons, nil},
		{&st.Assignments, store.TableAssignments, nil},
		{&st.Songs, store.TableSongs, nil},
	}
	for _, c := range counts {
		if *c.dst, err = s.Count(ctx, c.table, c.filters...); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// studentOf returns the student a request is about: the requester when
// they are a student, otherwise the student entity in the context.
func studentOf(ac *models.AgentContext) string {
	if ac.UserRole == models.RoleStudent {
		return ac.UserID
	}
	if ac.EntityType == EntityStudent {
		return ac.EntityID
	}
	return ""
}

// ownership restricts lesson and assignment queries to rows the requester
// owns. Admin and system see everything.
func ownership(ac *models.AgentContext) []store.Filter {
	switch ac.UserRole {
	case models.RoleAdmin, models.RoleSystem:
		return nil
	case models.RoleStudent:
		return []store.Filter{store.Eq("student_id", ac.UserID)}
	default:
		return []store.Filter{store.Eq("teacher_id", ac.UserID)}
	}
}
