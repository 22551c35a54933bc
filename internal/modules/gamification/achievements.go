package gamification

import (
	"time"

	types "github.com/yungbote/lumen-backend/internal/domain/gamification"
)

type Category string

const (
	CategoryChapters Category = "chapters"
	CategoryLevels   Category = "levels"
	CategoryQuizzes  Category = "quizzes"
	CategoryStreak   Category = "streak"
)

// Stats is the aggregate snapshot achievement rules are evaluated against.
type Stats struct {
	ChaptersCompleted int64 `json:"chapters_completed"`
	LevelsCompleted   int64 `json:"levels_completed"`
	CoursesCompleted  int64 `json:"courses_completed"`
	QuizzesPassed     int64 `json:"quizzes_passed"`
	PerfectQuizzes    int64 `json:"perfect_quizzes"`
	SessionsCompleted int64 `json:"sessions_completed"`
	StreakDays        int   `json:"streak_days"`
}

type Rule struct {
	ID        string
	Category  Category
	Satisfied func(Stats) bool
}

var Rules = []Rule{
	{ID: "first_chapter", Category: CategoryChapters, Satisfied: func(s Stats) bool { return s.ChaptersCompleted >= 1 }},
	{ID: "five_chapters", Category: CategoryChapters, Satisfied: func(s Stats) bool { return s.ChaptersCompleted >= 5 }},
	{ID: "twenty_chapters", Category: CategoryChapters, Satisfied: func(s Stats) bool { return s.ChaptersCompleted >= 20 }},
	{ID: "first_level", Category: CategoryLevels, Satisfied: func(s Stats) bool { return s.LevelsCompleted >= 1 }},
	{ID: "five_levels", Category: CategoryLevels, Satisfied: func(s Stats) bool { return s.LevelsCompleted >= 5 }},
	{ID: "course_finisher", Category: CategoryLevels, Satisfied: func(s Stats) bool { return s.CoursesCompleted >= 1 }},
	{ID: "first_perfect", Category: CategoryQuizzes, Satisfied: func(s Stats) bool { return s.PerfectQuizzes >= 1 }},
	{ID: "five_perfect", Category: CategoryQuizzes, Satisfied: func(s Stats) bool { return s.PerfectQuizzes >= 5 }},
	{ID: "streak_3", Category: CategoryStreak, Satisfied: func(s Stats) bool { return s.StreakDays >= 3 }},
	{ID: "streak_7", Category: CategoryStreak, Satisfied: func(s Stats) bool { return s.StreakDays >= 7 }},
	{ID: "streak_30", Category: CategoryStreak, Satisfied: func(s Stats) bool { return s.StreakDays >= 30 }},
}

// Evaluate returns the ids of rules in category that stats satisfies.
func Evaluate(category Category, stats Stats) []string {
	var out []string
	for _, r := range Rules {
		if r.Category == category && r.Satisfied(stats) {
			out = append(out, r.ID)
		}
	}
	return out
}

func ruleCategory(id string) (Category, bool) {
	for _, r := range Rules {
		if r.ID == id {
			return r.Category, true
		}
	}
	return "", false
}

// categoriesFor lists the rule categories an event can move. Every event
// counts as activity, so streak is always included.
func categoriesFor(ev types.EventType) []Category {
	switch ev {
	case types.EventChapterCompleted:
		return []Category{CategoryChapters, CategoryStreak}
	case types.EventLevelCompleted, types.EventCourseCompleted:
		return []Category{CategoryLevels, CategoryStreak}
	case types.EventQuizPassed, types.EventQuizPerfect:
		return []Category{CategoryQuizzes, CategoryStreak}
	default:
		return []Category{CategoryStreak}
	}
}

func statsFromCounts(counts map[types.EventType]int64) Stats {
	return Stats{
		ChaptersCompleted: counts[types.EventChapterCompleted],
		LevelsCompleted:   counts[types.EventLevelCompleted],
		CoursesCompleted:  counts[types.EventCourseCompleted],
		QuizzesPassed:     counts[types.EventQuizPassed],
		PerfectQuizzes:    counts[types.EventQuizPerfect],
		SessionsCompleted: counts[types.EventSessionCompleted],
	}
}

// StreakDays counts consecutive UTC days with activity, ending today or
// yesterday. A streak whose last day is before yesterday is broken.
func StreakDays(times []time.Time, now time.Time) int {
	if len(times) == 0 {
		return 0
	}
	days := map[string]bool{}
	for _, t := range times {
		days[t.UTC().Format(time.DateOnly)] = true
	}

	cursor := now.UTC()
	if !days[cursor.Format(time.DateOnly)] {
		cursor = cursor.AddDate(0, 0, -1)
		if !days[cursor.Format(time.DateOnly)] {
			return 0
		}
	}
	n := 0
	for days[cursor.Format(time.DateOnly)] {
		n++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return n
}
