package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/domain/materials"
)

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, status materials.DocumentStatus) *materials.SourceDocument {
	tb.Helper()
	id := uuid.New()
	d := &materials.SourceDocument{
		ID:               id,
		OwnerID:          ownerID,
		Filename:         "notes.txt",
		DeclaredType:     materials.TypePlainText,
		SizeBytes:        128,
		StorageKey:       fmt.Sprintf("%s/documents/%s/notes.txt", ownerID, id),
		ProcessingStatus: status,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

// SeedChunks creates ordinal chunks 0..len(vectors)-1; a nil vector leaves
// the chunk unembedded.
func SeedChunks(tb testing.TB, ctx context.Context, tx *gorm.DB, doc *materials.SourceDocument, vectors [][]float32) []*materials.DocumentChunk {
	tb.Helper()
	out := make([]*materials.DocumentChunk, 0, len(vectors))
	now := time.Now().UTC()
	for i, v := range vectors {
		c := &materials.DocumentChunk{
			ID:            uuid.New(),
			DocumentID:    doc.ID,
			OwnerID:       doc.OwnerID,
			Ordinal:       i,
			Text:          fmt.Sprintf("chunk-%d", i),
			CharCount:     7,
			TokenEstimate: 2,
		}
		if v != nil {
			raw, err := materials.EncodeVector(v)
			if err != nil {
				tb.Fatalf("encode vector: %v", err)
			}
			c.Embedding = raw
			c.EmbeddedAt = &now
		}
		out = append(out, c)
	}
	if len(out) > 0 {
		if err := tx.WithContext(ctx).Create(&out).Error; err != nil {
			tb.Fatalf("seed chunks: %v", err)
		}
	}
	return out
}

// SeedCourse creates a course with the given number of levels, each holding
// chaptersPerLevel chapters.
func SeedCourse(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, levels, chaptersPerLevel int) (*learning.Course, []*learning.CourseLevel, []*learning.Chapter) {
	tb.Helper()
	c := &learning.Course{ID: uuid.New(), OwnerID: ownerID, Title: "course"}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	var lvls []*learning.CourseLevel
	var chs []*learning.Chapter
	for i := 0; i < levels; i++ {
		l := &learning.CourseLevel{ID: uuid.New(), CourseID: c.ID, OrderIndex: i, Title: fmt.Sprintf("level-%d", i)}
		if err := tx.WithContext(ctx).Create(l).Error; err != nil {
			tb.Fatalf("seed level: %v", err)
		}
		lvls = append(lvls, l)
		for j := 0; j < chaptersPerLevel; j++ {
			ch := &learning.Chapter{ID: uuid.New(), LevelID: l.ID, CourseID: c.ID, OrderIndex: j, Title: fmt.Sprintf("chapter-%d-%d", i, j)}
			if err := tx.WithContext(ctx).Create(ch).Error; err != nil {
				tb.Fatalf("seed chapter: %v", err)
			}
			chs = append(chs, ch)
		}
	}
	return c, lvls, chs
}

// SeedQuiz creates a quiz whose question i has options "a".."d" with correct
// option correct[i].
func SeedQuiz(tb testing.TB, ctx context.Context, tx *gorm.DB, course *learning.Course, level *learning.CourseLevel, chapter *learning.Chapter, quizType learning.QuizType, correct []string) (*learning.Quiz, []*learning.QuizQuestion) {
	tb.Helper()
	q := &learning.Quiz{
		ID:       uuid.New(),
		OwnerID:  course.OwnerID,
		CourseID: course.ID,
		LevelID:  level.ID,
		QuizType: quizType,
		Title:    "quiz",
	}
	if chapter != nil {
		id := chapter.ID
		q.ChapterID = &id
	}
	if err := tx.WithContext(ctx).Create(q).Error; err != nil {
		tb.Fatalf("seed quiz: %v", err)
	}
	opts := []learning.QuizOption{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}, {ID: "c", Text: "C"}, {ID: "d", Text: "D"}}
	var qs []*learning.QuizQuestion
	for i, c := range correct {
		qq := &learning.QuizQuestion{
			ID:                     uuid.New(),
			QuizID:                 q.ID,
			OrderIndex:             i,
			Prompt:                 fmt.Sprintf("question %d", i),
			Options:                datatypes.NewJSONType(opts),
			CorrectOptionID:        c,
			Explanation:            fmt.Sprintf("because %s", c),
			DistractorExplanations: datatypes.NewJSONType(map[string]string{}),
		}
		qs = append(qs, qq)
	}
	if len(qs) > 0 {
		if err := tx.WithContext(ctx).Create(&qs).Error; err != nil {
			tb.Fatalf("seed questions: %v", err)
		}
	}
	return q, qs
}
