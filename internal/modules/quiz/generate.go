package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/modules/retrieval"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/llm"
)

type generatedOption struct {
	ID   string `json:"id" jsonschema:"description=Short option id such as a or b."`
	Text string `json:"text"`
}

type generatedDistractor struct {
	OptionID    string `json:"option_id"`
	Explanation string `json:"explanation" jsonschema:"description=Why this option is wrong."`
}

type generatedQuestion struct {
	Prompt          string                `json:"prompt"`
	Options         []generatedOption     `json:"options" jsonschema:"minItems=2,maxItems=6"`
	CorrectOptionID string                `json:"correct_option_id"`
	Explanation     string                `json:"explanation" jsonschema:"description=Why the correct option is right."`
	Distractors     []generatedDistractor `json:"distractors"`
}

type generatedQuiz struct {
	Title     string              `json:"title"`
	Questions []generatedQuestion `json:"questions"`
}

const quizSystemPrompt = "You write multiple-choice questions that check understanding of study material. " +
	"Every question has exactly one correct option. Use only facts present in the material."

// GenerateChapterQuiz drafts a chapter quiz from the chapter text and the
// course's attached documents. Generated questions pass the same checks as
// authored ones; invalid ones are dropped.
func (e *Engine) GenerateChapterQuiz(ctx context.Context, ownerID, chapterID uuid.UUID, count int) (*QuizView, error) {
	if ownerID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	if count == 0 {
		count = e.cfg.DefaultGenerated
	}
	if count < 1 || count > e.cfg.MaxGenerated {
		return nil, apierr.Validation("invalid_count", "count must be between 1 and %d", e.cfg.MaxGenerated)
	}
	ch, err := e.deps.Courses.GetChapter(dbctx.Context{Ctx: ctx}, chapterID)
	if err != nil {
		return nil, fmt.Errorf("load chapter: %w", err)
	}
	if ch == nil {
		return nil, apierr.NotFound("chapter_not_found", "chapter not found")
	}
	course, level, err := e.ownedLevel(ctx, ownerID, ch.LevelID)
	if err != nil {
		if apierr.IsKind(err, apierr.KindNotFound) {
			return nil, apierr.NotFound("chapter_not_found", "chapter not found")
		}
		return nil, err
	}

	gen, err := e.deps.Models.Generator(llm.TaskQuizGeneration)
	if err != nil {
		return nil, apierr.Upstream("generation_unavailable", err)
	}
	schema, err := llm.SchemaFor[generatedQuiz]()
	if err != nil {
		return nil, fmt.Errorf("quiz schema: %w", err)
	}
	material := e.material(ctx, ownerID, course.ID, ch)
	if strings.TrimSpace(material) == "" {
		return nil, apierr.Validation("chapter_empty", "chapter has no content or attached material to draw questions from")
	}
	user := fmt.Sprintf("Write %d questions for the chapter %q.\n\nMaterial:\n%s", count, ch.Title, material)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerateTimeout)
	defer cancel()
	obj, err := gen.GenerateJSON(callCtx, quizSystemPrompt, user, "chapter_quiz", schema)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			e.log.Warn("quiz generation timed out", "chapter_id", ch.ID)
		}
		return nil, apierr.Upstream("generation_failed", err)
	}
	out, err := llm.Decode[generatedQuiz](obj)
	if err != nil {
		return nil, apierr.Upstream("generation_invalid", err)
	}

	quiz := &types.Quiz{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		CourseID:  course.ID,
		LevelID:   level.ID,
		QuizType:  types.QuizTypeChapter,
		Title:     strings.TrimSpace(out.Title),
		ChapterID: &ch.ID,
	}
	if quiz.Title == "" {
		quiz.Title = ch.Title
	}
	dropped := 0
	for i, g := range out.Questions {
		if len(quiz.Questions) == count {
			break
		}
		in := g.input()
		if err := e.validateQuestion(i, in); err != nil {
			dropped++
			continue
		}
		quiz.Questions = append(quiz.Questions, buildQuestion(in))
	}
	if len(quiz.Questions) == 0 {
		return nil, apierr.Upstream("generation_invalid", fmt.Errorf("model returned no usable questions (%d dropped)", dropped))
	}

	if err := e.deps.Quizzes.Create(dbctx.Context{Ctx: ctx}, quiz); err != nil {
		return nil, fmt.Errorf("create quiz: %w", err)
	}
	e.log.Info("chapter quiz generated", "quiz_id", quiz.ID, "chapter_id", ch.ID, "questions", len(quiz.Questions), "dropped", dropped)
	return e.publicView(quiz), nil
}

func (g generatedQuestion) input() QuestionInput {
	in := QuestionInput{
		Prompt:                 g.Prompt,
		CorrectOptionID:        g.CorrectOptionID,
		Explanation:            g.Explanation,
		DistractorExplanations: map[string]string{},
	}
	for _, o := range g.Options {
		in.Options = append(in.Options, OptionInput{ID: o.ID, Text: o.Text})
	}
	for _, d := range g.Distractors {
		in.DistractorExplanations[d.OptionID] = d.Explanation
	}
	return in
}

// material joins the chapter body with the best matching passages from the
// course's documents, bounded by ContextMaxChars.
func (e *Engine) material(ctx context.Context, ownerID, courseID uuid.UUID, ch *types.Chapter) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(ch.Content))
	if e.deps.Passages != nil && e.cfg.ContextPassages > 0 {
		res, err := e.deps.Passages.Search(ctx, ownerID, retrieval.Query{
			Scope: retrieval.Scope{Kind: retrieval.ScopeCourse, CourseID: courseID},
			Text:  truncateRunes(ch.Title+"\n"+ch.Content, 2000),
			Limit: e.cfg.ContextPassages,
		})
		if err != nil {
			e.log.Warn("passage lookup failed; using chapter text only", "chapter_id", ch.ID, "error", err)
		} else {
			for _, h := range res.Hits {
				sb.WriteString("\n\n")
				sb.WriteString(strings.TrimSpace(h.Text))
			}
		}
	}
	return truncateRunes(sb.String(), e.cfg.ContextMaxChars)
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
