package quiz

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/lumen-backend/internal/domain/learning"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/llm"
)

type MissedQuestion struct {
	QuestionID      uuid.UUID `json:"question_id"`
	Prompt          string    `json:"prompt"`
	ChosenOptionID  string    `json:"chosen_option_id"`
	CorrectOptionID string    `json:"correct_option_id"`
	Explanation     string    `json:"explanation"`
}

type Remediation struct {
	AttemptID uuid.UUID        `json:"attempt_id"`
	Missed    []MissedQuestion `json:"missed"`
	Guidance  string           `json:"guidance"`
	Generated bool             `json:"generated"`
}

const remediationSystemPrompt = "You are a patient tutor. For each missed question, explain the misconception " +
	"behind the chosen answer and how to reason toward the correct one. Be brief and concrete."

// Remediation explains the questions a graded attempt missed. The remediation
// model is optional; without it the stored explanations are returned.
func (e *Engine) Remediation(ctx context.Context, userID, attemptID uuid.UUID) (*Remediation, error) {
	if userID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	dbc := dbctx.Context{Ctx: ctx}
	attempt, err := e.deps.Attempts.GetByID(dbc, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if attempt == nil || attempt.UserID != userID {
		return nil, apierr.NotFound("attempt_not_found", "attempt not found")
	}
	if attempt.Status != types.AttemptSubmitted {
		return nil, apierr.Conflict("attempt_not_submitted", "remediation is available after the attempt is submitted")
	}
	quiz, err := e.deps.Quizzes.GetWithQuestions(dbc, attempt.QuizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if quiz == nil || quiz.OwnerID != userID {
		return nil, apierr.NotFound("quiz_not_found", "quiz not found")
	}

	prompts := make(map[uuid.UUID]types.QuizQuestion, len(quiz.Questions))
	for _, q := range quiz.Questions {
		prompts[q.ID] = q
	}
	out := &Remediation{AttemptID: attempt.ID, Missed: []MissedQuestion{}}
	for _, r := range attempt.Results.Data() {
		if r.Correct {
			continue
		}
		out.Missed = append(out.Missed, MissedQuestion{
			QuestionID:      r.QuestionID,
			Prompt:          prompts[r.QuestionID].Prompt,
			ChosenOptionID:  r.ChosenOptionID,
			CorrectOptionID: r.CorrectOptionID,
			Explanation:     r.Explanation,
		})
		if len(out.Missed) == e.cfg.RemediationMaxMiss {
			break
		}
	}
	if len(out.Missed) == 0 {
		out.Guidance = "Every answer was correct."
		return out, nil
	}

	out.Guidance = fallbackGuidance(out.Missed, prompts)
	gen, err := e.deps.Models.Generator(llm.TaskRemediation)
	if err != nil {
		return out, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerateTimeout)
	defer cancel()
	text, err := gen.GenerateText(callCtx, remediationSystemPrompt, remediationPrompt(out.Missed, prompts))
	if err != nil || strings.TrimSpace(text) == "" {
		e.log.Warn("remediation generation failed; using stored explanations", "attempt_id", attempt.ID, "error", err)
		return out, nil
	}
	out.Guidance = strings.TrimSpace(text)
	out.Generated = true
	return out, nil
}

func optionText(q types.QuizQuestion, id string) string {
	for _, o := range q.Options.Data() {
		if o.ID == id {
			return o.Text
		}
	}
	if id == "" {
		return "(no answer)"
	}
	return id
}

func remediationPrompt(missed []MissedQuestion, questions map[uuid.UUID]types.QuizQuestion) string {
	var sb strings.Builder
	for i, m := range missed {
		q := questions[m.QuestionID]
		fmt.Fprintf(&sb, "%d. %s\nChosen: %s\nCorrect: %s\nReference explanation: %s\n\n",
			i+1, m.Prompt, optionText(q, m.ChosenOptionID), optionText(q, m.CorrectOptionID), m.Explanation)
	}
	return sb.String()
}

func fallbackGuidance(missed []MissedQuestion, questions map[uuid.UUID]types.QuizQuestion) string {
	var sb strings.Builder
	for i, m := range missed {
		q := questions[m.QuestionID]
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s The answer is %q.", m.Prompt, optionText(q, m.CorrectOptionID))
		if m.Explanation != "" {
			sb.WriteString(" ")
			sb.WriteString(m.Explanation)
		}
		if why := q.DistractorExplanations.Data()[m.ChosenOptionID]; why != "" {
			sb.WriteString(" ")
			sb.WriteString(why)
		}
	}
	return sb.String()
}
