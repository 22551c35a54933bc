package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	learningrepo "github.com/yungbote/lumen-backend/internal/data/repos/learning"
	materialsrepo "github.com/yungbote/lumen-backend/internal/data/repos/materials"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/envutil"
	"github.com/yungbote/lumen-backend/internal/platform/llm"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type ScopeKind string

const (
	ScopeUser      ScopeKind = "user"
	ScopeDocuments ScopeKind = "documents"
	ScopeCourse    ScopeKind = "course"
)

type Scope struct {
	Kind        ScopeKind   `json:"kind"`
	DocumentIDs []uuid.UUID `json:"document_ids,omitempty"`
	CourseID    uuid.UUID   `json:"course_id,omitempty"`
}

type Query struct {
	Scope     Scope    `json:"scope"`
	Text      string   `json:"query"`
	Threshold *float64 `json:"threshold,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

type Hit struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Score      float64   `json:"score"`
}

type Result struct {
	Hits      []Hit `json:"hits"`
	NoResults bool  `json:"no_results"`
}

type Config struct {
	DefaultThreshold float64
	DefaultLimit     int
	MaxLimit         int
	MaxQueryChars    int
	EmbedTimeout     time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		DefaultThreshold: envutil.Float("RETRIEVAL_DEFAULT_THRESHOLD", 0.25),
		DefaultLimit:     envutil.Int("RETRIEVAL_DEFAULT_LIMIT", 8),
		MaxLimit:         envutil.Int("RETRIEVAL_MAX_LIMIT", 50),
		MaxQueryChars:    envutil.Int("RETRIEVAL_MAX_QUERY_CHARS", 4000),
		EmbedTimeout:     envutil.Seconds("EMBED_TIMEOUT_SECONDS", 60),
	}
}

type Deps struct {
	Log       *logger.Logger
	Documents materialsrepo.DocumentRepo
	Chunks    materialsrepo.ChunkRepo
	Courses   learningrepo.CourseRepo
	Models    *llm.Router
}

type Retriever struct {
	deps Deps
	cfg  Config
	log  *logger.Logger
}

func New(deps Deps, cfg Config) *Retriever {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 8
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 50
	}
	if cfg.MaxQueryChars <= 0 {
		cfg.MaxQueryChars = 4000
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 60 * time.Second
	}
	return &Retriever{deps: deps, cfg: cfg, log: deps.Log.With("service", "SemanticRetriever")}
}

// Search embeds the query and ranks every in-scope chunk by cosine
// similarity. Scope is resolved to owned document ids before any chunk is
// read.
func (r *Retriever) Search(ctx context.Context, callerID uuid.UUID, q Query) (*Result, error) {
	if callerID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, apierr.Validation("invalid_query", "query text is required")
	}
	if len([]rune(text)) > r.cfg.MaxQueryChars {
		return nil, apierr.Validation("invalid_query", "query exceeds %d characters", r.cfg.MaxQueryChars)
	}
	threshold := r.cfg.DefaultThreshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}
	if math.IsNaN(threshold) || threshold < -1 || threshold > 1 {
		return nil, apierr.Validation("invalid_threshold", "threshold must be between -1 and 1")
	}
	limit := q.Limit
	if limit == 0 {
		limit = r.cfg.DefaultLimit
	}
	if limit < 0 || limit > r.cfg.MaxLimit {
		return nil, apierr.Validation("invalid_limit", "limit must be between 1 and %d", r.cfg.MaxLimit)
	}

	docIDs, err := r.resolveScope(ctx, callerID, q.Scope)
	if err != nil {
		return nil, err
	}
	if docIDs != nil && len(docIDs) == 0 {
		return &Result{Hits: []Hit{}, NoResults: true}, nil
	}

	embedder, err := r.deps.Models.Embedder()
	if err != nil {
		return nil, apierr.Upstream("embedding_unavailable", err)
	}
	embedCtx, cancel := context.WithTimeout(ctx, r.cfg.EmbedTimeout)
	vecs, err := embedder.Embed(embedCtx, []string{text})
	cancel()
	if err != nil {
		return nil, apierr.Upstream("embedding_failed", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, apierr.Upstream("embedding_failed", fmt.Errorf("query embedding missing"))
	}

	chunks, err := r.deps.Chunks.ListEmbeddedForOwner(dbctx.Context{Ctx: ctx}, callerID, docIDs)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	hits := make([]Hit, 0, limit)
	for _, ch := range chunks {
		if ch.OwnerID != callerID {
			continue
		}
		v, err := ch.Vector()
		if err != nil {
			r.log.Warn("skipping chunk with unreadable embedding", "chunk_id", ch.ID, "error", err)
			continue
		}
		score, ok := Cosine(vecs[0], v)
		if !ok || score < threshold {
			continue
		}
		hits = append(hits, Hit{
			ChunkID:    ch.ID,
			DocumentID: ch.DocumentID,
			Ordinal:    ch.Ordinal,
			Text:       ch.Text,
			Score:      score,
		})
	}
	Rank(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return &Result{Hits: hits, NoResults: len(hits) == 0}, nil
}

// resolveScope returns the owned document ids a search may touch. A nil
// slice means every document the caller owns.
func (r *Retriever) resolveScope(ctx context.Context, callerID uuid.UUID, s Scope) ([]uuid.UUID, error) {
	dbc := dbctx.Context{Ctx: ctx}
	switch s.Kind {
	case "", ScopeUser:
		return nil, nil
	case ScopeDocuments:
		ids := lo.Uniq(lo.Filter(s.DocumentIDs, func(id uuid.UUID, _ int) bool { return id != uuid.Nil }))
		if len(ids) == 0 {
			return nil, apierr.Validation("invalid_scope", "document scope needs at least one document id")
		}
		owned, err := r.deps.Documents.ListOwnedIDs(dbc, callerID, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve scope: %w", err)
		}
		if len(owned) != len(ids) {
			return nil, apierr.NotFound("document_not_found", "one or more documents were not found")
		}
		return owned, nil
	case ScopeCourse:
		if s.CourseID == uuid.Nil {
			return nil, apierr.Validation("invalid_scope", "course scope needs a course id")
		}
		course, err := r.deps.Courses.GetByOwnerAndID(dbc, callerID, s.CourseID)
		if err != nil {
			return nil, fmt.Errorf("resolve scope: %w", err)
		}
		if course == nil {
			return nil, apierr.NotFound("course_not_found", "course not found")
		}
		attached, err := r.deps.Courses.ListDocumentIDs(dbc, course.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve scope: %w", err)
		}
		if len(attached) == 0 {
			return []uuid.UUID{}, nil
		}
		owned, err := r.deps.Documents.ListOwnedIDs(dbc, callerID, attached)
		if err != nil {
			return nil, fmt.Errorf("resolve scope: %w", err)
		}
		return owned, nil
	default:
		return nil, apierr.Validation("invalid_scope", "unknown scope kind %q", s.Kind)
	}
}

// Rank orders hits by score descending; ties go to the earlier ordinal, then
// the lower document id.
func Rank(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Ordinal != hits[j].Ordinal {
			return hits[i].Ordinal < hits[j].Ordinal
		}
		return hits[i].DocumentID.String() < hits[j].DocumentID.String()
	})
}

// Cosine returns the cosine similarity of a and b. It reports false when the
// lengths differ or either vector has zero norm.
func Cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
