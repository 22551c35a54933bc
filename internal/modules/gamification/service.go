package gamification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	gamificationrepo "github.com/yungbote/lumen-backend/internal/data/repos/gamification"
	types "github.com/yungbote/lumen-backend/internal/domain/gamification"
	"github.com/yungbote/lumen-backend/internal/observability"
	"github.com/yungbote/lumen-backend/internal/platform/apierr"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
	"github.com/yungbote/lumen-backend/internal/realtime"
)

type Deps struct {
	Log          *logger.Logger
	Ledger       gamificationrepo.LedgerRepo
	Achievements gamificationrepo.AchievementRepo
	Sessions     gamificationrepo.SessionRepo
	Notify       realtime.Notifier
	Metrics      *observability.Metrics
	Now          func() time.Time
}

type Service struct {
	deps Deps
	cfg  Config
	log  *logger.Logger
}

func New(deps Deps, cfg Config) *Service {
	if deps.Notify == nil {
		deps.Notify = realtime.NopNotifier()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{deps: deps, cfg: cfg.normalized(), log: deps.Log.With("service", "GamificationLedger")}
}

// Award is one point-earning event keyed by the entity that caused it.
type Award struct {
	Event types.EventType
	RefID string
}

// Outcome reports what a Fire pass actually changed.
type Outcome struct {
	PointsAwarded int      `json:"points_awarded"`
	Events        []string `json:"events"`
	Achievements  []string `json:"achievements"`
}

// AwardPoints writes one ledger row for (user, event, ref). A repeat is a
// no-op and reports false.
func (s *Service) AwardPoints(ctx context.Context, userID uuid.UUID, event types.EventType, refID string) (bool, error) {
	if userID == uuid.Nil || event == "" || refID == "" {
		return false, fmt.Errorf("award points: user, event and ref are required")
	}
	points := s.cfg.Points[event]
	created, err := s.deps.Ledger.Insert(dbctx.Context{Ctx: ctx}, &types.PointsLedgerEntry{
		UserID:    userID,
		EventType: event,
		RefID:     refID,
		Points:    points,
		CreatedAt: s.deps.Now(),
	})
	if err != nil {
		s.deps.Metrics.ObserveAward(string(event), "error")
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	if !created {
		s.deps.Metrics.ObserveAward(string(event), "duplicate")
		return false, nil
	}
	s.deps.Metrics.ObserveAward(string(event), "awarded")
	s.deps.Notify.Notify(ctx, userID, realtime.SSEEventPointsAwarded, map[string]any{
		"event_type": event,
		"ref_id":     refID,
		"points":     points,
	})
	return true, nil
}

// CheckAchievements evaluates the rules of one category against a fresh stats
// snapshot and grants the newly satisfied ones.
func (s *Service) CheckAchievements(ctx context.Context, userID uuid.UUID, category Category) ([]string, error) {
	stats, err := s.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.grant(ctx, userID, category, stats)
}

func (s *Service) grant(ctx context.Context, userID uuid.UUID, category Category, stats *Stats) ([]string, error) {
	var granted []string
	for _, id := range Evaluate(category, *stats) {
		created, err := s.deps.Achievements.Grant(dbctx.Context{Ctx: ctx}, &types.AchievementGrant{
			UserID:        userID,
			AchievementID: id,
			Category:      string(category),
			GrantedAt:     s.deps.Now(),
		})
		if err != nil {
			return granted, fmt.Errorf("grant %s: %w", id, err)
		}
		if !created {
			continue
		}
		granted = append(granted, id)
		s.deps.Metrics.ObserveAchievement(id)
		s.deps.Notify.Notify(ctx, userID, realtime.SSEEventAchievementGranted, map[string]any{
			"achievement_id": id,
			"category":       category,
		})
	}
	return granted, nil
}

func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	dbc := dbctx.Context{Ctx: ctx}
	counts, err := s.deps.Ledger.CountByEvent(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("count ledger events: %w", err)
	}
	now := s.deps.Now()
	times, err := s.deps.Ledger.ActivityTimes(dbc, userID, now.Add(-s.cfg.StreakWindow))
	if err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}
	stats := statsFromCounts(counts)
	stats.StreakDays = StreakDays(times, now)
	return &stats, nil
}

// Fire awards every event then checks the affected achievement categories.
// It never returns an error: failures are logged and the primary action
// proceeds. The work runs detached from ctx cancellation and is bounded by
// the configured timeout.
func (s *Service) Fire(ctx context.Context, userID uuid.UUID, awards ...Award) Outcome {
	out := Outcome{Events: []string{}, Achievements: []string{}}
	if s == nil || userID == uuid.Nil || len(awards) == 0 {
		return out
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()

	var categories []Category
	for _, a := range awards {
		created, err := s.AwardPoints(fctx, userID, a.Event, a.RefID)
		if err != nil {
			s.log.Warn("award points failed", "user_id", userID, "event_type", a.Event, "ref_id", a.RefID, "error", err)
			continue
		}
		if created {
			out.PointsAwarded += s.cfg.Points[a.Event]
			out.Events = append(out.Events, string(a.Event))
		}
		categories = append(categories, categoriesFor(a.Event)...)
	}
	categories = lo.Uniq(categories)
	if len(categories) == 0 {
		return out
	}

	stats, err := s.Stats(fctx, userID)
	if err != nil {
		s.log.Warn("achievement stats failed", "user_id", userID, "error", err)
		return out
	}
	for _, c := range categories {
		ids, err := s.grant(fctx, userID, c, stats)
		out.Achievements = append(out.Achievements, ids...)
		if err != nil {
			s.log.Warn("achievement grant failed", "user_id", userID, "category", c, "error", err)
		}
	}
	return out
}

type PointsSummary struct {
	Total  int64                      `json:"total"`
	Recent []*types.PointsLedgerEntry `json:"recent"`
}

func (s *Service) Points(ctx context.Context, userID uuid.UUID, limit int) (*PointsSummary, error) {
	if userID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	dbc := dbctx.Context{Ctx: ctx}
	total, err := s.deps.Ledger.Total(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("points total: %w", err)
	}
	recent, err := s.deps.Ledger.ListRecent(dbc, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent points: %w", err)
	}
	return &PointsSummary{Total: total, Recent: recent}, nil
}

type AchievementView struct {
	ID        string     `json:"id"`
	Category  Category   `json:"category"`
	Granted   bool       `json:"granted"`
	GrantedAt *time.Time `json:"granted_at,omitempty"`
}

// Achievements lists the full catalog with the caller's grants marked.
func (s *Service) Achievements(ctx context.Context, userID uuid.UUID) ([]AchievementView, error) {
	if userID == uuid.Nil {
		return nil, apierr.Unauthorized("no verified identity")
	}
	grants, err := s.deps.Achievements.ListByUser(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	byID := lo.KeyBy(grants, func(g *types.AchievementGrant) string { return g.AchievementID })
	out := make([]AchievementView, 0, len(Rules))
	for _, r := range Rules {
		v := AchievementView{ID: r.ID, Category: r.Category}
		if g, ok := byID[r.ID]; ok {
			at := g.GrantedAt
			v.Granted = true
			v.GrantedAt = &at
		}
		out = append(out, v)
	}
	for _, g := range grants {
		if _, known := ruleCategory(g.AchievementID); !known {
			at := g.GrantedAt
			out = append(out, AchievementView{ID: g.AchievementID, Category: Category(g.Category), Granted: true, GrantedAt: &at})
		}
	}
	return out, nil
}
