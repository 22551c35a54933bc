package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type SSEEvent string

const (
	SSEEventDocumentStatusChanged SSEEvent = "DocumentStatusChanged"
	SSEEventQuizGraded            SSEEvent = "QuizGraded"
	SSEEventLevelUnlocked         SSEEvent = "LevelUnlocked"
	SSEEventCourseCompleted       SSEEvent = "CourseCompleted"
	SSEEventPointsAwarded         SSEEvent = "PointsAwarded"
	SSEEventAchievementGranted    SSEEvent = "AchievementGranted"
)

// UserChannel is the per-user SSE channel name.
func UserChannel(userID uuid.UUID) string {
	return userID.String()
}

// Publisher ships a message to every replica (see realtime/bus).
type Publisher interface {
	Publish(ctx context.Context, msg SSEMessage) error
}

// Notifier is what domain services use to push events to a user.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event SSEEvent, data any)
}

type emitter struct {
	log *logger.Logger
	hub *SSEHub
	pub Publisher
}

// NewNotifier publishes through pub when set (the forwarder then broadcasts
// on every replica), otherwise broadcasts on the local hub.
func NewNotifier(log *logger.Logger, hub *SSEHub, pub Publisher) Notifier {
	return &emitter{log: log.With("component", "Notifier"), hub: hub, pub: pub}
}

func (e *emitter) Notify(ctx context.Context, userID uuid.UUID, event SSEEvent, data any) {
	if e == nil || userID == uuid.Nil {
		return
	}
	msg := SSEMessage{Channel: UserChannel(userID), Event: event, Data: data}
	if e.pub != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		err := e.pub.Publish(pubCtx, msg)
		if err == nil {
			return
		}
		e.log.Warn("SSE publish failed; falling back to local broadcast", "event", event, "error", err)
	}
	if e.hub != nil {
		e.hub.Broadcast(msg)
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, uuid.UUID, SSEEvent, any) {}

func NopNotifier() Notifier { return nopNotifier{} }
