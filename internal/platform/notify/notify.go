// Package notify delivers user-facing circulation events (reservation ready, fine assessed).
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventReservationReady   EventType = "reservation.ready"
	EventReservationExpired EventType = "reservation.expired"
	EventFineAssessed       EventType = "fine.assessed"
)

type Event struct {
	ID         string     `json:"id"`
	Type       EventType  `json:"type"`
	UserID     string     `json:"user_id"`
	TitleID    int64      `json:"title_id,omitempty"`
	SubjectID  int64      `json:"subject_id,omitempty"`
	Message    string     `json:"message"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh ID.
func NewEvent(typ EventType, userID string, now time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		UserID:     userID,
		OccurredAt: now.UTC(),
	}
}

// Notifier は失敗しても呼び出し元へエラーを返さない（ログのみ）
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Inbox lists the latest events for a user, newest first.
type Inbox interface {
	Inbox(ctx context.Context, userID string, limit int) ([]Event, error)
}

type LogNotifier struct{ logger *slog.Logger }

func NewLogNotifier(logger *slog.Logger) *LogNotifier { return &LogNotifier{logger: logger} }

func (n *LogNotifier) Notify(ctx context.Context, e Event) {
	n.logger.InfoContext(ctx, "notification",
		"id", e.ID,
		"type", string(e.Type),
		"user_id", e.UserID,
		"title_id", e.TitleID,
		"message", e.Message,
	)
}

// Inbox: ログ出力だけなので常に空
func (n *LogNotifier) Inbox(context.Context, string, int) ([]Event, error) { return nil, nil }
