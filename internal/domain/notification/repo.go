package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists notifications.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Notification, int, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
