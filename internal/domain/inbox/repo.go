package inbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/careguard/internal/platform/notification"
)

// Repository stores in-app notifications. Reads skip records whose
// expires_at has passed at now.
type Repository interface {
	notification.Store
	GetByID(ctx context.Context, id uuid.UUID) (*notification.Record, error)
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, now time.Time, limit, offset int) ([]*notification.Record, int, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID, now time.Time) (int, error)
	// MarkRead reports whether the record was unread.
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// MarkAllRead returns the records it changed.
	MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) ([]*notification.Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
