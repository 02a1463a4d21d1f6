package inbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/careguard/internal/platform/db"
	"github.com/ehr/careguard/internal/platform/notification"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const notificationCols = `id, recipient_id, sender_id, type, title, message, priority, is_read,
	read_at, expires_at, created_at`

const notExpired = `(expires_at IS NULL OR expires_at > $2)`

func scanRecord(row pgx.Row) (*notification.Record, error) {
	var n notification.Record
	err := row.Scan(&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.Title, &n.Message, &n.Priority,
		&n.IsRead, &n.ReadAt, &n.ExpiresAt, &n.CreatedAt)
	return &n, err
}

func scanRecords(rows pgx.Rows) ([]*notification.Record, error) {
	defer rows.Close()
	var items []*notification.Record
	for rows.Next() {
		n, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// CreateBatch inserts every record in one transaction.
func (r *repoPG) CreateBatch(ctx context.Context, records []*notification.Record) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.pool)
		for _, n := range records {
			_, err := conn.Exec(ctx, `
				INSERT INTO notification (id, recipient_id, sender_id, type, title, message, priority,
					is_read, expires_at, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $9)`,
				n.ID, n.RecipientID, n.SenderID, n.Type, n.Title, n.Message, n.Priority, n.ExpiresAt, n.CreatedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*notification.Record, error) {
	return scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+notificationCols+` FROM notification WHERE id = $1`, id))
}

func (r *repoPG) ListByRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, now time.Time, limit, offset int) ([]*notification.Record, int, error) {
	conn := db.Conn(ctx, r.pool)
	where := `recipient_id = $1 AND ` + notExpired
	if unreadOnly {
		where += ` AND NOT is_read`
	}
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM notification WHERE `+where, recipientID, now).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+notificationCols+` FROM notification WHERE `+where+`
		ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`, recipientID, now, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := scanRecords(rows)
	return items, total, err
}

func (r *repoPG) CountUnread(ctx context.Context, recipientID uuid.UUID, now time.Time) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM notification WHERE recipient_id = $1 AND `+notExpired+` AND NOT is_read`,
		recipientID, now).Scan(&n)
	return n, err
}

func (r *repoPG) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE notification SET is_read = TRUE, read_at = $2 WHERE id = $1 AND NOT is_read`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) ([]*notification.Record, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		UPDATE notification SET is_read = TRUE, read_at = $2
		WHERE recipient_id = $1 AND NOT is_read AND (expires_at IS NULL OR expires_at > $2)
		RETURNING `+notificationCols, recipientID, at)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM notification WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
