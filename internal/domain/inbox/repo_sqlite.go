package inbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ehr/careguard/internal/platform/notification"
)

const table = "notification"

type repoSQLite struct{ db *gorm.DB }

func NewRepoSQLite(db *gorm.DB) Repository {
	return &repoSQLite{db: db}
}

func (r *repoSQLite) CreateBatch(ctx context.Context, records []*notification.Record) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Table(table).Create(&records).Error
}

func (r *repoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*notification.Record, error) {
	var n notification.Record
	err := r.db.WithContext(ctx).Table(table).Where("id = ?", id).Take(&n).Error
	return &n, err
}

func (r *repoSQLite) visible(ctx context.Context, recipientID uuid.UUID, now time.Time) *gorm.DB {
	return r.db.WithContext(ctx).Table(table).
		Where("recipient_id = ?", recipientID).
		Where("expires_at IS NULL OR expires_at > ?", now)
}

func (r *repoSQLite) ListByRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, now time.Time, limit, offset int) ([]*notification.Record, int, error) {
	q := r.visible(ctx, recipientID, now)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []*notification.Record
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&items).Error
	return items, int(total), err
}

func (r *repoSQLite) CountUnread(ctx context.Context, recipientID uuid.UUID, now time.Time) (int, error) {
	var n int64
	err := r.visible(ctx, recipientID, now).Where("is_read = ?", false).Count(&n).Error
	return int(n), err
}

func (r *repoSQLite) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Table(table).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]any{"is_read": true, "read_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repoSQLite) MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) ([]*notification.Record, error) {
	var changed []*notification.Record
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(table).
			Where("recipient_id = ? AND is_read = ?", recipientID, false).
			Where("expires_at IS NULL OR expires_at > ?", at).
			Find(&changed).Error; err != nil {
			return err
		}
		if len(changed) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(changed))
		for _, n := range changed {
			ids = append(ids, n.ID)
			n.IsRead = true
			n.ReadAt = &at
		}
		return tx.Table(table).Where("id IN ?", ids).
			Updates(map[string]any{"is_read": true, "read_at": at}).Error
	})
	return changed, err
}

func (r *repoSQLite) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Table(table).Where("id = ?", id).Delete(&notification.Record{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
