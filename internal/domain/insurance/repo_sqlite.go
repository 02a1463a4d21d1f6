package insurance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// =========== Policy Repository ===========

type policyRepoSQLite struct{ db *gorm.DB }

func NewPolicyRepoSQLite(db *gorm.DB) PolicyRepository {
	return &policyRepoSQLite{db: db}
}

func (r *policyRepoSQLite) Create(ctx context.Context, p *Policy) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *policyRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Policy, error) {
	var p Policy
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	return &p, err
}

func (r *policyRepoSQLite) Update(ctx context.Context, p *Policy) error {
	p.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Model(p).
		Select("provider_name", "group_number", "coverage_type", "end_date", "is_active", "updated_at").
		Updates(p).Error
}

func (r *policyRepoSQLite) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Policy{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *policyRepoSQLite) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Policy, int, error) {
	q := r.db.WithContext(ctx).Model(&Policy{}).Where("patient_id = ?", patientID)
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []*Policy
	err := q.Order("start_date DESC").Limit(limit).Offset(offset).Find(&items).Error
	return items, int(total), err
}

// =========== Claim Repository ===========

type claimRepoSQLite struct{ db *gorm.DB }

func NewClaimRepoSQLite(db *gorm.DB) ClaimRepository {
	return &claimRepoSQLite{db: db}
}

func (r *claimRepoSQLite) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *claimRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	var c Claim
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error
	return &c, err
}

func (r *claimRepoSQLite) UpdateStatus(ctx context.Context, c *Claim, from ClaimStatus) (bool, error) {
	c.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&Claim{}).
		Where("id = ? AND status = ?", c.ID, string(from)).
		Updates(map[string]any{"status": string(c.Status), "updated_at": c.UpdatedAt})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *claimRepoSQLite) CountByPolicy(ctx context.Context, policyID uuid.UUID) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Claim{}).Where("policy_id = ?", policyID).Count(&n).Error
	return int(n), err
}
