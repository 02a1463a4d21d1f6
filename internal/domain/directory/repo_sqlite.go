package directory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ehr/careguard/internal/platform/notification"
	"github.com/ehr/careguard/internal/platform/policy"
)

// =========== User Repository ===========

type userRepoSQLite struct{ db *gorm.DB }

func NewUserRepoSQLite(db *gorm.DB) UserRepository {
	return &userRepoSQLite{db: db}
}

func (r *userRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("id = ? AND status <> ?", id, StatusDeleted).Take(&u).Error
	return &u, err
}

func (r *userRepoSQLite) UpdateRole(ctx context.Context, id uuid.UUID, role policy.Role) error {
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND status <> ?", id, StatusDeleted).
		Updates(map[string]any{"role": string(role), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepoSQLite) SetStatus(ctx context.Context, id uuid.UUID, status UserStatus, at time.Time) error {
	updates := map[string]any{"status": string(status), "updated_at": at, "deleted_at": nil}
	if status == StatusDeleted {
		updates["deleted_at"] = at
	}
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND status <> ?", id, StatusDeleted).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepoSQLite) ListActive(ctx context.Context, q notification.UserQuery) ([]*User, error) {
	tx := r.db.WithContext(ctx).Where("status = ?", StatusActive)
	if q.FacilityID != nil {
		tx = tx.Where("facility_id = ?", *q.FacilityID)
	}
	if len(q.Roles) > 0 {
		roles := make([]string, len(q.Roles))
		for i, role := range q.Roles {
			roles[i] = string(role)
		}
		tx = tx.Where("role IN ?", roles)
	}
	var users []*User
	err := tx.Order("created_at").Find(&users).Error
	return users, err
}

func (r *userRepoSQLite) GetActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]*User, error) {
	var users []*User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("status = ? AND id IN ?", StatusActive, ids).Find(&users).Error
	return users, err
}

// =========== Patient Repository ===========

type patientRepoSQLite struct{ db *gorm.DB }

func NewPatientRepoSQLite(db *gorm.DB) PatientRepository {
	return &patientRepoSQLite{db: db}
}

func (r *patientRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	return &p, err
}

func (r *patientRepoSQLite) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Model(p).
		Select("date_of_birth", "gender", "address", "emergency_contact", "updated_at").
		Updates(p).Error
}

// =========== Provider Repository ===========

type providerRepoSQLite struct{ db *gorm.DB }

func NewProviderRepoSQLite(db *gorm.DB) ProviderRepository {
	return &providerRepoSQLite{db: db}
}

func (r *providerRepoSQLite) joined(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table("provider pr").
		Select("pr.*, u.first_name, u.last_name, u.email, u.phone").
		Joins("JOIN app_user u ON u.id = pr.user_id")
}

func (r *providerRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var items []*Provider
	if err := r.joined(ctx).Where("pr.id = ? AND u.status <> ?", id, StatusDeleted).Limit(1).Scan(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return items[0], nil
}

func (r *providerRepoSQLite) List(ctx context.Context, f ProviderFilter, limit, offset int) ([]*Provider, int, error) {
	tx := r.joined(ctx).Where("u.status = ?", StatusActive)
	if f.FacilityID != nil {
		tx = tx.Where("pr.facility_id = ?", *f.FacilityID)
	}
	if f.Specialty != "" {
		tx = tx.Where("pr.specialty LIKE ?", f.Specialty)
	}
	if f.AcceptingPatients != nil {
		tx = tx.Where("pr.accepting_patients = ?", *f.AcceptingPatients)
	}

	var total int64
	if err := tx.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []*Provider
	err := tx.Order("u.last_name, u.first_name").Limit(limit).Offset(offset).Scan(&items).Error
	return items, int(total), err
}

func (r *providerRepoSQLite) Update(ctx context.Context, p *Provider) error {
	p.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Model(&Provider{ID: p.ID}).
		Select("specialty", "bio", "accepting_patients", "license_number", "npi", "updated_at").
		Updates(map[string]any{
			"specialty":          p.Specialty,
			"bio":                p.Bio,
			"accepting_patients": p.AcceptingPatients,
			"license_number":     p.LicenseNumber,
			"npi":                p.NPI,
			"updated_at":         p.UpdatedAt,
		}).Error
}
