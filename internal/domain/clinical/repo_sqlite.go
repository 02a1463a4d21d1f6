package clinical

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// =========== Medical Record Repository ===========

type medicalRecordRepoSQLite struct{ db *gorm.DB }

func NewMedicalRecordRepoSQLite(db *gorm.DB) MedicalRecordRepository {
	return &medicalRecordRepoSQLite{db: db}
}

func (r *medicalRecordRepoSQLite) Create(ctx context.Context, m *MedicalRecord) error {
	m.ID = uuid.New()
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *medicalRecordRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	var m MedicalRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	return &m, err
}

func (r *medicalRecordRepoSQLite) Update(ctx context.Context, m *MedicalRecord) error {
	m.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Model(m).
		Select("record_type", "title", "description", "diagnosis", "treatment", "updated_at").
		Updates(m).Error
}

func (r *medicalRecordRepoSQLite) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&MedicalRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *medicalRecordRepoSQLite) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	q := r.db.WithContext(ctx).Model(&MedicalRecord{}).Where("patient_id = ?", patientID)
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []*MedicalRecord
	err := q.Order("recorded_at DESC").Limit(limit).Offset(offset).Find(&items).Error
	return items, int(total), err
}

// =========== Appointment Repository ===========

type appointmentRepoSQLite struct{ db *gorm.DB }

func NewAppointmentRepoSQLite(db *gorm.DB) AppointmentRepository {
	return &appointmentRepoSQLite{db: db}
}

func (r *appointmentRepoSQLite) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *appointmentRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var a Appointment
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&a).Error
	return &a, err
}

func (r *appointmentRepoSQLite) Cancel(ctx context.Context, a *Appointment) (bool, error) {
	a.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&Appointment{}).
		Where("id = ? AND status IN ?", a.ID, []string{string(AppointmentScheduled), string(AppointmentConfirmed)}).
		Updates(map[string]any{
			"status":        string(AppointmentCancelled),
			"cancel_reason": a.CancelReason,
			"updated_at":    a.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
