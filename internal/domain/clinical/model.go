package clinical

import (
	"time"

	"github.com/google/uuid"
)

type RecordType string

const (
	RecordConsultation RecordType = "CONSULTATION"
	RecordDiagnosis    RecordType = "DIAGNOSIS"
	RecordLabResult    RecordType = "LAB_RESULT"
	RecordPrescription RecordType = "PRESCRIPTION"
	RecordProcedure    RecordType = "PROCEDURE"
	RecordImaging      RecordType = "IMAGING"
	RecordNote         RecordType = "NOTE"
)

var validRecordTypes = map[RecordType]bool{
	RecordConsultation: true, RecordDiagnosis: true, RecordLabResult: true,
	RecordPrescription: true, RecordProcedure: true, RecordImaging: true, RecordNote: true,
}

func (t RecordType) Valid() bool { return validRecordTypes[t] }

type MedicalRecord struct {
	ID          uuid.UUID  `json:"id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	AuthorID    *uuid.UUID `json:"author_id,omitempty"`
	RecordType  RecordType `json:"record_type"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Diagnosis   *string    `json:"diagnosis,omitempty"`
	Treatment   *string    `json:"treatment,omitempty"`
	RecordedAt  time.Time  `json:"recorded_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (MedicalRecord) TableName() string { return "medical_record" }

type CreateRecordRequest struct {
	RecordType  RecordType `json:"record_type"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Diagnosis   *string    `json:"diagnosis"`
	Treatment   *string    `json:"treatment"`
	RecordedAt  *time.Time `json:"recorded_at"`
}

// UpdateRecordRequest carries editable fields. Nil fields are left
// unchanged.
type UpdateRecordRequest struct {
	RecordType  *RecordType `json:"record_type"`
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	Diagnosis   *string     `json:"diagnosis"`
	Treatment   *string     `json:"treatment"`
}

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
	AppointmentNoShow    AppointmentStatus = "NO_SHOW"
)

// Cancellable reports whether an appointment in status s may still be
// cancelled.
func (s AppointmentStatus) Cancellable() bool {
	return s == AppointmentScheduled || s == AppointmentConfirmed
}

type Appointment struct {
	ID              uuid.UUID         `json:"id"`
	PatientID       uuid.UUID         `json:"patient_id"`
	ProviderID      uuid.UUID         `json:"provider_id"`
	ScheduledAt     time.Time         `json:"scheduled_at"`
	DurationMinutes int               `json:"duration_minutes"`
	Reason          *string           `json:"reason,omitempty"`
	Status          AppointmentStatus `json:"status"`
	CancelReason    *string           `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (Appointment) TableName() string { return "appointment" }

type BookRequest struct {
	ProviderID      uuid.UUID `json:"provider_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Reason          *string   `json:"reason"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}
