// Package notification creates in-app notification records and delivers
// copies over external channels. Records are the primary write; email and SMS
// are best-effort and their failures are reported back to the caller as
// non-fatal detail.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/careguard/internal/platform/policy"
)

// Type classifies what triggered a notification.
type Type string

const (
	TypeMedicalRecord        Type = "MEDICAL_RECORD"
	TypeAppointment          Type = "APPOINTMENT"
	TypeAppointmentCancelled Type = "APPOINTMENT_CANCELLED"
	TypeClaimStatus          Type = "CLAIM_STATUS"
	TypeBroadcast            Type = "BROADCAST"
	TypeSystem               Type = "SYSTEM"
)

func (t Type) Valid() bool {
	switch t {
	case TypeMedicalRecord, TypeAppointment, TypeAppointmentCancelled, TypeClaimStatus, TypeBroadcast, TypeSystem:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Channel is an external delivery mechanism.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// Record is one in-app notification. After creation only IsRead and ReadAt
// change.
type Record struct {
	ID          uuid.UUID  `json:"id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	SenderID    *uuid.UUID `json:"sender_id,omitempty"`
	Type        Type       `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Priority    Priority   `json:"priority"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Recipient is an addressable user. Empty Email or Phone means the channel is
// skipped for that user.
type Recipient struct {
	UserID     uuid.UUID
	Name       string
	Email      string
	Phone      string
	FacilityID *uuid.UUID
	Role       policy.Role
}

// Store persists notification records.
type Store interface {
	CreateBatch(ctx context.Context, records []*Record) error
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}
