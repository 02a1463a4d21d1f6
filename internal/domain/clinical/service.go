package clinical

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/audit"
	"github.com/ehr/careguard/internal/platform/guard"
	"github.com/ehr/careguard/internal/platform/notification"
	"github.com/ehr/careguard/internal/platform/policy"
)

const (
	maxTitleLength      = 200
	defaultDuration     = 30
	minDurationMinutes  = 5
	maxDurationMinutes  = 480
	appointmentDateForm = "2006-01-02"
	appointmentTimeForm = "15:04 MST"
)

type Service struct {
	records     MedicalRecordRepository
	appts       AppointmentRepository
	projections guard.ProjectionStore
	audit       *audit.Recorder
	notifier    *notification.Dispatcher
	people      notification.RecipientLookup
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(records MedicalRecordRepository, appts AppointmentRepository, projections guard.ProjectionStore,
	rec *audit.Recorder, notifier *notification.Dispatcher, people notification.RecipientLookup, logger zerolog.Logger) *Service {
	return &Service{
		records:     records,
		appts:       appts,
		projections: projections,
		audit:       rec,
		notifier:    notifier,
		people:      people,
		logger:      logger,
		now:         time.Now,
	}
}

// -- Medical Records --

func (s *Service) CreateRecord(ctx context.Context, actor policy.Actor, patient policy.Resource, in CreateRecordRequest) (*MedicalRecord, *notification.Summary, error) {
	in.Title = strings.TrimSpace(in.Title)
	if !in.RecordType.Valid() {
		return nil, nil, apperr.Validation("unknown record_type %q", in.RecordType)
	}
	if in.Title == "" || len(in.Title) > maxTitleLength {
		return nil, nil, apperr.Validation("title is required and at most %d characters", maxTitleLength)
	}
	now := s.now().UTC()
	recordedAt := now
	if in.RecordedAt != nil {
		if in.RecordedAt.After(now) {
			return nil, nil, apperr.Validation("recorded_at is in the future")
		}
		recordedAt = in.RecordedAt.UTC()
	}

	m, err := audit.Mutate(ctx, s.audit, recordSpec(audit.ActionCreate), func(ctx context.Context) (*MedicalRecord, error) {
		m := &MedicalRecord{
			PatientID:   patient.ID,
			AuthorID:    &actor.ID,
			RecordType:  in.RecordType,
			Title:       in.Title,
			Description: in.Description,
			Diagnosis:   in.Diagnosis,
			Treatment:   in.Treatment,
			RecordedAt:  recordedAt,
		}
		if err := s.records.Create(ctx, m); err != nil {
			return nil, apperr.FromStore(err, "medical record")
		}
		return m, nil
	})
	if err != nil {
		return nil, nil, err
	}

	author := string(actor.Role)
	people := s.lookup(ctx, ownerOf(patient), actor.ID)
	if r, ok := people[actor.ID]; ok && r.Name != "" {
		author = r.Name
	}
	summary := s.notify(ctx, actor, people, []uuid.UUID{ownerOf(patient)}, notification.Request{
		Type:       notification.TypeMedicalRecord,
		Channels:   []notification.Channel{notification.ChannelEmail},
		TemplateID: notification.TemplateRecordCreated,
		TemplateData: map[string]string{
			"record_type": strings.ToLower(strings.ReplaceAll(string(m.RecordType), "_", " ")),
			"title":       m.Title,
			"author":      author,
		},
	})
	return m, summary, nil
}

func recordSpec(action string) audit.Spec[*MedicalRecord] {
	return audit.Spec[*MedicalRecord]{
		Action:       action,
		ResourceType: policy.ResourceMedicalRecord,
		ResourceID:   func(m *MedicalRecord) string { return m.ID.String() },
		Details: func(m *MedicalRecord) map[string]any {
			return map[string]any{"title": m.Title, "record_type": string(m.RecordType), "patient_id": m.PatientID.String()}
		},
	}
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	m, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, "medical record")
	}
	return m, nil
}

func (s *Service) ListRecords(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	items, total, err := s.records.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStore(err, "medical record")
	}
	if items == nil {
		items = []*MedicalRecord{}
	}
	return items, total, nil
}

func (s *Service) UpdateRecord(ctx context.Context, id uuid.UUID, in UpdateRecordRequest) (*MedicalRecord, error) {
	if in.RecordType != nil && !in.RecordType.Valid() {
		return nil, apperr.Validation("unknown record_type %q", *in.RecordType)
	}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" || len(t) > maxTitleLength {
			return nil, apperr.Validation("title is required and at most %d characters", maxTitleLength)
		}
		in.Title = &t
	}
	return audit.Mutate(ctx, s.audit, recordSpec(audit.ActionUpdate), func(ctx context.Context) (*MedicalRecord, error) {
		m, err := s.GetRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		if in.RecordType != nil {
			m.RecordType = *in.RecordType
		}
		if in.Title != nil {
			m.Title = *in.Title
		}
		if in.Description != nil {
			m.Description = in.Description
		}
		if in.Diagnosis != nil {
			m.Diagnosis = in.Diagnosis
		}
		if in.Treatment != nil {
			m.Treatment = in.Treatment
		}
		if err := s.records.Update(ctx, m); err != nil {
			return nil, apperr.FromStore(err, "medical record")
		}
		return m, nil
	})
}

func (s *Service) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	_, err := audit.Mutate(ctx, s.audit, recordSpec(audit.ActionDelete), func(ctx context.Context) (*MedicalRecord, error) {
		m, err := s.GetRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.records.Delete(ctx, id); err != nil {
			return nil, apperr.FromStore(err, "medical record")
		}
		return m, nil
	})
	return err
}

// -- Appointments --

// BookAppointment schedules a visit for patient. The provider must practice
// at the patient's facility.
func (s *Service) BookAppointment(ctx context.Context, actor policy.Actor, patient policy.Resource, in BookRequest) (*Appointment, *notification.Summary, error) {
	if in.ProviderID == uuid.Nil {
		return nil, nil, apperr.Validation("provider_id is required")
	}
	if !in.ScheduledAt.After(s.now()) {
		return nil, nil, apperr.Validation("scheduled_at must be in the future")
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = defaultDuration
	}
	if in.DurationMinutes < minDurationMinutes || in.DurationMinutes > maxDurationMinutes {
		return nil, nil, apperr.Validation("duration_minutes must be between %d and %d", minDurationMinutes, maxDurationMinutes)
	}

	provider, err := s.projections.FetchProjection(ctx, policy.ResourceProvider, in.ProviderID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, nil, apperr.Validation("provider %s does not exist", in.ProviderID)
		}
		return nil, nil, err
	}
	if !sameFacility(patient.FacilityID, provider.FacilityID) {
		return nil, nil, apperr.Validation("provider does not practice at the patient's facility")
	}

	a, err := audit.Mutate(ctx, s.audit, appointmentSpec(audit.ActionCreate), func(ctx context.Context) (*Appointment, error) {
		a := &Appointment{
			PatientID:       patient.ID,
			ProviderID:      in.ProviderID,
			ScheduledAt:     in.ScheduledAt.UTC(),
			DurationMinutes: in.DurationMinutes,
			Reason:          in.Reason,
			Status:          AppointmentScheduled,
		}
		if err := s.appts.Create(ctx, a); err != nil {
			return nil, apperr.FromStore(err, "appointment")
		}
		return a, nil
	})
	if err != nil {
		return nil, nil, err
	}

	reason := "not specified"
	if a.Reason != nil && *a.Reason != "" {
		reason = *a.Reason
	}
	ids := []uuid.UUID{ownerOf(patient), ownerOf(*provider)}
	summary := s.notify(ctx, actor, s.lookup(ctx, ids...), ids, notification.Request{
		Type:       notification.TypeAppointment,
		Channels:   []notification.Channel{notification.ChannelEmail, notification.ChannelSMS},
		TemplateID: notification.TemplateAppointmentBooked,
		TemplateData: map[string]string{
			"date":   a.ScheduledAt.Format(appointmentDateForm),
			"time":   a.ScheduledAt.Format(appointmentTimeForm),
			"reason": reason,
		},
	})
	return a, summary, nil
}

func appointmentSpec(action string) audit.Spec[*Appointment] {
	return audit.Spec[*Appointment]{
		Action:       action,
		ResourceType: policy.ResourceAppointment,
		ResourceID:   func(a *Appointment) string { return a.ID.String() },
		Details: func(a *Appointment) map[string]any {
			return map[string]any{
				"provider_id":  a.ProviderID.String(),
				"scheduled_at": a.ScheduledAt.Format(time.RFC3339),
				"status":       string(a.Status),
			}
		},
	}
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, "appointment")
	}
	return a, nil
}

// CancelAppointment cancels a scheduled or confirmed appointment and tells
// both the patient and the provider.
func (s *Service) CancelAppointment(ctx context.Context, actor policy.Actor, appt policy.Resource, in CancelRequest) (*Appointment, *notification.Summary, error) {
	reason := strings.TrimSpace(in.Reason)
	a, err := audit.Mutate(ctx, s.audit, appointmentSpec(audit.ActionStatus), func(ctx context.Context) (*Appointment, error) {
		a, err := s.GetAppointment(ctx, appt.ID)
		if err != nil {
			return nil, err
		}
		if !a.Status.Cancellable() {
			return nil, apperr.Conflict("appointment is %s", strings.ToLower(string(a.Status)))
		}
		if reason != "" {
			a.CancelReason = &reason
		}
		ok, err := s.appts.Cancel(ctx, a)
		if err != nil {
			return nil, apperr.FromStore(err, "appointment")
		}
		if !ok {
			return nil, apperr.Conflict("appointment was changed concurrently")
		}
		a.Status = AppointmentCancelled
		return a, nil
	})
	if err != nil {
		return nil, nil, err
	}

	ids := []uuid.UUID{ownerOf(appt)}
	if provider, err := s.projections.FetchProjection(ctx, policy.ResourceProvider, a.ProviderID); err == nil {
		ids = append(ids, ownerOf(*provider))
	} else {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("provider lookup for cancellation notice failed")
	}
	cancelNote := ""
	if reason != "" {
		cancelNote = "Reason: " + reason + "."
	}
	summary := s.notify(ctx, actor, s.lookup(ctx, ids...), ids, notification.Request{
		Type:       notification.TypeAppointmentCancelled,
		Priority:   notification.PriorityHigh,
		Channels:   []notification.Channel{notification.ChannelEmail, notification.ChannelSMS},
		TemplateID: notification.TemplateAppointmentCancelled,
		TemplateData: map[string]string{
			"date":          a.ScheduledAt.Format(appointmentDateForm),
			"time":          a.ScheduledAt.Format(appointmentTimeForm),
			"cancel_reason": cancelNote,
		},
	})
	return a, summary, nil
}

// -- Notifications --

func ownerOf(res policy.Resource) uuid.UUID {
	if res.OwnerUserID == nil {
		return uuid.Nil
	}
	return *res.OwnerUserID
}

// sameFacility is false when either side has no facility.
func sameFacility(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

// lookup resolves addresses for ids. Failures are logged and yield an empty
// map; notifications are a side effect of an already committed mutation.
func (s *Service) lookup(ctx context.Context, ids ...uuid.UUID) map[uuid.UUID]notification.Recipient {
	out := make(map[uuid.UUID]notification.Recipient, len(ids))
	if s.people == nil {
		return out
	}
	rs, err := s.people.LookupRecipients(ctx, ids...)
	if err != nil {
		s.logger.Error().Err(err).Msg("recipient lookup failed")
		return out
	}
	for _, r := range rs {
		out[r.UserID] = r
	}
	return out
}

// notify sends req to the users in to, skipping the actor and anyone no
// longer active.
func (s *Service) notify(ctx context.Context, actor policy.Actor, people map[uuid.UUID]notification.Recipient, to []uuid.UUID, req notification.Request) *notification.Summary {
	seen := make(map[uuid.UUID]bool, len(to))
	for _, id := range to {
		r, ok := people[id]
		if !ok || id == actor.ID || seen[id] {
			continue
		}
		seen[id] = true
		req.Recipients = append(req.Recipients, r)
	}
	if len(req.Recipients) == 0 {
		return nil
	}
	req.SenderID = &actor.ID
	return s.notifier.Notify(ctx, req)
}
