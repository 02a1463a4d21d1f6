package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ehr/careguard/internal/platform/policy"
)

type eventModel struct {
	ID           string `gorm:"primaryKey"`
	ActorID      *string
	Action       string
	ResourceType string
	ResourceID   string
	Details      datatypes.JSON
	IPAddress    string
	UserAgent    string
	RequestID    string
	CreatedAt    time.Time
}

func (eventModel) TableName() string { return "audit_event" }

func policyType(s string) policy.ResourceType { return policy.ResourceType(s) }

func toModel(e *Event) (eventModel, error) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return eventModel{}, fmt.Errorf("audit: encode details: %w", err)
	}
	m := eventModel{
		ID:           e.ID,
		Action:       e.Action,
		ResourceType: string(e.ResourceType),
		ResourceID:   e.ResourceID,
		Details:      datatypes.JSON(details),
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		RequestID:    e.RequestID,
		CreatedAt:    e.CreatedAt,
	}
	if e.ActorID != nil {
		s := e.ActorID.String()
		m.ActorID = &s
	}
	return m, nil
}

func fromModel(m eventModel) (*Event, error) {
	e := &Event{
		ID:           m.ID,
		Action:       m.Action,
		ResourceType: policyType(m.ResourceType),
		ResourceID:   m.ResourceID,
		IPAddress:    m.IPAddress,
		UserAgent:    m.UserAgent,
		RequestID:    m.RequestID,
		CreatedAt:    m.CreatedAt,
	}
	if m.ActorID != nil {
		id, err := uuid.Parse(*m.ActorID)
		if err != nil {
			return nil, fmt.Errorf("audit: actor id %q: %w", *m.ActorID, err)
		}
		e.ActorID = &id
	}
	if len(m.Details) > 0 {
		if err := json.Unmarshal(m.Details, &e.Details); err != nil {
			return nil, fmt.Errorf("audit: decode details: %w", err)
		}
	}
	return e, nil
}

// SQLiteStore is the embedded audit store.
type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLiteStore(db *gorm.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Append(ctx context.Context, e *Event) error {
	m, err := toModel(e)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendBatch(ctx context.Context, evs []*Event) error {
	models := make([]eventModel, 0, len(evs))
	for _, e := range evs {
		m, err := toModel(e)
		if err != nil {
			return err
		}
		models = append(models, m)
	}
	if err := s.db.WithContext(ctx).Create(&models).Error; err != nil {
		return fmt.Errorf("audit: insert event batch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]*Event, error) {
	q := s.db.WithContext(ctx).Model(&eventModel{})
	if f.ActorID != nil {
		q = q.Where("actor_id = ?", f.ActorID.String())
	}
	if f.ResourceType != "" {
		q = q.Where("resource_type = ?", f.ResourceType)
	}
	if f.ResourceID != "" {
		q = q.Where("resource_id = ?", f.ResourceID)
	}
	if f.Before != "" {
		q = q.Where("id < ?", f.Before)
	}

	var rows []eventModel
	if err := q.Order("id DESC").Limit(f.limit()).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("audit: list events: %w", err)
	}

	out := make([]*Event, 0, len(rows))
	for _, m := range rows {
		e, err := fromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
