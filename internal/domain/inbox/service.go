// Package inbox serves a user's in-app notifications and the broadcast
// endpoint that creates them in bulk.
package inbox

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/audit"
	"github.com/ehr/careguard/internal/platform/notification"
	"github.com/ehr/careguard/internal/platform/policy"
)

const maxBroadcastTitle = 200

type Service struct {
	repo       Repository
	resolver   *notification.Resolver
	dispatcher *notification.Dispatcher
	audit      *audit.Recorder
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, resolver *notification.Resolver, dispatcher *notification.Dispatcher,
	rec *audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		resolver:   resolver,
		dispatcher: dispatcher,
		audit:      rec,
		logger:     logger,
		now:        time.Now,
	}
}

func recordSpec(action string) audit.Spec[*notification.Record] {
	return audit.Spec[*notification.Record]{
		Action:       action,
		ResourceType: policy.ResourceNotification,
		ResourceID:   func(n *notification.Record) string { return n.ID.String() },
		Details: func(n *notification.Record) map[string]any {
			return map[string]any{"title": n.Title, "type": string(n.Type), "recipient_id": n.RecipientID.String()}
		},
	}
}

func (s *Service) List(ctx context.Context, actor policy.Actor, unreadOnly bool, limit, offset int) ([]*notification.Record, int, error) {
	items, total, err := s.repo.ListByRecipient(ctx, actor.ID, unreadOnly, s.now().UTC(), limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStore(err, "notification")
	}
	if items == nil {
		items = []*notification.Record{}
	}
	return items, total, nil
}

func (s *Service) UnreadCount(ctx context.Context, actor policy.Actor) (int, error) {
	n, err := s.repo.CountUnread(ctx, actor.ID, s.now().UTC())
	if err != nil {
		return 0, apperr.FromStore(err, "notification")
	}
	return n, nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*notification.Record, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err, "notification")
	}
	return n, nil
}

// MarkRead marks one notification read. Marking an already read
// notification returns it unchanged and records nothing.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) (*notification.Record, error) {
	n, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsRead {
		return n, nil
	}
	return audit.Mutate(ctx, s.audit, recordSpec(audit.ActionMarkRead), func(ctx context.Context) (*notification.Record, error) {
		at := s.now().UTC()
		ok, err := s.repo.MarkRead(ctx, id, at)
		if err != nil {
			return nil, apperr.FromStore(err, "notification")
		}
		if !ok {
			return nil, apperr.Conflict("notification was already read")
		}
		n.IsRead = true
		n.ReadAt = &at
		return n, nil
	})
}

// MarkAllRead marks every visible unread notification of the actor and
// records one audit event per changed notification.
func (s *Service) MarkAllRead(ctx context.Context, actor policy.Actor) ([]*notification.Record, error) {
	return audit.MutateEach(ctx, s.audit, recordSpec(audit.ActionMarkRead), func(ctx context.Context) ([]*notification.Record, error) {
		changed, err := s.repo.MarkAllRead(ctx, actor.ID, s.now().UTC())
		if err != nil {
			return nil, apperr.FromStore(err, "notification")
		}
		if changed == nil {
			changed = []*notification.Record{}
		}
		return changed, nil
	})
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := audit.Mutate(ctx, s.audit, recordSpec(audit.ActionDelete), func(ctx context.Context) (*notification.Record, error) {
		n, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return nil, apperr.FromStore(err, "notification")
		}
		return n, nil
	})
	return err
}

type BroadcastRequest struct {
	notification.Targeting
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Priority  notification.Priority  `json:"priority"`
	ExpiresAt *time.Time             `json:"expires_at"`
	Channels  []notification.Channel `json:"channels"`
}

// Broadcast creates a notification for every active user the actor may reach
// within the requested audience. Unlike mutation side effects, a failed
// record write fails the request.
func (s *Service) Broadcast(ctx context.Context, actor policy.Actor, in BroadcastRequest) (*notification.Result, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	if in.Title == "" || len(in.Title) > maxBroadcastTitle {
		return nil, apperr.Validation("title is required and at most %d characters", maxBroadcastTitle)
	}
	if in.Message == "" {
		return nil, apperr.Validation("message is required")
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return nil, apperr.Validation("expires_at must be in the future")
	}

	recipients, err := s.resolver.ResolveBroadcast(ctx, actor, in.Targeting)
	if err != nil {
		return nil, err
	}

	var res *notification.Result
	_, err = audit.MutateEach(ctx, s.audit, recordSpec(audit.ActionBroadcast), func(ctx context.Context) ([]*notification.Record, error) {
		r, err := s.dispatcher.Dispatch(ctx, notification.Request{
			Recipients: recipients,
			SenderID:   &actor.ID,
			Type:       notification.TypeBroadcast,
			Priority:   in.Priority,
			ExpiresAt:  in.ExpiresAt,
			Channels:   in.Channels,
			TemplateID: notification.TemplateBroadcast,
			TemplateData: map[string]string{
				"title":   in.Title,
				"message": in.Message,
			},
		})
		if err != nil {
			return nil, err
		}
		res = r
		return r.Created, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("actor_id", actor.ID.String()).
		Int("recipients", len(res.Created)).
		Int("channel_errors", len(res.ChannelErrors)).
		Msg("broadcast dispatched")
	return res, nil
}
