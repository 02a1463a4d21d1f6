package notification

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/telemetry"
)

// Request describes one dispatch. When TemplateID is set the rendered
// template replaces Title and Message.
type Request struct {
	Recipients   []Recipient
	SenderID     *uuid.UUID
	Type         Type
	Title        string
	Message      string
	Priority     Priority
	ExpiresAt    *time.Time
	Channels     []Channel
	TemplateID   string
	TemplateData map[string]string
}

// ChannelError reports a failed external send. The record for the recipient
// was still created.
type ChannelError struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Channel     Channel   `json:"channel"`
	Error       string    `json:"error"`
}

type Result struct {
	Created       []*Record      `json:"created"`
	ChannelErrors []ChannelError `json:"channel_errors"`
}

type Options struct {
	// Concurrency bounds in-flight channel sends. Zero means 4.
	Concurrency int
	// ChannelTimeout bounds each send. Zero means 10s.
	ChannelTimeout time.Duration
	// StoreTimeout bounds the record batch write. Zero means 3s.
	StoreTimeout time.Duration
	Templates      *TemplateEngine
	Logger         zerolog.Logger
	Metrics        *telemetry.Metrics
}

type Dispatcher struct {
	store        Store
	email        EmailSender
	sms          SMSSender
	templates    *TemplateEngine
	concurrency  int
	timeout      time.Duration
	storeTimeout time.Duration
	logger       zerolog.Logger
	metrics      *telemetry.Metrics
	now          func() time.Time
}

func NewDispatcher(store Store, email EmailSender, sms SMSSender, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.ChannelTimeout <= 0 {
		opts.ChannelTimeout = 10 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	if opts.Templates == nil {
		opts.Templates = NewTemplateEngine()
	}
	return &Dispatcher{
		store:        store,
		email:        email,
		sms:          sms,
		templates:    opts.Templates,
		concurrency:  opts.Concurrency,
		timeout:      opts.ChannelTimeout,
		storeTimeout: opts.StoreTimeout,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		now:          time.Now,
	}
}

// Dispatch creates one record per recipient in a single batch, then fans
// out the requested channel sends. Only a failed record write is returned as
// an error; channel failures are collected in the result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if err := d.prepare(&req); err != nil {
		return nil, err
	}
	if len(req.Recipients) == 0 {
		return &Result{Created: []*Record{}, ChannelErrors: []ChannelError{}}, nil
	}

	now := d.now().UTC()
	records := make([]*Record, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		records = append(records, &Record{
			ID:          uuid.New(),
			RecipientID: r.UserID,
			SenderID:    req.SenderID,
			Type:        req.Type,
			Title:       req.Title,
			Message:     req.Message,
			Priority:    req.Priority,
			ExpiresAt:   req.ExpiresAt,
			CreatedAt:   now,
		})
	}
	if err := d.createBatch(ctx, records); err != nil {
		return nil, apperr.FromStore(err, "notifications")
	}
	d.metrics.ObserveNotifications(len(records))

	return &Result{Created: records, ChannelErrors: d.send(ctx, req)}, nil
}

func (d *Dispatcher) createBatch(ctx context.Context, records []*Record) error {
	sctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()
	return d.store.CreateBatch(sctx, records)
}

func (d *Dispatcher) prepare(req *Request) error {
	if req.TemplateID != "" {
		title, message, err := d.templates.Render(req.TemplateID, req.TemplateData)
		if err != nil {
			return apperr.Validation("%s", err.Error())
		}
		req.Title, req.Message = title, message
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)
	if req.Title == "" {
		return apperr.Validation("title is required")
	}
	if req.Message == "" {
		return apperr.Validation("message is required")
	}
	if req.Type == "" {
		req.Type = TypeSystem
	}
	if !req.Type.Valid() {
		return apperr.Validation("unknown notification type %q", req.Type)
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if !req.Priority.Valid() {
		return apperr.Validation("unknown priority %q", req.Priority)
	}
	channels := make([]Channel, 0, len(req.Channels))
	seen := make(map[Channel]bool, len(req.Channels))
	for _, c := range req.Channels {
		if !c.Valid() {
			return apperr.Validation("unknown channel %q", c)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		channels = append(channels, c)
	}
	req.Channels = channels
	return nil
}

type sendJob struct {
	index     int
	recipient Recipient
	channel   Channel
}

func (d *Dispatcher) send(ctx context.Context, req Request) []ChannelError {
	var jobs []sendJob
	for i, r := range req.Recipients {
		for _, ch := range req.Channels {
			if address(r, ch) == "" {
				continue
			}
			jobs = append(jobs, sendJob{index: i, recipient: r, channel: ch})
		}
	}

	var (
		mu     sync.Mutex
		failed []sendJob
		errs   = map[sendJob]string{}
	)
	// Sends outlive a disconnected client; each is bounded by its own timeout.
	base := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()

			err := d.deliver(sctx, j, req)
			d.metrics.ObserveChannelSend(string(j.channel), err == nil)
			if err != nil {
				d.logger.Warn().Err(err).
					Str("recipient_id", j.recipient.UserID.String()).
					Str("channel", string(j.channel)).
					Msg("notification channel send failed")
				mu.Lock()
				failed = append(failed, j)
				errs[j] = err.Error()
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failed, func(a, b int) bool {
		if failed[a].index != failed[b].index {
			return failed[a].index < failed[b].index
		}
		return failed[a].channel < failed[b].channel
	})
	out := make([]ChannelError, 0, len(failed))
	for _, j := range failed {
		out = append(out, ChannelError{RecipientID: j.recipient.UserID, Channel: j.channel, Error: errs[j]})
	}
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, j sendJob, req Request) error {
	switch j.channel {
	case ChannelEmail:
		return d.email.SendEmail(ctx, j.recipient.Email, req.Title, req.Message)
	default:
		return d.sms.SendSMS(ctx, j.recipient.Phone, req.Title+": "+req.Message)
	}
}

func address(r Recipient, ch Channel) string {
	switch ch {
	case ChannelEmail:
		return r.Email
	case ChannelSMS:
		return r.Phone
	}
	return ""
}

// Summary is the non-fatal outcome of a side-channel dispatch, reported in
// the response of the mutation that triggered it.
type Summary struct {
	Created       int            `json:"created"`
	ChannelErrors []ChannelError `json:"channel_errors,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Notify dispatches after a primary mutation has already succeeded. It never
// fails: a record write failure is logged and surfaced in the summary. The
// write is detached from request cancellation but still bounded by the store
// timeout.
func (d *Dispatcher) Notify(ctx context.Context, req Request) *Summary {
	if d == nil {
		return nil
	}
	res, err := d.Dispatch(context.WithoutCancel(ctx), req)
	if err != nil {
		d.logger.Error().Err(err).
			Str("type", string(req.Type)).
			Int("recipients", len(req.Recipients)).
			Msg("failed to create notifications")
		return &Summary{Error: "notifications could not be created"}
	}
	return &Summary{Created: len(res.Created), ChannelErrors: res.ChannelErrors}
}
