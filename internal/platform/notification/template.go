package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Template defines a reusable notification text.
type Template struct {
	ID      string
	Title   string
	Message string
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// Built-in template ids.
const (
	TemplateRecordCreated        = "record-created"
	TemplateAppointmentBooked    = "appointment-booked"
	TemplateAppointmentCancelled = "appointment-cancelled"
	TemplateClaimStatus          = "claim-status"
	TemplateBroadcast            = "broadcast"
)

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range []Template{
		{
			ID:      TemplateRecordCreated,
			Title:   "New {{record_type}} record",
			Message: "A new {{record_type}} record \"{{title}}\" was added to your chart by {{author}}.",
		},
		{
			ID:      TemplateAppointmentBooked,
			Title:   "Appointment scheduled",
			Message: "An appointment has been scheduled for {{date}} at {{time}}. Reason: {{reason}}.",
		},
		{
			ID:      TemplateAppointmentCancelled,
			Title:   "Appointment cancelled",
			Message: "Your appointment on {{date}} at {{time}} was cancelled. {{cancel_reason}}",
		},
		{
			ID:      TemplateClaimStatus,
			Title:   "Claim {{claim_number}} updated",
			Message: "The status of claim {{claim_number}} changed to {{status}}.",
		},
		{
			ID:      TemplateBroadcast,
			Title:   "{{title}}",
			Message: "{{message}}",
		},
	} {
		e.RegisterTemplate(t)
	}
	return e
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render performs {{key}} replacement. Keys present in the template but
// absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (title, message string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	title, message = t.Title, t.Message
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		message = strings.ReplaceAll(message, placeholder, v)
	}
	return title, message, nil
}
