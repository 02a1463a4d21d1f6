package audit

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/auth"
	"github.com/ehr/careguard/internal/platform/policy"
	"github.com/ehr/careguard/pkg/response"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group, ev *policy.Evaluator) {
	g := api.Group("/audit-events", auth.RequirePermission(ev, policy.ResourceAuditEvent, policy.ActionRead))
	g.GET("", h.List)
}

type listResponse struct {
	Events     []*Event `json:"events"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// List pages through events newest first. The cursor is the id of the last
// event on the previous page.
func (h *Handler) List(c echo.Context) error {
	f := Filter{
		ResourceType: c.QueryParam("resource_type"),
		ResourceID:   c.QueryParam("resource_id"),
		Before:       c.QueryParam("before"),
	}
	if v := c.QueryParam("actor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return apperr.Validation("invalid actor_id")
		}
		f.ActorID = &id
	}
	if f.ResourceType != "" && !policy.ResourceType(f.ResourceType).Valid() {
		return apperr.Validation("unknown resource_type %q", f.ResourceType)
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return apperr.Validation("invalid limit")
		}
		f.Limit = n
	}

	events, err := h.store.List(c.Request().Context(), f)
	if err != nil {
		return apperr.FromStore(err, "audit events")
	}

	if events == nil {
		events = []*Event{}
	}
	out := listResponse{Events: events}
	if len(events) == f.limit() {
		out.NextCursor = events[len(events)-1].ID
	}
	return response.OK(c, http.StatusOK, "", out)
}
