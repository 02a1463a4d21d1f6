package inbox

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/auth"
	"github.com/ehr/careguard/internal/platform/guard"
	"github.com/ehr/careguard/internal/platform/policy"
	"github.com/ehr/careguard/pkg/pagination"
	"github.com/ehr/careguard/pkg/response"
)

type Handler struct {
	svc   *Service
	guard *guard.Guard
}

func NewHandler(svc *Service, g *guard.Guard) *Handler {
	return &Handler{svc: svc, guard: g}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := h.guard
	ev := g.Evaluator()

	api.GET("/notifications", h.List, auth.RequirePermission(ev, policy.ResourceNotification, policy.ActionRead))
	api.GET("/notifications/unread-count", h.UnreadCount, auth.RequirePermission(ev, policy.ResourceNotification, policy.ActionRead))
	api.PATCH("/notifications/read-all", h.MarkAllRead, auth.RequirePermission(ev, policy.ResourceNotification, policy.ActionUpdate))
	api.POST("/notifications/broadcast", h.Broadcast, auth.RequirePermission(ev, policy.ResourceNotification, policy.ActionBroadcast))
	api.PATCH("/notifications/:id/read", h.MarkRead, guard.Require(g, policy.ResourceNotification, policy.ActionUpdate, "id"))
	api.DELETE("/notifications/:id", h.Delete, guard.Require(g, policy.ResourceNotification, policy.ActionDelete, "id"))
}

func (h *Handler) List(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), actor, c.QueryParam("unread") == "true", pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	return response.Page(c, items, pagination.NewMeta(pg, total))
}

func (h *Handler) UnreadCount(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	n, err := h.svc.UnreadCount(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "unread count retrieved", map[string]int{"count": n})
}

func (h *Handler) MarkRead(c echo.Context) error {
	res, _ := guard.ResourceFromContext(c.Request().Context())
	n, err := h.svc.MarkRead(c.Request().Context(), res.ID)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "notification marked read", n)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	changed, err := h.svc.MarkAllRead(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "notifications marked read", map[string]int{"updated": len(changed)})
}

func (h *Handler) Delete(c echo.Context) error {
	res, _ := guard.ResourceFromContext(c.Request().Context())
	if err := h.svc.Delete(c.Request().Context(), res.ID); err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "notification deleted", nil)
}

func (h *Handler) Broadcast(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req BroadcastRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	res, err := h.svc.Broadcast(c.Request().Context(), actor, req)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusCreated, "broadcast sent", res)
}
