package directory

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
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

	api.GET("/users/:id", h.GetUser, guard.Require(g, policy.ResourceUser, policy.ActionRead, "id"))
	api.PATCH("/users/:id/role", h.ChangeRole, guard.Require(g, policy.ResourceUser, policy.ActionManage, "id"))
	api.POST("/users/:id/deactivate", h.Deactivate, guard.Require(g, policy.ResourceUser, policy.ActionDeactivate, "id"))
	api.POST("/users/:id/reactivate", h.Reactivate, guard.Require(g, policy.ResourceUser, policy.ActionManage, "id"))
	api.DELETE("/users/:id", h.DeleteUser, guard.Require(g, policy.ResourceUser, policy.ActionDelete, "id"))

	api.GET("/patients/:id", h.GetPatient, guard.Require(g, policy.ResourcePatient, policy.ActionRead, "id"))
	api.PUT("/patients/:id", h.UpdatePatient, guard.Require(g, policy.ResourcePatient, policy.ActionUpdate, "id"))

	// Provider reads are open to every authenticated caller; the view
	// variant carries the access decision.
	api.GET("/providers", h.ListProviders)
	api.GET("/providers/:id", h.GetProvider)
	api.PUT("/providers/:id", h.UpdateProvider, guard.Require(g, policy.ResourceProvider, policy.ActionUpdate, "id"))
}

// checkedID returns the id of the resource the guard already resolved.
func checkedID(c echo.Context) uuid.UUID {
	res, _ := guard.ResourceFromContext(c.Request().Context())
	return res.ID
}

// -- Users --

func (h *Handler) GetUser(c echo.Context) error {
	u, err := h.svc.GetUser(c.Request().Context(), checkedID(c))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "user retrieved", u)
}

type changeRoleRequest struct {
	Role policy.Role `json:"role"`
}

func (h *Handler) ChangeRole(c echo.Context) error {
	var req changeRoleRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	u, err := h.svc.ChangeRole(c.Request().Context(), actor, checkedID(c), req.Role)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "role updated", u)
}

func (h *Handler) Deactivate(c echo.Context) error {
	u, err := h.svc.Deactivate(c.Request().Context(), checkedID(c))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "user deactivated", u)
}

func (h *Handler) Reactivate(c echo.Context) error {
	u, err := h.svc.Reactivate(c.Request().Context(), checkedID(c))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "user reactivated", u)
}

func (h *Handler) DeleteUser(c echo.Context) error {
	if _, err := h.svc.Delete(c.Request().Context(), checkedID(c)); err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "user deleted", nil)
}

// -- Patients --

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), checkedID(c))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "patient retrieved", p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var in PatientUpdate
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), checkedID(c), in)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "patient updated", p)
}

// -- Providers --

func (h *Handler) ListProviders(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var f ProviderFilter
	if v := c.QueryParam("facility_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return apperr.Validation("invalid facility_id")
		}
		f.FacilityID = &id
	}
	f.Specialty = c.QueryParam("specialty")
	if v := c.QueryParam("accepting_patients"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperr.Validation("accepting_patients must be a boolean")
		}
		f.AcceptingPatients = &b
	}

	pg := pagination.FromContext(c)
	views, total, err := h.svc.ListProviders(c.Request().Context(), actor, f, pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	return response.Page(c, views, pagination.NewMeta(pg, total))
}

func (h *Handler) GetProvider(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid provider id")
	}
	v, err := h.svc.GetProvider(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "provider retrieved", v)
}

func (h *Handler) UpdateProvider(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var in ProviderUpdate
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	v, err := h.svc.UpdateProvider(c.Request().Context(), actor, checkedID(c), in)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "provider updated", v)
}
