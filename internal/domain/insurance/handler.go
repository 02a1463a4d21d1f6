package insurance

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/careguard/internal/platform/apperr"
	"github.com/ehr/careguard/internal/platform/auth"
	"github.com/ehr/careguard/internal/platform/guard"
	"github.com/ehr/careguard/internal/platform/notification"
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

	api.POST("/patients/:id/insurance-policies", h.CreatePolicy,
		guard.RequireCreate(g, policy.ResourceInsurancePolicy, policy.ResourcePatient, "id"))
	api.GET("/patients/:id/insurance-policies", h.ListPolicies,
		guard.RequireChild(g, policy.ResourceInsurancePolicy, policy.ActionRead, policy.ResourcePatient, "id"))
	api.GET("/insurance-policies/:id", h.GetPolicy, guard.Require(g, policy.ResourceInsurancePolicy, policy.ActionRead, "id"))
	api.PUT("/insurance-policies/:id", h.UpdatePolicy, guard.Require(g, policy.ResourceInsurancePolicy, policy.ActionUpdate, "id"))
	api.DELETE("/insurance-policies/:id", h.DeletePolicy, guard.Require(g, policy.ResourceInsurancePolicy, policy.ActionDelete, "id"))

	api.POST("/insurance-policies/:id/claims", h.CreateClaim,
		guard.RequireCreate(g, policy.ResourceInsuranceClaim, policy.ResourceInsurancePolicy, "id"))
	api.GET("/insurance-claims/:id", h.GetClaim, guard.Require(g, policy.ResourceInsuranceClaim, policy.ActionRead, "id"))
	api.PATCH("/insurance-claims/:id/status", h.UpdateClaimStatus,
		guard.Require(g, policy.ResourceInsuranceClaim, policy.ActionUpdate, "id"))
}

func checked(c echo.Context) policy.Resource {
	res, _ := guard.ResourceFromContext(c.Request().Context())
	return *res
}

// -- Policies --

func (h *Handler) CreatePolicy(c echo.Context) error {
	var req CreatePolicyRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	p, err := h.svc.CreatePolicy(c.Request().Context(), checked(c).ID, req)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusCreated, "insurance policy created", p)
}

func (h *Handler) ListPolicies(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPolicies(c.Request().Context(), checked(c).ID, pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	return response.Page(c, items, pagination.NewMeta(pg, total))
}

func (h *Handler) GetPolicy(c echo.Context) error {
	p, err := h.svc.GetPolicy(c.Request().Context(), checked(c).ID)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "insurance policy retrieved", p)
}

func (h *Handler) UpdatePolicy(c echo.Context) error {
	var req UpdatePolicyRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	p, err := h.svc.UpdatePolicy(c.Request().Context(), checked(c).ID, req)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "insurance policy updated", p)
}

func (h *Handler) DeletePolicy(c echo.Context) error {
	if err := h.svc.DeletePolicy(c.Request().Context(), checked(c).ID); err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "insurance policy deleted", nil)
}

// -- Claims --

type claimResponse struct {
	*Claim
	Notifications *notification.Summary `json:"notifications,omitempty"`
}

func (h *Handler) CreateClaim(c echo.Context) error {
	var req CreateClaimRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	cl, err := h.svc.CreateClaim(c.Request().Context(), checked(c).ID, req)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusCreated, "insurance claim submitted", cl)
}

func (h *Handler) GetClaim(c echo.Context) error {
	cl, err := h.svc.GetClaim(c.Request().Context(), checked(c).ID)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "insurance claim retrieved", cl)
}

func (h *Handler) UpdateClaimStatus(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	cl, summary, err := h.svc.UpdateClaimStatus(c.Request().Context(), actor, checked(c), req.Status)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "insurance claim status updated", claimResponse{cl, summary})
}
