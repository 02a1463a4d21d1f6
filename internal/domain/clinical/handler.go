package clinical

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

	api.POST("/patients/:id/medical-records", h.CreateRecord,
		guard.RequireCreate(g, policy.ResourceMedicalRecord, policy.ResourcePatient, "id"))
	api.GET("/patients/:id/medical-records", h.ListRecords,
		guard.RequireChild(g, policy.ResourceMedicalRecord, policy.ActionRead, policy.ResourcePatient, "id"))
	api.GET("/medical-records/:id", h.GetRecord, guard.Require(g, policy.ResourceMedicalRecord, policy.ActionRead, "id"))
	api.PUT("/medical-records/:id", h.UpdateRecord, guard.Require(g, policy.ResourceMedicalRecord, policy.ActionUpdate, "id"))
	api.DELETE("/medical-records/:id", h.DeleteRecord, guard.Require(g, policy.ResourceMedicalRecord, policy.ActionDelete, "id"))

	api.POST("/patients/:id/appointments", h.BookAppointment,
		guard.RequireCreate(g, policy.ResourceAppointment, policy.ResourcePatient, "id"))
	api.GET("/appointments/:id", h.GetAppointment, guard.Require(g, policy.ResourceAppointment, policy.ActionRead, "id"))
	api.POST("/appointments/:id/cancel", h.CancelAppointment, guard.Require(g, policy.ResourceAppointment, policy.ActionUpdate, "id"))
}

// checked returns the projection the route guard resolved: the resource
// itself, or its parent patient on create and list routes.
func checked(c echo.Context) policy.Resource {
	res, _ := guard.ResourceFromContext(c.Request().Context())
	return *res
}

type recordResponse struct {
	*MedicalRecord
	Notifications *notification.Summary `json:"notifications,omitempty"`
}

type appointmentResponse struct {
	*Appointment
	Notifications *notification.Summary `json:"notifications,omitempty"`
}

// -- Medical Records --

func (h *Handler) CreateRecord(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req CreateRecordRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	m, summary, err := h.svc.CreateRecord(c.Request().Context(), actor, checked(c), req)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusCreated, "medical record created", recordResponse{m, summary})
}

func (h *Handler) ListRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRecords(c.Request().Context(), checked(c).ID, pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	return response.Page(c, items, pagination.NewMeta(pg, total))
}

func (h *Handler) GetRecord(c echo.Context) error {
	m, err := h.svc.GetRecord(c.Request().Context(), checked(c).ID)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "medical record retrieved", m)
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	var req UpdateRecordRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	m, err := h.svc.UpdateRecord(c.Request().Context(), checked(c).ID, req)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "medical record updated", m)
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	if err := h.svc.DeleteRecord(c.Request().Context(), checked(c).ID); err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "medical record deleted", nil)
}

// -- Appointments --

func (h *Handler) BookAppointment(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	a, summary, err := h.svc.BookAppointment(c.Request().Context(), actor, checked(c), req)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusCreated, "appointment booked", appointmentResponse{a, summary})
}

func (h *Handler) GetAppointment(c echo.Context) error {
	a, err := h.svc.GetAppointment(c.Request().Context(), checked(c).ID)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "appointment retrieved", a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	a, summary, err := h.svc.CancelAppointment(c.Request().Context(), actor, checked(c), req)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "appointment cancelled", appointmentResponse{a, summary})
}
