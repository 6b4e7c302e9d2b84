package appointment

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/caresync/caresync/internal/platform/apperr"
	"github.com/caresync/caresync/internal/platform/auth"
	"github.com/caresync/caresync/internal/platform/ws"
	"github.com/caresync/caresync/pkg/pagination"
)

type Handler struct {
	svc    *Service
	hub    *ws.Hub
	logger zerolog.Logger
}

func NewHandler(svc *Service, hub *ws.Hub, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, hub: hub, logger: logger}
}

// RegisterRoutes registers the REST surface on the authenticated API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments")
	g.POST("", h.Create, auth.RequireRole(auth.RolePatient))
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/history", h.History)
	g.PATCH("/:id/cancel", h.Cancel, auth.RequireRole(auth.RolePatient))
	g.PATCH("/:id/status", h.UpdateStatus)
	g.PATCH("/:id/reschedule", h.Reschedule, auth.RequireRole(auth.RoleAdmin, auth.RoleHospital))
	g.PATCH("/:id/doctor", h.AssignDoctor, auth.RequireRole(auth.RoleAdmin, auth.RoleHospital))
	g.DELETE("/:id", h.Delete, auth.RequireRole(auth.RolePatient))
}

// RegisterWS registers the live queue endpoint. Dashboards connect per
// hospital and receive a snapshot immediately, then on every mutation.
func (h *Handler) RegisterWS(wsGroup *echo.Group) {
	wsGroup.GET("/appointments/:hospital_id", h.HandleQueueWS)
}

// toHTTP renders the error taxonomy as a structured body with a stable code.
func toHTTP(err error) error {
	if e, ok := apperr.As(err); ok {
		return echo.NewHTTPError(e.HTTPStatus(), map[string]interface{}{
			"code":    e.Code,
			"message": e.Message,
		})
	}
	return err
}

func principal(c echo.Context) (*auth.Principal, error) {
	p := auth.PrincipalFromEcho(c)
	if p == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return p, nil
}

func (h *Handler) Create(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.Create(c.Request().Context(), p, req)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) List(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	f := ListFilter{Limit: pg.Limit, Offset: pg.Offset}

	if raw := c.QueryParam("status"); raw != "" && raw != "all" {
		status := Status(raw)
		f.Status = &status
	}
	if raw := c.QueryParam("hospital_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital_id")
		}
		f.HospitalID = &id
	}

	items, total, err := h.svc.List(c.Request().Context(), p, f)
	if err != nil {
		return toHTTP(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}

	a, err := h.svc.Get(c.Request().Context(), p, id)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) History(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}

	entries, err := h.svc.History(c.Request().Context(), p, id)
	if err != nil {
		return toHTTP(err)
	}
	if entries == nil {
		entries = []*RescheduleEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) Cancel(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}

	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.Cancel(c.Request().Context(), p, id, req.Reason)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}

	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.UpdateStatus(c.Request().Context(), p, id, req.Status)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Reschedule(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}

	var req RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.Reschedule(c.Request().Context(), p, id, req)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) AssignDoctor(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}

	var req AssignDoctorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DoctorID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}

	a, err := h.svc.AssignDoctor(c.Request().Context(), p, id, req.DoctorID)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Delete(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}

	if err := h.svc.Delete(c.Request().Context(), p, id); err != nil {
		return toHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleQueueWS joins the caller to the hospital's queue room and pushes the
// current snapshot before live updates start flowing.
func (h *Handler) HandleQueueWS(c echo.Context) error {
	hospitalID, err := uuid.Parse(c.Param("hospital_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital id")
	}

	event, err := h.svc.Queue(c.Request().Context(), hospitalID)
	if err != nil {
		return toHTTP(err)
	}
	snapshot, err := json.Marshal(event)
	if err != nil {
		return err
	}

	client, err := ws.Upgrade(c)
	if err != nil {
		return err
	}

	h.hub.Join(client, ws.Room{Channel: ChannelAppointments, ID: hospitalID.String()})
	client.Send <- snapshot

	go client.WritePump()
	go client.ReadPump(h.hub, nil)
	return nil
}
