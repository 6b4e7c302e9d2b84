package notification

import (
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
	g := api.Group("/notifications")
	g.GET("", h.List)
	g.GET("/unread-count", h.UnreadCount)
	g.PATCH("/:id/read", h.MarkRead)
	g.POST("/read-all", h.MarkAllRead)
}

// RegisterWS registers the per-user push socket on the authenticated ws group.
func (h *Handler) RegisterWS(wsGroup *echo.Group) {
	wsGroup.GET("/notifications", h.HandleWS)
}

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

// recipientID resolves which notification stream the caller owns. Directory
// identities double as notification targets, so the affiliation id wins over
// the account id when present.
func recipientID(p *auth.Principal) uuid.UUID {
	switch {
	case p.PatientID != nil:
		return *p.PatientID
	case p.DoctorID != nil:
		return *p.DoctorID
	case p.HospitalID != nil:
		return *p.HospitalID
	}
	return p.UserID
}

func (h *Handler) List(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), recipientID(p), pg.Limit, pg.Offset)
	if err != nil {
		return toHTTP(err)
	}
	if items == nil {
		items = []*Notification{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UnreadCount(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	count, err := h.svc.UnreadCount(c.Request().Context(), recipientID(p))
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": count})
}

func (h *Handler) MarkRead(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notification id")
	}

	if err := h.svc.MarkRead(c.Request().Context(), id, recipientID(p)); err != nil {
		return toHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	updated, err := h.svc.MarkAllRead(c.Request().Context(), recipientID(p))
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"updated": updated})
}

// HandleWS joins the caller to their own notification room. Frames arrive as
// pushFrame JSON whenever anything notifies this user.
func (h *Handler) HandleWS(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	client, err := ws.Upgrade(c)
	if err != nil {
		return err
	}

	h.hub.Join(client, ws.Room{Channel: ChannelNotifications, ID: recipientID(p).String()})
	go client.WritePump()
	go client.ReadPump(h.hub, nil)
	return nil
}
