// Package chat provides the direct-message and support websocket relays.
package chat

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/caresync/caresync/internal/platform/archive"
	"github.com/caresync/caresync/internal/platform/auth"
	"github.com/caresync/caresync/internal/platform/ws"
)

const (
	// ChannelDM carries one-to-one conversations between two identities.
	ChannelDM = "dm"
	// ChannelSupport carries anonymous support sessions keyed by session id.
	ChannelSupport = "support"
)

type Handler struct {
	hub     *ws.Hub
	archive archive.SessionArchive
	logger  zerolog.Logger
}

func NewHandler(hub *ws.Hub, sessions archive.SessionArchive, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, archive: sessions, logger: logger}
}

// RegisterAuthWS registers the direct-message endpoint on the authenticated
// ws group.
func (h *Handler) RegisterAuthWS(wsGroup *echo.Group) {
	wsGroup.GET("/dm/:peer_id", h.HandleDM)
}

// RegisterOpenWS registers the support endpoint on the open ws group.
// Support sessions are reachable without an account.
func (h *Handler) RegisterOpenWS(wsGroup *echo.Group) {
	wsGroup.GET("/support/:session_id", h.HandleSupport)
}

// dmRoomID canonicalizes a conversation's room id so both participants land
// in the same room regardless of who dialed.
func dmRoomID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// HandleDM relays messages between the caller and one peer. Both sides join
// the same canonical room; every inbound frame fans out to the room,
// including back to the sender as a delivery echo.
func (h *Handler) HandleDM(c echo.Context) error {
	p := auth.PrincipalFromEcho(c)
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	peerID := c.Param("peer_id")
	if peerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "peer id is required")
	}

	room := ws.Room{Channel: ChannelDM, ID: dmRoomID(p.UserID.String(), peerID)}

	client, err := ws.Upgrade(c)
	if err != nil {
		return err
	}
	h.hub.Join(client, room)

	go client.WritePump()
	go client.ReadPump(h.hub, func(data []byte) {
		h.hub.PublishRaw(room, data)
	})
	return nil
}

// HandleSupport relays a support conversation and archives it. On connect
// the caller receives the session's history in order, then live frames.
func (h *Handler) HandleSupport(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	history, err := h.archive.History(c.Request().Context(), sessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("support history unavailable")
		history = nil
	}

	room := ws.Room{Channel: ChannelSupport, ID: sessionID}

	client, err := ws.Upgrade(c)
	if err != nil {
		return err
	}
	h.hub.Join(client, room)
	for _, frame := range history {
		client.Send <- frame
	}

	go client.WritePump()
	go client.ReadPump(h.hub, func(data []byte) {
		// The request context dies with the upgrade handler; archiving
		// happens for as long as the socket lives.
		if err := h.archive.Append(context.Background(), sessionID, data); err != nil {
			h.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to archive support message")
		}
		h.hub.PublishRaw(room, data)
	})
	return nil
}
