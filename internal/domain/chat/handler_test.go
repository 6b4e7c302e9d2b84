package chat

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/caresync/caresync/internal/platform/archive"
	"github.com/caresync/caresync/internal/platform/auth"
	"github.com/caresync/caresync/internal/platform/ws"
)

func TestDMRoomID_Canonical(t *testing.T) {
	if dmRoomID("b", "a") != dmRoomID("a", "b") {
		t.Fatal("room id must not depend on who dialed")
	}
	if dmRoomID("a", "b") != "a:b" {
		t.Errorf("expected a:b, got %q", dmRoomID("a", "b"))
	}
}

// principalAs stamps a fixed identity on every request, standing in for the
// JWT middleware.
func principalAs(p *auth.Principal) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(string(auth.PrincipalKey), p)
			return next(c)
		}
	}
}

func dial(t *testing.T, srv *httptest.Server, path string) *gorillawebsocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *gorillawebsocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestHandleDM_RelaysBetweenPeers(t *testing.T) {
	hub := ws.NewHub()
	h := NewHandler(hub, archive.NewMemoryArchive(), zerolog.Nop())

	aliceID := uuid.New()
	bobID := uuid.New()

	e := echo.New()
	wsGroup := e.Group("/ws")
	wsGroup.GET("/dm/:peer_id", h.HandleDM, principalAs(&auth.Principal{UserID: aliceID, Role: auth.RolePatient}))
	wsGroup.GET("/dm2/:peer_id", h.HandleDM, principalAs(&auth.Principal{UserID: bobID, Role: auth.RoleDoctor}))

	srv := httptest.NewServer(e)
	defer srv.Close()

	alice := dial(t, srv, "/ws/dm/"+bobID.String())
	bob := dial(t, srv, "/ws/dm2/"+aliceID.String())

	// Joins race the first send; wait until both sides are in the room.
	room := ws.Room{Channel: ChannelDM, ID: dmRoomID(aliceID.String(), bobID.String())}
	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomCount(room) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected both peers in room, have %d", hub.RoomCount(room))
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := alice.WriteMessage(gorillawebsocket.TextMessage, []byte("hello bob")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if got := readFrame(t, bob); got != "hello bob" {
		t.Errorf("bob expected relay, got %q", got)
	}
	if got := readFrame(t, alice); got != "hello bob" {
		t.Errorf("alice expected delivery echo, got %q", got)
	}
}

func TestHandleSupport_ReplaysHistoryAndArchives(t *testing.T) {
	hub := ws.NewHub()
	sessions := archive.NewMemoryArchive()
	h := NewHandler(hub, sessions, zerolog.Nop())

	sessionID := uuid.New().String()
	if err := sessions.Append(context.Background(), sessionID, []byte("earlier message")); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	e := echo.New()
	h.RegisterOpenWS(e.Group("/ws"))
	srv := httptest.NewServer(e)
	defer srv.Close()

	conn := dial(t, srv, "/ws/support/"+sessionID)

	if got := readFrame(t, conn); got != "earlier message" {
		t.Fatalf("expected history replay first, got %q", got)
	}

	if err := conn.WriteMessage(gorillawebsocket.TextMessage, []byte("still broken")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readFrame(t, conn); got != "still broken" {
		t.Errorf("expected live relay, got %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		history, err := sessions.History(context.Background(), sessionID)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) == 2 && string(history[1]) == "still broken" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message never archived, history has %d entries", len(history))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
