package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type mockConn struct {
	written [][]byte
	mu      sync.Mutex
	closed  bool
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	return 0, nil, fmt.Errorf("closed")
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func newTestClient() *Client {
	return NewClient(&mockConn{})
}

func TestJoinAndLeave(t *testing.T) {
	hub := NewHub()
	client := newTestClient()
	room := Room{Channel: "appointments", ID: "hospital-1"}

	hub.Join(client, room)
	if got := hub.RoomCount(room); got != 1 {
		t.Errorf("expected room count 1, got %d", got)
	}

	hub.Leave(client, room)
	if got := hub.RoomCount(room); got != 0 {
		t.Errorf("expected room count 0 after leave, got %d", got)
	}
}

func TestPublish_OnlyReachesRoomMembers(t *testing.T) {
	hub := NewHub()
	inRoom := newTestClient()
	otherRoom := newTestClient()
	otherChannel := newTestClient()

	hub.Join(inRoom, Room{Channel: "appointments", ID: "hospital-1"})
	hub.Join(otherRoom, Room{Channel: "appointments", ID: "hospital-2"})
	hub.Join(otherChannel, Room{Channel: "notifications", ID: "hospital-1"})

	if err := hub.Publish(Room{Channel: "appointments", ID: "hospital-1"}, map[string]string{"type": "queue_update"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case data := <-inRoom.Send:
		var msg map[string]string
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg["type"] != "queue_update" {
			t.Errorf("expected queue_update, got %s", msg["type"])
		}
	default:
		t.Fatal("expected message for room member")
	}

	select {
	case <-otherRoom.Send:
		t.Error("client in another room received the message")
	default:
	}
	select {
	case <-otherChannel.Send:
		t.Error("client in same room id on another channel received the message")
	default:
	}
}

func TestPublish_SkipsFullBuffer(t *testing.T) {
	hub := NewHub()
	client := newTestClient()
	room := Room{Channel: "appointments", ID: "h"}
	hub.Join(client, room)

	// Fill the send buffer; further publishes must not block.
	for i := 0; i < cap(client.Send); i++ {
		client.Send <- []byte("x")
	}

	done := make(chan struct{})
	go func() {
		hub.PublishRaw(room, []byte("overflow"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow client")
	}
}

func TestDisconnect_RemovesFromAllRooms(t *testing.T) {
	hub := NewHub()
	client := newTestClient()
	r1 := Room{Channel: "appointments", ID: "h1"}
	r2 := Room{Channel: "notifications", ID: "u1"}
	hub.Join(client, r1)
	hub.Join(client, r2)

	hub.Disconnect(client)

	if hub.RoomCount(r1) != 0 || hub.RoomCount(r2) != 0 {
		t.Error("expected client removed from all rooms")
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send channel closed")
	}

	// Second disconnect must not panic on the closed channel.
	hub.Disconnect(client)
}

func TestClientCount(t *testing.T) {
	hub := NewHub()
	for i := 0; i < 5; i++ {
		hub.Join(newTestClient(), Room{Channel: "support", ID: fmt.Sprintf("s%d", i)})
	}
	if got := hub.ClientCount(); got != 5 {
		t.Errorf("expected 5 memberships, got %d", got)
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client := newTestClient()
			room := Room{Channel: "appointments", ID: fmt.Sprintf("hospital-%d", i%8)}
			hub.Join(client, room)
			hub.PublishRaw(room, []byte("ping"))
			hub.Disconnect(client)
		}(i)
	}

	wg.Wait()

	for i := 0; i < 8; i++ {
		room := Room{Channel: "appointments", ID: fmt.Sprintf("hospital-%d", i)}
		if got := hub.RoomCount(room); got != 0 {
			t.Errorf("room %s: expected 0 clients after disconnects, got %d", room.ID, got)
		}
	}
}

func TestUpgrade_EndToEnd(t *testing.T) {
	hub := NewHub()
	room := Room{Channel: "appointments", ID: "hospital-1"}

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		client, err := Upgrade(c)
		if err != nil {
			return err
		}
		hub.Join(client, room)
		go client.WritePump()
		go client.ReadPump(hub, nil)
		return nil
	})

	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to register the client.
	deadline := time.Now().Add(time.Second)
	for hub.RoomCount(room) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.RoomCount(room) != 1 {
		t.Fatal("client never joined the room")
	}

	if err := hub.Publish(room, map[string]string{"type": "queue_update"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "queue_update") {
		t.Errorf("unexpected frame: %s", data)
	}

	conn.Close()
	deadline = time.Now().Add(time.Second)
	for hub.RoomCount(room) != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.RoomCount(room) != 0 {
		t.Error("expected client pruned after close")
	}
}

func TestHTTPHandlerRejectsPlainRequest(t *testing.T) {
	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		_, err := Upgrade(c)
		return err
	})

	srv := httptest.NewServer(e)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusSwitchingProtocols {
		t.Error("plain GET should not upgrade")
	}
}
