package ws

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/hub"
)

func TestSubscribeReceivesBroadcasts(t *testing.T) {
	h := hub.New()
	e := echo.New()
	NewServer(h).RegisterRoutes(e)

	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sprints/sprint_1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	// Subscription is registered during the upgrade handler; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for h.SubscriberCount("sprint_1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never joined the room")
		}
		time.Sleep(10 * time.Millisecond)
	}

	seq := h.BroadcastEvent("sprint_1", domain.EventTypePhaseStarted, map[string]interface{}{
		"phase": "coding",
	})
	if seq != 0 {
		t.Fatalf("expected first sequence 0, got %d", seq)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}

	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("frame is not JSON: %v", err)
	}
	if frame["event"] != "phase.started" || frame["sprint_id"] != "sprint_1" {
		t.Fatalf("unexpected frame: %v", frame)
	}
	if frame["sequence"].(float64) != 0 {
		t.Fatalf("unexpected sequence: %v", frame["sequence"])
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	h := hub.New()
	e := echo.New()
	NewServer(h).RegisterRoutes(e)

	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sprints/sprint_a/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.SubscriberCount("sprint_a") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never joined the room")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.BroadcastEvent("sprint_b", domain.EventTypePhaseStarted, nil)

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("received a frame from another sprint's room")
	}
}

func TestSendFullBufferIsSlowSubscriber(t *testing.T) {
	c := &connection{id: "c1", send: make(chan []byte, 1)}

	if err := c.Send([]byte("one")); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	err := c.Send([]byte("two"))
	if !errors.Is(err, hub.ErrSlowSubscriber) {
		t.Fatalf("expected ErrSlowSubscriber, got %v", err)
	}
}
