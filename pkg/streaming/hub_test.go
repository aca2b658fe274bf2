package streaming

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/oddsbreaker/engine/pkg/match"
	"github.com/oddsbreaker/engine/pkg/valuedetect"
)

func startTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	s := httptest.NewServer(mux)
	t.Cleanup(func() {
		cancel()
		s.Close()
	})
	return hub, "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return ev
}

func TestHubBroadcastsToSubscribers(t *testing.T) {
	hub, url := startTestHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	hub.BroadcastPrediction("fix-1", match.Probabilities{Home: 0.5, Draw: 0.3, Away: 0.2})

	ev := readEvent(t, conn)
	if ev.Type != EventTypePrediction {
		t.Fatalf("event type = %s, want %s", ev.Type, EventTypePrediction)
	}
	data, ok := ev.Data.(map[string]any)
	if !ok || data["fixture_id"] != "fix-1" {
		t.Fatalf("event data = %#v, want fixture_id fix-1", ev.Data)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub, url := startTestHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	msg := `{"type":"unsubscribe","events":["edge"]}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // let readPump apply the subscription change

	hub.BroadcastEdge("fix-1", valuedetect.Assessment{Outcome: match.OutcomeHome})
	hub.BroadcastError(errString("boom"), "test")

	// The edge event must be skipped; the error event arrives first.
	ev := readEvent(t, conn)
	if ev.Type != EventTypeError {
		t.Fatalf("event type = %s, want %s", ev.Type, EventTypeError)
	}
}

func TestHubClientDisconnect(t *testing.T) {
	hub, url := startTestHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

type errString string

func (e errString) Error() string { return string(e) }
