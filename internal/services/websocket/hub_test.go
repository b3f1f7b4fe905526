package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"occupancy/internal/logger"
	"occupancy/internal/models"
)

func setupHub(t *testing.T) (*HubService, *httptest.Server) {
	t.Helper()

	hub := NewHubService(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn, r.URL.Query().Get("camera"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				hub.Unregister(conn)
				return
			}
		}
	}))

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *HubService, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, hub.GetClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_PersistBroadcastsJSON(t *testing.T) {
	hub, srv := setupHub(t)
	conn := dial(t, srv, "")
	waitForClients(t, hub, 1)

	rec := models.MetricsRecord{Metrics: models.Metrics{CameraID: "camera1", TotalPeople: 4, PotentialCustomers: 2}}
	if err := hub.Persist(context.Background(), rec); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var got models.MetricsRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if got.TotalPeople != 4 || got.PotentialCustomers != 2 {
		t.Errorf("Unexpected payload %+v", got)
	}
}

func TestHub_CameraFilter(t *testing.T) {
	hub, srv := setupHub(t)
	other := dial(t, srv, "?camera=camera2")
	all := dial(t, srv, "")
	waitForClients(t, hub, 2)

	hub.Persist(context.Background(), models.MetricsRecord{Metrics: models.Metrics{CameraID: "camera1"}})

	all.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := all.ReadMessage(); err != nil {
		t.Fatalf("Unfiltered viewer should receive the message: %v", err)
	}

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("Viewer of camera2 should not receive camera1 metrics")
	}
}

func TestHub_Unregister(t *testing.T) {
	hub, srv := setupHub(t)
	conn := dial(t, srv, "")
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_PersistWithoutViewers(t *testing.T) {
	hub := NewHubService(logger.Discard())

	if err := hub.Persist(context.Background(), models.MetricsRecord{}); err != nil {
		t.Errorf("Persist without viewers should be a no-op, got %v", err)
	}
}

func TestHub_BroadcastDoesNotBlockWhenQueueFull(t *testing.T) {
	// Run is not started, so nothing drains the queue.
	hub := NewHubService(logger.Discard())

	var dropped int
	start := time.Now()
	for i := 0; i < cap(hub.broadcast)+5; i++ {
		if err := hub.Broadcast([]byte("{}"), "camera1"); err != nil {
			if !errors.Is(err, ErrBroadcastFull) {
				t.Fatalf("Unexpected error %v", err)
			}
			dropped++
		}
	}

	if dropped != 5 {
		t.Errorf("Expected 5 dropped messages, got %d", dropped)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Broadcast should not wait, took %v", elapsed)
	}
}

func TestHub_StalledViewerIsDropped(t *testing.T) {
	hub, srv := setupHub(t)
	hub.writeWait = 50 * time.Millisecond

	// Never reads, so its socket buffers fill up.
	dial(t, srv, "")
	waitForClients(t, hub, 1)

	payload := []byte(strings.Repeat("x", 1<<20))
	deadline := time.Now().Add(5 * time.Second)
	for hub.GetClientCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("Stalled viewer was never dropped")
		}
		hub.Broadcast(payload, "camera1")
		time.Sleep(10 * time.Millisecond)
	}
}
