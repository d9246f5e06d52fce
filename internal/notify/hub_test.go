package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raysh454/flipradar/internal/model"
	"github.com/raysh454/flipradar/internal/notify"
	"github.com/raysh454/flipradar/internal/testutil"
)

func scanEvent(id string) model.Event {
	return model.ScanEvent(model.EventScanStarted, model.ScanJob{ID: id, Status: model.JobRunning}, time.Now())
}

func recv(t *testing.T, s *notify.Subscriber) model.Event {
	t.Helper()
	select {
	case ev, ok := <-s.C():
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return model.Event{}
}

// ─── Hub ───────────────────────────────────────────────────────────────

func TestHub_DeliversInPublishOrder(t *testing.T) {
	t.Parallel()
	h := notify.NewHub(16, &testutil.DummyLogger{})
	a, b := h.Subscribe(), h.Subscribe()

	for _, id := range []string{"1", "2", "3"} {
		if err := h.Publish(context.Background(), scanEvent(id)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	for _, s := range []*notify.Subscriber{a, b} {
		for _, want := range []string{"1", "2", "3"} {
			if got := recv(t, s).JobID; got != want {
				t.Errorf("expected job %s, got %s", want, got)
			}
		}
	}
}

func TestHub_NoReplayForLateSubscribers(t *testing.T) {
	t.Parallel()
	h := notify.NewHub(16, nil)
	_ = h.Publish(context.Background(), scanEvent("early"))

	late := h.Subscribe()
	_ = h.Publish(context.Background(), scanEvent("late"))

	if got := recv(t, late).JobID; got != "late" {
		t.Errorf("expected only the later event, got %s", got)
	}
	select {
	case ev := <-late.C():
		t.Errorf("unexpected extra event %+v", ev)
	default:
	}
}

func TestHub_SlowSubscriberDropsWithoutBlocking(t *testing.T) {
	t.Parallel()
	h := notify.NewHub(1, nil)
	slow := h.Subscribe()
	fast := h.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			_ = h.Publish(context.Background(), scanEvent(string(rune('a'+i))))
			<-fast.C()
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	if got := recv(t, slow).JobID; got != "a" {
		t.Errorf("expected slow subscriber to keep first event, got %s", got)
	}
	select {
	case ev := <-slow.C():
		t.Errorf("expected later events to be dropped, got %+v", ev)
	default:
	}
}

func TestHub_UnsubscribeAndClose(t *testing.T) {
	t.Parallel()
	h := notify.NewHub(4, nil)
	s := h.Subscribe()
	other := h.Subscribe()
	if h.Subscribers() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", h.Subscribers())
	}

	h.Unsubscribe(s)
	h.Unsubscribe(s)
	if _, ok := <-s.C(); ok {
		t.Error("expected channel closed after unsubscribe")
	}

	h.Close()
	if _, ok := <-other.C(); ok {
		t.Error("expected channel closed after hub close")
	}
	if err := h.Publish(context.Background(), scanEvent("x")); err != nil {
		t.Errorf("publish after close should be a no-op, got %v", err)
	}
	if _, ok := <-h.Subscribe().C(); ok {
		t.Error("expected subscribe on closed hub to return a closed channel")
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────────

func TestHub_ServeWS(t *testing.T) {
	t.Parallel()
	h := notify.NewHub(8, &testutil.DummyLogger{})
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// client messages are ignored
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"hello":"server"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	o := model.Opportunity{ID: "opp-1", ProductTitle: "Camera", EstimatedProfit: 42}
	_ = h.Publish(context.Background(), model.DiscoveredEvent(o, time.Now()))
	_ = h.Publish(context.Background(), model.ScanEvent(model.EventScanCompleted,
		model.ScanJob{ID: "job-1", Status: model.JobCompleted, Found: 1}, time.Now()))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if first["type"] != "new_opportunity" {
		t.Errorf("expected new_opportunity, got %v", first["type"])
	}
	data, _ := first["data"].(map[string]any)
	if data["id"] != "opp-1" {
		t.Errorf("expected opportunity payload under data, got %v", first["data"])
	}

	var second model.WireMessage
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(raw, &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if second.Type != "scan_completed" || second.JobID != "job-1" || second.Status != model.JobCompleted {
		t.Errorf("unexpected scan frame: %s", raw)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for h.Subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.Subscribers() != 0 {
		t.Error("expected disconnect to unregister the subscriber")
	}
}
