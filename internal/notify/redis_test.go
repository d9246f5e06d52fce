package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/raysh454/flipradar/internal/model"
	"github.com/raysh454/flipradar/internal/notify"
	"github.com/raysh454/flipradar/internal/testutil"
)

func TestRedisBridge_ForwardsIntoHub(t *testing.T) {
	t.Parallel()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()

	hub := notify.NewHub(8, nil)
	sub := hub.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := notify.NewRedisBridge(client, "events", hub, &testutil.DummyLogger{})
	errc := make(chan error, 1)
	go func() { errc <- bridge.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for m.PubSubNumSub("events")["events"] == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	pub := notify.NewRedisPublisher(client, "events")
	o := model.Opportunity{ID: "remote-1", ProductTitle: "Guitar"}
	if err := pub.Publish(ctx, model.DiscoveredEvent(o, time.Now())); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ev := recv(t, sub)
	if ev.Type != model.EventOpportunityDiscovered || ev.Opportunity == nil || ev.Opportunity.ID != "remote-1" {
		t.Errorf("unexpected forwarded event: %+v", ev)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("bridge did not stop on cancel")
	}
}

func TestRedisPublisher_Unavailable(t *testing.T) {
	t.Parallel()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1})
	defer client.Close()
	m.Close()

	err = notify.NewRedisPublisher(client, "").Publish(context.Background(), model.Event{Type: model.EventScanStarted})
	if err == nil {
		t.Fatal("expected error when redis is down")
	}
}
