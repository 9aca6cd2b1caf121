package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendToUserReachesOnlyThatUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(zap.NewNop().Sugar())
	go hub.Run(ctx)

	alice, bob := uuid.New(), uuid.New()
	a1, a2, b := NewClient(alice), NewClient(alice), NewClient(bob)
	for _, c := range []*Client{a1, a2, b} {
		if !hub.RegisterClient(c) {
			t.Fatal("register failed")
		}
	}
	waitFor(t, func() bool { return hub.Connections(alice) == 2 })

	hub.SendToUser(alice, map[string]string{"type": "deal_updated"})
	for _, c := range []*Client{a1, a2} {
		select {
		case msg := <-c.Send:
			var got map[string]string
			if err := json.Unmarshal(msg, &got); err != nil || got["type"] != "deal_updated" {
				t.Fatalf("payload = %s, %v", msg, err)
			}
		case <-time.After(time.Second):
			t.Fatal("no message delivered")
		}
	}
	select {
	case msg := <-b.Send:
		t.Fatalf("bob received %s", msg)
	default:
	}

	hub.UnregisterClient(a1)
	waitFor(t, func() bool { return hub.Connections(alice) == 1 })
	if _, ok := <-a1.Send; ok {
		t.Fatal("send channel should be closed after unregister")
	}
}

func TestStoppedHubRejectsClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zap.NewNop().Sugar())
	done := make(chan struct{})
	go func() { hub.Run(ctx); close(done) }()

	c := NewClient(uuid.New())
	hub.RegisterClient(c)
	cancel()
	<-done

	if _, ok := <-c.Send; ok {
		t.Fatal("remaining clients should be closed on shutdown")
	}
	if hub.RegisterClient(NewClient(uuid.New())) {
		t.Fatal("register after shutdown should fail")
	}
	hub.UnregisterClient(c)
}

func TestRelayFallsBackToLocalDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(zap.NewNop().Sugar())
	go hub.Run(ctx)

	// nothing listens on port 1, so every publish fails
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	relay := NewRelay(hub, rdb, zap.NewNop().Sugar())

	user := uuid.New()
	c := NewClient(user)
	hub.RegisterClient(c)
	waitFor(t, func() bool { return hub.Connections(user) == 1 })

	relay.SendToUser(user, map[string]string{"type": "notification"})
	select {
	case msg := <-c.Send:
		if string(msg) != `{"type":"notification"}` {
			t.Fatalf("payload = %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered locally")
	}
}
