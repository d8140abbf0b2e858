package notify_test

import (
	"context"
	"testing"
	"time"

	"gigboard/internal/db"
	"gigboard/internal/migrate"
	"gigboard/internal/notify"
	"gigboard/internal/repo"
)

func newTestHub(t *testing.T) (*notify.Hub, repo.Repo) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	return notify.NewHub(r), r
}

func TestNotifyDeliversToSubscriber(t *testing.T) {
	hub, r := newTestHub(t)
	ctx := context.Background()

	ch, cancel := hub.Subscribe("freelancer-a")
	defer cancel()

	evt := notify.Event{Kind: "hired", GigID: "g1", BidID: "b1", GigTitle: "Logo", Message: "hi"}
	hub.Notify(ctx, "freelancer-a", evt)

	select {
	case got := <-ch:
		if got != evt {
			t.Fatalf("got %+v, want %+v", got, evt)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}

	stored, err := r.ListNotifications(ctx, "freelancer-a", false, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored = %d, want 1", len(stored))
	}
	if stored[0].DeliveredAt == nil {
		t.Fatalf("live delivery should mark the notification delivered")
	}
}

func TestNotifyQueuesWithoutSubscriber(t *testing.T) {
	hub, r := newTestHub(t)
	ctx := context.Background()

	hub.Notify(ctx, "freelancer-b", notify.Event{Kind: "hired", GigID: "g1", BidID: "b1"})

	stored, err := r.ListNotifications(ctx, "freelancer-b", true, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("queued = %d, want 1", len(stored))
	}
	if stored[0].DeliveredAt != nil {
		t.Fatalf("nothing was live, delivered_at should be empty")
	}
}

func TestCancelRemovesSubscription(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	ch, cancel := hub.Subscribe("freelancer-c")
	cancel()

	hub.Notify(ctx, "freelancer-c", notify.Event{Kind: "hired", GigID: "g1", BidID: "b1"})

	if _, open := <-ch; open {
		t.Fatalf("channel should be closed after cancel")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	_, cancel := hub.Subscribe("freelancer-d")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 64; i++ {
			hub.Notify(ctx, "freelancer-d", notify.Event{Kind: "hired", GigID: "g1", BidID: "b1"})
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Notify blocked on a full subscriber channel")
	}
}
