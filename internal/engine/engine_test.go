package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gigboard/internal/config"
	"gigboard/internal/db"
	"gigboard/internal/domain"
	"gigboard/internal/engine"
	"gigboard/internal/engine/auth"
	"gigboard/internal/migrate"
	"gigboard/internal/notify"
	"gigboard/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Hub    *notify.Hub
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	hub := notify.NewHub(repo.Repo{DB: conn})
	eng := engine.New(conn, config.Default(), hub)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Hub: hub, Ctx: context.Background()}
}

func mustCreateGig(t *testing.T, env testEnv, owner string) domain.Gig {
	t.Helper()
	g, err := env.Engine.CreateGig(env.Ctx, engine.GigCreateOptions{
		Title:       "Build landing page",
		Description: "Single page, responsive",
		Budget:      500,
		OwnerID:     owner,
	})
	if err != nil {
		t.Fatalf("create gig: %v", err)
	}
	return g
}

func mustSubmitBid(t *testing.T, env testEnv, gigID, freelancer string, price float64) domain.Bid {
	t.Helper()
	b, err := env.Engine.SubmitBid(env.Ctx, engine.BidCreateOptions{
		GigID:        gigID,
		Message:      "I can do this",
		Price:        price,
		FreelancerID: freelancer,
	})
	if err != nil {
		t.Fatalf("submit bid: %v", err)
	}
	return b
}

func TestHireAssignsGigAndSettlesBids(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGig(t, env, "client-1")
	winner := mustSubmitBid(t, env, g.ID, "freelancer-a", 400)
	loser := mustSubmitBid(t, env, g.ID, "freelancer-b", 450)

	hiredGig, hiredBid, err := env.Engine.Hire(env.Ctx, winner.ID, "client-1")
	if err != nil {
		t.Fatalf("hire: %v", err)
	}
	if hiredGig.Status != "assigned" {
		t.Fatalf("gig status = %s, want assigned", hiredGig.Status)
	}
	if hiredGig.HiredFreelancerID == nil || *hiredGig.HiredFreelancerID != "freelancer-a" {
		t.Fatalf("hired freelancer = %v", hiredGig.HiredFreelancerID)
	}
	if hiredBid.Status != "hired" {
		t.Fatalf("winning bid status = %s, want hired", hiredBid.Status)
	}
	other, err := env.Engine.Repo.GetBid(env.Ctx, loser.ID)
	if err != nil {
		t.Fatalf("get losing bid: %v", err)
	}
	if other.Status != "rejected" {
		t.Fatalf("losing bid status = %s, want rejected", other.Status)
	}
}

func TestHireStoresNotificationForWinner(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGig(t, env, "client-1")
	b := mustSubmitBid(t, env, g.ID, "freelancer-a", 400)

	if _, _, err := env.Engine.Hire(env.Ctx, b.ID, "client-1"); err != nil {
		t.Fatalf("hire: %v", err)
	}
	items, err := env.Engine.Notifications(env.Ctx, "freelancer-a", false, 10)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("notifications = %d, want 1", len(items))
	}
	n := items[0]
	if n.Kind != "hired" || n.GigID != g.ID || n.BidID != b.ID {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.GigTitle != "Build landing page" {
		t.Fatalf("gig title = %q", n.GigTitle)
	}
	if n.Message != `Congratulations! You have been hired for "Build landing page"!` {
		t.Fatalf("message = %q", n.Message)
	}
	if n.DeliveredAt == nil {
		t.Fatalf("reading the list should mark the notification delivered")
	}
}

func TestHireDeliversToLiveSubscriber(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGig(t, env, "client-1")
	b := mustSubmitBid(t, env, g.ID, "freelancer-a", 400)

	ch, cancel := env.Hub.Subscribe("freelancer-a")
	defer cancel()

	if _, _, err := env.Engine.Hire(env.Ctx, b.ID, "client-1"); err != nil {
		t.Fatalf("hire: %v", err)
	}
	select {
	case evt := <-ch:
		if evt.Kind != "hired" || evt.GigID != g.ID || evt.BidID != b.ID {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no live event received")
	}
}

func TestHirePreconditionOrder(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGig(t, env, "client-1")
	b := mustSubmitBid(t, env, g.ID, "freelancer-a", 400)

	// unknown bid
	if _, _, err := env.Engine.Hire(env.Ctx, "no-such-bid", "client-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown bid: got %v, want not found", err)
	}
	// non-owner
	var fe auth.ForbiddenError
	if _, _, err := env.Engine.Hire(env.Ctx, b.ID, "someone-else"); !errors.As(err, &fe) {
		t.Fatalf("non-owner: got %v, want forbidden", err)
	}
	// first hire wins
	if _, _, err := env.Engine.Hire(env.Ctx, b.ID, "client-1"); err != nil {
		t.Fatalf("hire: %v", err)
	}
	// gig no longer open beats the bid-state check
	var ce engine.ConflictError
	_, _, err := env.Engine.Hire(env.Ctx, b.ID, "client-1")
	if !errors.As(err, &ce) {
		t.Fatalf("second hire: got %v, want conflict", err)
	}
	if ce.Message != "gig already assigned" {
		t.Fatalf("second hire message = %q", ce.Message)
	}
}

func TestConcurrentHireHasSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGig(t, env, "client-1")
	bids := []domain.Bid{
		mustSubmitBid(t, env, g.ID, "freelancer-a", 400),
		mustSubmitBid(t, env, g.ID, "freelancer-b", 420),
		mustSubmitBid(t, env, g.ID, "freelancer-c", 440),
		mustSubmitBid(t, env, g.ID, "freelancer-d", 460),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(bids))
	for i, b := range bids {
		wg.Add(1)
		go func(i int, bidID string) {
			defer wg.Done()
			_, _, errs[i] = env.Engine.Hire(env.Ctx, bidID, "client-1")
		}(i, b.ID)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var ce engine.ConflictError
		if !errors.As(err, &ce) && !errors.Is(err, repo.ErrUnavailable) {
			t.Fatalf("loser error = %v, want conflict or unavailable", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}

	got, err := env.Engine.Repo.GetGig(env.Ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "assigned" || got.HiredFreelancerID == nil {
		t.Fatalf("gig after race: %+v", got)
	}
	hired := 0
	for _, b := range bids {
		cur, err := env.Engine.Repo.GetBid(env.Ctx, b.ID)
		if err != nil {
			t.Fatal(err)
		}
		switch cur.Status {
		case "hired":
			hired++
			if *got.HiredFreelancerID != cur.FreelancerID {
				t.Fatalf("hired freelancer mismatch: gig=%s bid=%s", *got.HiredFreelancerID, cur.FreelancerID)
			}
		case "rejected":
		default:
			t.Fatalf("bid %s left in status %s", cur.ID, cur.Status)
		}
	}
	if hired != 1 {
		t.Fatalf("hired bids = %d, want 1", hired)
	}
}

func TestSubmitBidRules(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGig(t, env, "client-1")

	var fe auth.ForbiddenError
	_, err := env.Engine.SubmitBid(env.Ctx, engine.BidCreateOptions{GigID: g.ID, Message: "me", Price: 10, FreelancerID: "client-1"})
	if !errors.As(err, &fe) {
		t.Fatalf("self bid: got %v, want forbidden", err)
	}

	var ie engine.InvalidError
	_, err = env.Engine.SubmitBid(env.Ctx, engine.BidCreateOptions{GigID: g.ID, Message: "", Price: 10, FreelancerID: "freelancer-a"})
	if !errors.As(err, &ie) {
		t.Fatalf("empty message: got %v, want invalid", err)
	}
	_, err = env.Engine.SubmitBid(env.Ctx, engine.BidCreateOptions{GigID: g.ID, Message: "hi", Price: -1, FreelancerID: "freelancer-a"})
	if !errors.As(err, &ie) {
		t.Fatalf("negative price: got %v, want invalid", err)
	}

	mustSubmitBid(t, env, g.ID, "freelancer-a", 400)
	var ce engine.ConflictError
	_, err = env.Engine.SubmitBid(env.Ctx, engine.BidCreateOptions{GigID: g.ID, Message: "again", Price: 350, FreelancerID: "freelancer-a"})
	if !errors.As(err, &ce) {
		t.Fatalf("duplicate bid: got %v, want conflict", err)
	}

	b := mustSubmitBid(t, env, g.ID, "freelancer-b", 450)
	if _, _, err := env.Engine.Hire(env.Ctx, b.ID, "client-1"); err != nil {
		t.Fatalf("hire: %v", err)
	}
	_, err = env.Engine.SubmitBid(env.Ctx, engine.BidCreateOptions{GigID: g.ID, Message: "late", Price: 300, FreelancerID: "freelancer-c"})
	if !errors.As(err, &ce) {
		t.Fatalf("bid after assignment: got %v, want conflict", err)
	}
}

func TestDeleteGigRules(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGig(t, env, "client-1")
	mustSubmitBid(t, env, g.ID, "freelancer-a", 400)

	var fe auth.ForbiddenError
	if err := env.Engine.DeleteGig(env.Ctx, g.ID, "freelancer-a"); !errors.As(err, &fe) {
		t.Fatalf("non-owner delete: got %v, want forbidden", err)
	}

	g2 := mustCreateGig(t, env, "client-1")
	b2 := mustSubmitBid(t, env, g2.ID, "freelancer-a", 400)
	if _, _, err := env.Engine.Hire(env.Ctx, b2.ID, "client-1"); err != nil {
		t.Fatalf("hire: %v", err)
	}
	var ce engine.ConflictError
	if err := env.Engine.DeleteGig(env.Ctx, g2.ID, "client-1"); !errors.As(err, &ce) {
		t.Fatalf("delete assigned: got %v, want conflict", err)
	}

	if err := env.Engine.DeleteGig(env.Ctx, g.ID, "client-1"); err != nil {
		t.Fatalf("delete open gig: %v", err)
	}
	if _, err := env.Engine.Repo.GetGig(env.Ctx, g.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted gig still readable: %v", err)
	}
}

func TestBidsSurviveGigDeletion(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGig(t, env, "client-1")
	b := mustSubmitBid(t, env, g.ID, "freelancer-a", 400)

	if err := env.Engine.DeleteGig(env.Ctx, g.ID, "client-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	kept, err := env.Engine.Repo.GetBid(env.Ctx, b.ID)
	if err != nil {
		t.Fatalf("bid should survive gig deletion: %v", err)
	}
	if kept.Status != "rejected" {
		t.Fatalf("surviving bid status = %s, want rejected", kept.Status)
	}

	mine, err := env.Engine.MyBids(env.Ctx, "freelancer-a")
	if err != nil {
		t.Fatalf("my bids: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("my bids = %d, want 1", len(mine))
	}
	if mine[0].ID != b.ID || mine[0].Gig.ID != "" {
		t.Fatalf("unexpected bid listing after deletion: %+v", mine[0])
	}
}

func TestUpdateGigOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGig(t, env, "client-1")

	title := "Bigger landing page"
	budget := 750.0
	updated, err := env.Engine.UpdateGig(env.Ctx, g.ID, "client-1", engine.GigUpdateOptions{Title: &title, Budget: &budget})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title || updated.Budget != budget {
		t.Fatalf("update not applied: %+v", updated)
	}

	var fe auth.ForbiddenError
	if _, err := env.Engine.UpdateGig(env.Ctx, g.ID, "someone-else", engine.GigUpdateOptions{Title: &title}); !errors.As(err, &fe) {
		t.Fatalf("non-owner update: got %v, want forbidden", err)
	}
}

func completeHiredGig(t *testing.T, env testEnv, owner, freelancer string) domain.Gig {
	t.Helper()
	g := mustCreateGig(t, env, owner)
	b := mustSubmitBid(t, env, g.ID, freelancer, 400)
	if _, _, err := env.Engine.Hire(env.Ctx, b.ID, owner); err != nil {
		t.Fatalf("hire: %v", err)
	}
	done, err := env.Engine.CompleteGig(env.Ctx, g.ID, owner)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	return done
}

func TestReviewsUpdateAggregateRating(t *testing.T) {
	env := newTestEnv(t)
	g1 := completeHiredGig(t, env, "client-1", "freelancer-a")
	g2 := completeHiredGig(t, env, "client-2", "freelancer-a")

	if _, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{GigID: g1.ID, Rating: 5, ReviewerID: "client-1"}); err != nil {
		t.Fatalf("review 1: %v", err)
	}
	if _, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{GigID: g2.ID, Rating: 4, Comment: "solid", ReviewerID: "client-2"}); err != nil {
		t.Fatalf("review 2: %v", err)
	}

	u, err := env.Engine.GetUser(env.Ctx, "freelancer-a")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.ReviewCount != 2 {
		t.Fatalf("review count = %d, want 2", u.ReviewCount)
	}
	if u.Rating != 4.5 {
		t.Fatalf("rating = %v, want 4.5", u.Rating)
	}

	// the freelancer reviews back
	rv, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{GigID: g1.ID, Rating: 3, ReviewerID: "freelancer-a"})
	if err != nil {
		t.Fatalf("freelancer review: %v", err)
	}
	if rv.Type != "freelancer-to-client" || rv.RevieweeID != "client-1" {
		t.Fatalf("unexpected review %+v", rv)
	}
}

func TestReviewRules(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGig(t, env, "client-1")
	b := mustSubmitBid(t, env, g.ID, "freelancer-a", 400)

	var ce engine.ConflictError
	_, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{GigID: g.ID, Rating: 5, ReviewerID: "client-1"})
	if !errors.As(err, &ce) {
		t.Fatalf("review before completed: got %v, want conflict", err)
	}

	if _, _, err := env.Engine.Hire(env.Ctx, b.ID, "client-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteGig(env.Ctx, g.ID, "client-1"); err != nil {
		t.Fatal(err)
	}

	var ie engine.InvalidError
	_, err = env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{GigID: g.ID, Rating: 6, ReviewerID: "client-1"})
	if !errors.As(err, &ie) {
		t.Fatalf("rating out of range: got %v, want invalid", err)
	}

	var fe auth.ForbiddenError
	_, err = env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{GigID: g.ID, Rating: 5, ReviewerID: "bystander"})
	if !errors.As(err, &fe) {
		t.Fatalf("non-participant review: got %v, want forbidden", err)
	}

	if _, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{GigID: g.ID, Rating: 5, ReviewerID: "client-1"}); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{GigID: g.ID, Rating: 4, ReviewerID: "client-1"})
	if !errors.As(err, &ce) {
		t.Fatalf("duplicate review: got %v, want conflict", err)
	}
}

func TestUserStats(t *testing.T) {
	env := newTestEnv(t)
	g := completeHiredGig(t, env, "client-1", "freelancer-a")
	_ = g

	open := mustCreateGig(t, env, "client-1")
	mustSubmitBid(t, env, open.ID, "freelancer-a", 200)

	clientStats, err := env.Engine.UserStats(env.Ctx, "client-1")
	if err != nil {
		t.Fatal(err)
	}
	if clientStats.GigsPosted != 2 || clientStats.GigsCompleted != 1 {
		t.Fatalf("client stats = %+v", clientStats)
	}
	if clientStats.TotalSpent != 400 {
		t.Fatalf("client spent = %v, want 400", clientStats.TotalSpent)
	}

	fStats, err := env.Engine.UserStats(env.Ctx, "freelancer-a")
	if err != nil {
		t.Fatal(err)
	}
	if fStats.BidsSubmitted != 2 || fStats.BidsWon != 1 {
		t.Fatalf("freelancer stats = %+v", fStats)
	}
	if fStats.TotalEarnings != 400 {
		t.Fatalf("earnings = %v, want 400", fStats.TotalEarnings)
	}
	if fStats.SuccessRate != 50 {
		t.Fatalf("success rate = %v, want 50", fStats.SuccessRate)
	}
}

func TestMyBidsIncludesGigSummary(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGig(t, env, "client-1")
	mustSubmitBid(t, env, g.ID, "freelancer-a", 400)

	items, err := env.Engine.MyBids(env.Ctx, "freelancer-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("bids = %d, want 1", len(items))
	}
	if items[0].Gig.Title != "Build landing page" || items[0].Gig.Budget != 500 {
		t.Fatalf("gig summary = %+v", items[0].Gig)
	}
}

func TestCompleteGigRules(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGig(t, env, "client-1")

	var ce engine.ConflictError
	if _, err := env.Engine.CompleteGig(env.Ctx, g.ID, "client-1"); !errors.As(err, &ce) {
		t.Fatalf("complete open gig: got %v, want conflict", err)
	}

	b := mustSubmitBid(t, env, g.ID, "freelancer-a", 400)
	if _, _, err := env.Engine.Hire(env.Ctx, b.ID, "client-1"); err != nil {
		t.Fatal(err)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.CompleteGig(env.Ctx, g.ID, "freelancer-a"); !errors.As(err, &fe) {
		t.Fatalf("non-owner complete: got %v, want forbidden", err)
	}
	done, err := env.Engine.CompleteGig(env.Ctx, g.ID, "client-1")
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != "completed" {
		t.Fatalf("status = %s, want completed", done.Status)
	}
}
