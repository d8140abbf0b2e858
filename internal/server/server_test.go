package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"gigboard/internal/config"
	"gigboard/internal/db"
	"gigboard/internal/domain"
	"gigboard/internal/engine"
	"gigboard/internal/migrate"
	"gigboard/internal/notify"
	"gigboard/internal/repo"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	hub := notify.NewHub(repo.Repo{DB: conn})
	e := engine.New(conn, config.Default(), hub)
	handler, err := New(Config{
		Engine:   e,
		Hub:      hub,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret", DevLogin: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func devLogin(t *testing.T, srv *testServer, userID string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"user_id": userID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login %s: %d %s", userID, res.StatusCode, string(data))
	}
	var out DevLoginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + out.Token}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestHireFlowEndToEnd(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	clientAuth := devLogin(t, srv, "client-1")
	freelancerA := devLogin(t, srv, "freelancer-a")
	freelancerB := devLogin(t, srv, "freelancer-b")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/gigs", map[string]any{
		"title":       "Build landing page",
		"description": "Single page, responsive",
		"budget":      500,
	}, clientAuth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create gig: %d %s", res.StatusCode, string(data))
	}
	var gig domain.Gig
	if err := json.Unmarshal(data, &gig); err != nil {
		t.Fatalf("unmarshal gig: %v", err)
	}
	if gig.Status != "open" {
		t.Fatalf("new gig status = %s", gig.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/gigs/"+gig.ID+"/bids", map[string]any{
		"message": "Can start today",
		"price":   400,
	}, freelancerA)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("bid A: %d %s", res.StatusCode, string(data))
	}
	var bidA domain.Bid
	_ = json.Unmarshal(data, &bidA)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/gigs/"+gig.ID+"/bids", map[string]any{
		"message": "Have done this before",
		"price":   450,
	}, freelancerB)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("bid B: %d %s", res.StatusCode, string(data))
	}
	var bidB domain.Bid
	_ = json.Unmarshal(data, &bidB)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/bids/"+bidA.ID+"/hire", nil, clientAuth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("hire: %d %s", res.StatusCode, string(data))
	}
	var hired HireResponse
	if err := json.Unmarshal(data, &hired); err != nil {
		t.Fatalf("unmarshal hire: %v", err)
	}
	if hired.Gig.Status != "assigned" || hired.Bid.Status != "hired" {
		t.Fatalf("hire result: gig=%s bid=%s", hired.Gig.Status, hired.Bid.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/gigs/"+gig.ID+"/bids", nil, clientAuth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list bids: %d %s", res.StatusCode, string(data))
	}
	var bids []domain.Bid
	_ = json.Unmarshal(data, &bids)
	statuses := map[string]string{}
	for _, b := range bids {
		statuses[b.ID] = b.Status
	}
	if statuses[bidA.ID] != "hired" || statuses[bidB.ID] != "rejected" {
		t.Fatalf("bid statuses after hire: %v", statuses)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me/notifications", nil, freelancerA)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("notifications: %d %s", res.StatusCode, string(data))
	}
	var notes []domain.Notification
	_ = json.Unmarshal(data, &notes)
	if len(notes) != 1 || notes[0].Kind != "hired" || notes[0].GigID != gig.ID {
		t.Fatalf("notifications after hire: %s", string(data))
	}
}

func TestErrorEnvelopeCodes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	clientAuth := devLogin(t, srv, "client-1")
	freelancerAuth := devLogin(t, srv, "freelancer-a")
	strangerAuth := devLogin(t, srv, "stranger")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/gigs", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/gigs/no-such-gig", nil, clientAuth)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing gig: %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("missing gig code = %s", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/gigs", map[string]any{
		"title":       "",
		"description": "x",
		"budget":      10,
	}, clientAuth)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank title: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/gigs", map[string]any{
		"title":       "Logo refresh",
		"description": "New logo and palette",
		"budget":      300,
	}, clientAuth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create gig: %d %s", res.StatusCode, string(data))
	}
	var gig domain.Gig
	_ = json.Unmarshal(data, &gig)

	// owners cannot bid on their own gig
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/gigs/"+gig.ID+"/bids", map[string]any{
		"message": "me",
		"price":   100,
	}, clientAuth)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("self bid: %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "forbidden" {
		t.Fatalf("self bid code = %s", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/gigs/"+gig.ID+"/bids", map[string]any{
		"message": "here",
		"price":   250,
	}, freelancerAuth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("bid: %d %s", res.StatusCode, string(data))
	}
	var bid domain.Bid
	_ = json.Unmarshal(data, &bid)

	// only the owner may hire
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/bids/"+bid.ID+"/hire", nil, strangerAuth)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger hire: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/bids/"+bid.ID+"/hire", nil, clientAuth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("hire: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/bids/"+bid.ID+"/hire", nil, clientAuth)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second hire: %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "conflict" {
		t.Fatalf("second hire code = %s", code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	auth := devLogin(t, srv, "client-1")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/me/api-keys", map[string]any{
		"name": "ci",
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: %d %s", res.StatusCode, string(data))
	}
	var created CreatedAPIKeyResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if created.Key == "" {
		t.Fatalf("key secret missing: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/gigs", map[string]any{
		"title":       "Data cleanup",
		"description": "Normalize a CSV export",
		"budget":      120,
	}, map[string]string{"X-Api-Key": created.Key})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create gig with api key: %d %s", res.StatusCode, string(data))
	}
	var gig domain.Gig
	_ = json.Unmarshal(data, &gig)
	if gig.OwnerID != "client-1" {
		t.Fatalf("owner from api key = %s", gig.OwnerID)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/gigs", nil, map[string]string{"X-Api-Key": "bogus"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bogus key: %d %s", res.StatusCode, string(data))
	}
}

func TestProfileAndStats(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	auth := devLogin(t, srv, "freelancer-a")

	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/me", map[string]any{
		"name":        "Ada",
		"bio":         "Full stack",
		"hourly_rate": 80,
		"skills":      []string{"go", "sql"},
	}, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update profile: %d %s", res.StatusCode, string(data))
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	if u.Name != "Ada" || len(u.Skills) != 2 {
		t.Fatalf("profile not applied: %+v", u)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/users/freelancer-a/stats", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d %s", res.StatusCode, string(data))
	}
	var stats domain.UserStats
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.BidsSubmitted != 0 || stats.GigsPosted != 0 {
		t.Fatalf("fresh user stats: %+v", stats)
	}
}

func TestEventLogRecordsHire(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	clientAuth := devLogin(t, srv, "client-1")
	freelancerAuth := devLogin(t, srv, "freelancer-a")

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/gigs", map[string]any{
		"title":       "Write docs",
		"description": "API reference pass",
		"budget":      200,
	}, clientAuth)
	var gig domain.Gig
	_ = json.Unmarshal(data, &gig)

	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/gigs/"+gig.ID+"/bids", map[string]any{
		"message": "on it",
		"price":   180,
	}, freelancerAuth)
	var bid domain.Bid
	_ = json.Unmarshal(data, &bid)

	if res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/bids/"+bid.ID+"/hire", nil, clientAuth); res.StatusCode != http.StatusOK {
		t.Fatalf("hire: %d %s", res.StatusCode, string(body))
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?type=gig.hired", nil, clientAuth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) != 1 || events[0].EntityID != gig.ID || events[0].ActorID != "client-1" {
		t.Fatalf("hire event: %s", string(data))
	}
}
