package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"gigboard/internal/app"
	"gigboard/internal/server"
)

// Manual smoke check: boot the API against a scratch workspace, mint a dev
// token, post a gig and bid on it.
func main() {
	env, err := app.Open("/tmp/gigboard-check1")
	if err != nil {
		panic(err)
	}
	defer env.Close()

	h, err := server.New(server.Config{
		Engine:   env.Engine,
		Hub:      env.Hub,
		BasePath: "/v1",
		Auth:     server.AuthConfig{JWTSecret: "test-secret", DevLogin: true},
	})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	clientToken := login(ts.URL, "client-1")
	freelancerToken := login(ts.URL, "freelancer-1")

	gig := post(ts.URL+"/v1/gigs", clientToken, map[string]any{
		"title":       "Build landing page",
		"description": "Single page, responsive",
		"budget":      500,
	})
	fmt.Println("gig:", gig)

	bid := post(fmt.Sprintf("%s/v1/gigs/%s/bids", ts.URL, gig["id"]), freelancerToken, map[string]any{
		"message": "I can do this in a week",
		"price":   450,
	})
	fmt.Println("bid:", bid)

	hired := post(fmt.Sprintf("%s/v1/bids/%s/hire", ts.URL, bid["id"]), clientToken, nil)
	fmt.Println("hire:", hired)
}

func login(baseURL, userID string) string {
	resp := post(baseURL+"/v1/auth/dev/login", "", map[string]any{"user_id": userID})
	token, _ := resp["token"].(string)
	return token
}

func post(url, token string, body map[string]any) map[string]any {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	fmt.Println("status:", res.StatusCode)
	return out
}
