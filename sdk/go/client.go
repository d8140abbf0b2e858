package gigboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Gigboard HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Gig represents the API gig model.
type Gig struct {
	ID                string   `json:"id"`
	OwnerID           string   `json:"owner_id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Budget            float64  `json:"budget"`
	Category          string   `json:"category"`
	Skills            []string `json:"skills,omitempty"`
	Status            string   `json:"status"`
	HiredFreelancerID *string  `json:"hired_freelancer_id,omitempty"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// Bid represents the API bid model.
type Bid struct {
	ID           string  `json:"id"`
	GigID        string  `json:"gig_id"`
	FreelancerID string  `json:"freelancer_id"`
	Message      string  `json:"message"`
	Price        float64 `json:"price"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// HireResult is the outcome of accepting a bid.
type HireResult struct {
	Gig Gig `json:"gig"`
	Bid Bid `json:"bid"`
}

// Review represents a review entry.
type Review struct {
	ID         string `json:"id"`
	GigID      string `json:"gig_id"`
	ReviewerID string `json:"reviewer_id"`
	RevieweeID string `json:"reviewee_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
	Type       string `json:"type"`
	CreatedAt  string `json:"created_at"`
}

// Notification represents a stored notification.
type Notification struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Kind        string  `json:"kind"`
	GigID       string  `json:"gig_id"`
	BidID       string  `json:"bid_id"`
	GigTitle    string  `json:"gig_title"`
	Message     string  `json:"message"`
	CreatedAt   string  `json:"created_at"`
	DeliveredAt *string `json:"delivered_at,omitempty"`
}

// UserStats aggregates a user's marketplace activity.
type UserStats struct {
	GigsPosted    int     `json:"gigs_posted"`
	GigsCompleted int     `json:"gigs_completed"`
	BidsSubmitted int     `json:"bids_submitted"`
	BidsWon       int     `json:"bids_won"`
	TotalEarnings float64 `json:"total_earnings"`
	TotalSpent    float64 `json:"total_spent"`
	SuccessRate   float64 `json:"success_rate"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateGig posts a gig.
func (c *Client) CreateGig(ctx context.Context, title, description string, budget float64, category string, skills []string) (Gig, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
		"budget":      budget,
	}
	if category != "" {
		body["category"] = category
	}
	if len(skills) > 0 {
		body["skills"] = skills
	}
	var resp Gig
	err := c.do(ctx, http.MethodPost, "gigs", body, &resp)
	return resp, err
}

// ListGigs browses gigs, optionally filtered by status.
func (c *Client) ListGigs(ctx context.Context, status string, limit int) ([]Gig, error) {
	endpoint := "gigs"
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Gig
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetGig fetches a gig by id.
func (c *Client) GetGig(ctx context.Context, gigID string) (Gig, error) {
	var resp Gig
	err := c.do(ctx, http.MethodGet, "gigs/"+url.PathEscape(gigID), nil, &resp)
	return resp, err
}

// SubmitBid bids on an open gig.
func (c *Client) SubmitBid(ctx context.Context, gigID, message string, price float64) (Bid, error) {
	body := map[string]any{
		"message": message,
		"price":   price,
	}
	var resp Bid
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("gigs/%s/bids", url.PathEscape(gigID)), body, &resp)
	return resp, err
}

// Hire accepts a bid and assigns its gig.
func (c *Client) Hire(ctx context.Context, bidID string) (HireResult, error) {
	var resp HireResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("bids/%s/hire", url.PathEscape(bidID)), nil, &resp)
	return resp, err
}

// CreateReview reviews a completed gig.
func (c *Client) CreateReview(ctx context.Context, gigID string, rating int, comment string) (Review, error) {
	body := map[string]any{
		"rating":  rating,
		"comment": comment,
	}
	var resp Review
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("gigs/%s/reviews", url.PathEscape(gigID)), body, &resp)
	return resp, err
}

// Notifications lists the caller's notifications.
func (c *Client) Notifications(ctx context.Context, undeliveredOnly bool) ([]Notification, error) {
	endpoint := "me/notifications"
	if undeliveredOnly {
		endpoint += "?undelivered=true"
	}
	var resp []Notification
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Stats returns marketplace stats for a user.
func (c *Client) Stats(ctx context.Context, userID string) (UserStats, error) {
	var resp UserStats
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("users/%s/stats", url.PathEscape(userID)), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
