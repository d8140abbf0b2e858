package server

import (
	"gigboard/internal/domain"
)

// Request payloads

type CreateGigRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Budget      float64  `json:"budget" minimum:"0"`
	Category    string   `json:"category,omitempty"`
	Skills      []string `json:"skills,omitempty"`
}

type UpdateGigRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Budget      *float64 `json:"budget,omitempty" minimum:"0"`
	Category    *string  `json:"category,omitempty"`
	Skills      []string `json:"skills,omitempty"`
}

type CreateBidRequest struct {
	Message string  `json:"message"`
	Price   float64 `json:"price" minimum:"0"`
}

type CreateReviewRequest struct {
	Rating  int    `json:"rating" minimum:"1" maximum:"5"`
	Comment string `json:"comment,omitempty"`
}

type UpdateProfileRequest struct {
	Name       *string  `json:"name,omitempty"`
	Bio        *string  `json:"bio,omitempty"`
	Location   *string  `json:"location,omitempty"`
	HourlyRate *float64 `json:"hourly_rate,omitempty" minimum:"0"`
	Skills     []string `json:"skills,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type HireResponse struct {
	Gig domain.Gig `json:"gig"`
	Bid domain.Bid `json:"bid"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CreatedAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		UserID:    k.UserID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

func mapAPIKeys(keys []domain.APIKey) []APIKeyResponse {
	out := make([]APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, apiKeyResponse(k))
	}
	return out
}
