package domain

type Gig struct {
	ID                string   `json:"id"`
	OwnerID           string   `json:"owner_id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Budget            float64  `json:"budget"`
	Category          string   `json:"category"`
	Skills            []string `json:"skills,omitempty"`
	Status            string   `json:"status" enum:"open,assigned,completed"`
	HiredFreelancerID *string  `json:"hired_freelancer_id,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

type Bid struct {
	ID           string  `json:"id"`
	GigID        string  `json:"gig_id"`
	FreelancerID string  `json:"freelancer_id"`
	Message      string  `json:"message"`
	Price        float64 `json:"price"`
	Status       string  `json:"status" enum:"pending,hired,rejected"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

// GigSummary is the slice of a gig a bidder sees next to their own bids.
type GigSummary struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Budget float64 `json:"budget"`
	Status string  `json:"status"`
}

type BidWithGig struct {
	Bid
	Gig GigSummary `json:"gig"`
}

type User struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Bio         string   `json:"bio,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Location    string   `json:"location,omitempty"`
	HourlyRate  *float64 `json:"hourly_rate,omitempty"`
	Rating      float64  `json:"rating"`
	ReviewCount int      `json:"review_count"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Review struct {
	ID         string `json:"id"`
	GigID      string `json:"gig_id"`
	ReviewerID string `json:"reviewer_id"`
	RevieweeID string `json:"reviewee_id"`
	Rating     int    `json:"rating" minimum:"1" maximum:"5"`
	Comment    string `json:"comment,omitempty"`
	Type       string `json:"type" enum:"client-to-freelancer,freelancer-to-client"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Kind        string  `json:"kind"`
	GigID       string  `json:"gig_id"`
	BidID       string  `json:"bid_id"`
	GigTitle    string  `json:"gig_title"`
	Message     string  `json:"message"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	DeliveredAt *string `json:"delivered_at,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// UserStats aggregates a principal's marketplace activity on both sides.
type UserStats struct {
	GigsPosted    int     `json:"gigs_posted"`
	GigsCompleted int     `json:"gigs_completed"`
	BidsSubmitted int     `json:"bids_submitted"`
	BidsWon       int     `json:"bids_won"`
	TotalEarnings float64 `json:"total_earnings"`
	TotalSpent    float64 `json:"total_spent"`
	SuccessRate   float64 `json:"success_rate"`
}
