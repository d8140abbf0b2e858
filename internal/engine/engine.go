package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gigboard/internal/config"
	"gigboard/internal/domain"
	"gigboard/internal/engine/auth"
	"gigboard/internal/events"
	"gigboard/internal/notify"
	"gigboard/internal/repo"
)

// ConflictError indicates the operation lost to an earlier state change.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string { return e.Message }

// InvalidError indicates the caller's input failed validation.
type InvalidError struct {
	Message string
}

func (e InvalidError) Error() string { return e.Message }

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Notifier notify.Dispatcher
	Config   *config.Config
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, n notify.Dispatcher) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Notifier: n,
		Config:   cfg,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// wrapStorageErr maps SQLite lock contention to a retryable sentinel.
func wrapStorageErr(err error) error {
	if repo.IsBusy(err) {
		return fmt.Errorf("%w: %v", repo.ErrUnavailable, err)
	}
	return err
}

// GigCreateOptions are parameters for posting a gig.
type GigCreateOptions struct {
	Title       string
	Description string
	Budget      float64
	Category    string
	Skills      []string
	OwnerID     string
}

func (e Engine) CreateGig(ctx context.Context, opts GigCreateOptions) (domain.Gig, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Gig{}, InvalidError{Message: "title is required"}
	}
	if strings.TrimSpace(opts.Description) == "" {
		return domain.Gig{}, InvalidError{Message: "description is required"}
	}
	if opts.Budget < 0 {
		return domain.Gig{}, InvalidError{Message: "budget must be non-negative"}
	}
	if opts.Category == "" {
		opts.Category = "Other"
	}
	if e.Config != nil && !e.Config.ValidCategory(opts.Category) {
		return domain.Gig{}, InvalidError{Message: fmt.Sprintf("unknown category %q", opts.Category)}
	}
	now := e.nowRFC3339()
	if err := e.Repo.EnsureUser(ctx, opts.OwnerID, "", "", now); err != nil {
		return domain.Gig{}, wrapStorageErr(err)
	}
	g := domain.Gig{
		ID:          uuid.NewString(),
		OwnerID:     opts.OwnerID,
		Title:       strings.TrimSpace(opts.Title),
		Description: opts.Description,
		Budget:      opts.Budget,
		Category:    opts.Category,
		Skills:      opts.Skills,
		Status:      "open",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Gig{}, wrapStorageErr(err)
	}
	defer tx.Rollback()

	if err := e.Repo.InsertGig(ctx, tx, g); err != nil {
		return domain.Gig{}, wrapStorageErr(err)
	}
	if err := e.Events.Append(ctx, tx, "gig.created", "gig", g.ID, opts.OwnerID, events.EventPayload{"title": g.Title, "budget": g.Budget}); err != nil {
		return domain.Gig{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Gig{}, wrapStorageErr(err)
	}
	return g, nil
}

func (e Engine) GetGig(ctx context.Context, id string) (domain.Gig, error) {
	return e.Repo.GetGig(ctx, id)
}

func (e Engine) ListGigs(ctx context.Context, f repo.GigFilters) ([]domain.Gig, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	return e.Repo.ListGigs(ctx, f)
}

// GigUpdateOptions are optional gig field updates; nil leaves a field unchanged.
type GigUpdateOptions struct {
	Title       *string
	Description *string
	Budget      *float64
	Category    *string
	Skills      []string
	SkillsSet   bool
}

func (e Engine) UpdateGig(ctx context.Context, gigID, actorID string, opts GigUpdateOptions) (domain.Gig, error) {
	g, err := e.Repo.GetGig(ctx, gigID)
	if err != nil {
		return domain.Gig{}, err
	}
	if err := auth.RequireOwner(g.OwnerID, actorID, "update this gig"); err != nil {
		return domain.Gig{}, err
	}
	if opts.Title != nil && strings.TrimSpace(*opts.Title) == "" {
		return domain.Gig{}, InvalidError{Message: "title is required"}
	}
	if opts.Budget != nil && *opts.Budget < 0 {
		return domain.Gig{}, InvalidError{Message: "budget must be non-negative"}
	}
	if opts.Category != nil && e.Config != nil && !e.Config.ValidCategory(*opts.Category) {
		return domain.Gig{}, InvalidError{Message: fmt.Sprintf("unknown category %q", *opts.Category)}
	}
	patch := repo.GigPatch{
		Title:       opts.Title,
		Description: opts.Description,
		Budget:      opts.Budget,
		Category:    opts.Category,
		Skills:      opts.Skills,
		SkillsSet:   opts.SkillsSet,
	}
	if err := e.Repo.UpdateGig(ctx, gigID, patch, e.nowRFC3339()); err != nil {
		return domain.Gig{}, wrapStorageErr(err)
	}
	return e.Repo.GetGig(ctx, gigID)
}

// DeleteGig removes an open gig. Assigned gigs stay put so the hired
// freelancer's record survives. Bids are never deleted: pending bids on the
// withdrawn gig are settled as rejected and kept as history.
func (e Engine) DeleteGig(ctx context.Context, gigID, actorID string) error {
	g, err := e.Repo.GetGig(ctx, gigID)
	if err != nil {
		return err
	}
	if err := auth.RequireOwner(g.OwnerID, actorID, "delete this gig"); err != nil {
		return err
	}
	if g.Status != "open" {
		return ConflictError{Message: "cannot delete a gig that is already assigned"}
	}
	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return wrapStorageErr(err)
	}
	defer tx.Rollback()

	if _, err := e.Repo.RejectBidsForGigTx(ctx, tx, gigID, now); err != nil {
		return wrapStorageErr(err)
	}
	if err := e.Repo.DeleteGig(ctx, tx, gigID); err != nil {
		return wrapStorageErr(err)
	}
	if err := e.Events.Append(ctx, tx, "gig.deleted", "gig", gigID, actorID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapStorageErr(err)
	}
	return nil
}

// CompleteGig moves an assigned gig to completed. Owner only.
func (e Engine) CompleteGig(ctx context.Context, gigID, actorID string) (domain.Gig, error) {
	g, err := e.Repo.GetGig(ctx, gigID)
	if err != nil {
		return domain.Gig{}, err
	}
	if err := auth.RequireOwner(g.OwnerID, actorID, "complete this gig"); err != nil {
		return domain.Gig{}, err
	}
	if g.Status != "assigned" {
		return domain.Gig{}, ConflictError{Message: "only an assigned gig can be completed"}
	}
	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Gig{}, wrapStorageErr(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE gigs SET status='completed', updated_at=? WHERE id=? AND status='assigned'`, now, gigID)
	if err != nil {
		return domain.Gig{}, wrapStorageErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Gig{}, ConflictError{Message: "only an assigned gig can be completed"}
	}
	if err := e.Events.Append(ctx, tx, "gig.completed", "gig", gigID, actorID, nil); err != nil {
		return domain.Gig{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Gig{}, wrapStorageErr(err)
	}
	return e.Repo.GetGig(ctx, gigID)
}

// BidCreateOptions are parameters for submitting a bid.
type BidCreateOptions struct {
	GigID        string
	Message      string
	Price        float64
	FreelancerID string
}

func (e Engine) SubmitBid(ctx context.Context, opts BidCreateOptions) (domain.Bid, error) {
	g, err := e.Repo.GetGig(ctx, opts.GigID)
	if err != nil {
		return domain.Bid{}, err
	}
	if g.Status != "open" {
		return domain.Bid{}, ConflictError{Message: "gig is no longer accepting bids"}
	}
	if g.OwnerID == opts.FreelancerID {
		return domain.Bid{}, auth.ForbiddenError{Message: "gig owners cannot bid on their own gig"}
	}
	if strings.TrimSpace(opts.Message) == "" {
		return domain.Bid{}, InvalidError{Message: "message is required"}
	}
	if opts.Price < 0 {
		return domain.Bid{}, InvalidError{Message: "price must be non-negative"}
	}
	exists, err := e.Repo.BidExists(ctx, opts.GigID, opts.FreelancerID)
	if err != nil {
		return domain.Bid{}, wrapStorageErr(err)
	}
	if exists {
		return domain.Bid{}, ConflictError{Message: "you have already bid on this gig"}
	}
	now := e.nowRFC3339()
	if err := e.Repo.EnsureUser(ctx, opts.FreelancerID, "", "", now); err != nil {
		return domain.Bid{}, wrapStorageErr(err)
	}
	b := domain.Bid{
		ID:           uuid.NewString(),
		GigID:        opts.GigID,
		FreelancerID: opts.FreelancerID,
		Message:      opts.Message,
		Price:        opts.Price,
		Status:       "pending",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bid{}, wrapStorageErr(err)
	}
	defer tx.Rollback()

	if err := e.Repo.InsertBid(ctx, tx, b); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.Bid{}, ConflictError{Message: "you have already bid on this gig"}
		}
		return domain.Bid{}, wrapStorageErr(err)
	}
	if err := e.Events.Append(ctx, tx, "bid.submitted", "bid", b.ID, opts.FreelancerID, events.EventPayload{"gig_id": b.GigID, "price": b.Price}); err != nil {
		return domain.Bid{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bid{}, wrapStorageErr(err)
	}
	return b, nil
}

// ListBidsForGig returns every bid on a gig. Owner only; bidders see their
// own bids through MyBids instead.
func (e Engine) ListBidsForGig(ctx context.Context, gigID, actorID string) ([]domain.Bid, error) {
	g, err := e.Repo.GetGig(ctx, gigID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireOwner(g.OwnerID, actorID, "view bids on this gig"); err != nil {
		return nil, err
	}
	return e.Repo.ListBidsForGig(ctx, gigID)
}

func (e Engine) MyBids(ctx context.Context, actorID string) ([]domain.BidWithGig, error) {
	return e.Repo.ListBidsForBidder(ctx, actorID)
}

// Hire accepts a bid: the gig becomes assigned, the bid becomes hired and
// every sibling pending bid is rejected, all in one transaction. The status
// guards on the writes turn concurrent hires into a race exactly one caller
// wins; the loser sees zero rows and the transaction rolls back.
func (e Engine) Hire(ctx context.Context, bidID, actorID string) (domain.Gig, domain.Bid, error) {
	b, err := e.Repo.GetBid(ctx, bidID)
	if err != nil {
		return domain.Gig{}, domain.Bid{}, err
	}
	g, err := e.Repo.GetGig(ctx, b.GigID)
	if err != nil {
		return domain.Gig{}, domain.Bid{}, err
	}
	if err := auth.RequireOwner(g.OwnerID, actorID, "hire for this gig"); err != nil {
		return domain.Gig{}, domain.Bid{}, err
	}
	if g.Status != "open" {
		return domain.Gig{}, domain.Bid{}, ConflictError{Message: "gig already assigned"}
	}
	if b.Status != "pending" {
		return domain.Gig{}, domain.Bid{}, ConflictError{Message: "bid already processed"}
	}

	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Gig{}, domain.Bid{}, wrapStorageErr(err)
	}
	defer tx.Rollback()

	ok, err := e.Repo.AssignGigTx(ctx, tx, g.ID, b.FreelancerID, now)
	if err != nil {
		return domain.Gig{}, domain.Bid{}, wrapStorageErr(err)
	}
	if !ok {
		return domain.Gig{}, domain.Bid{}, ConflictError{Message: "gig already assigned"}
	}
	ok, err = e.Repo.MarkBidHiredTx(ctx, tx, b.ID, now)
	if err != nil {
		return domain.Gig{}, domain.Bid{}, wrapStorageErr(err)
	}
	if !ok {
		return domain.Gig{}, domain.Bid{}, ConflictError{Message: "bid already processed"}
	}
	if _, err := e.Repo.RejectSiblingBidsTx(ctx, tx, g.ID, b.ID, now); err != nil {
		return domain.Gig{}, domain.Bid{}, wrapStorageErr(err)
	}
	if err := e.Events.Append(ctx, tx, "gig.hired", "gig", g.ID, actorID, events.EventPayload{
		"bid_id":        b.ID,
		"freelancer_id": b.FreelancerID,
		"price":         b.Price,
	}); err != nil {
		return domain.Gig{}, domain.Bid{}, err
	}
	// Re-read inside the transaction so the returned records reflect the
	// settled state this commit produces, not a later writer's.
	hiredGig, err := e.Repo.GetGigTx(ctx, tx, g.ID)
	if err != nil {
		return domain.Gig{}, domain.Bid{}, wrapStorageErr(err)
	}
	hiredBid, err := e.Repo.GetBidTx(ctx, tx, b.ID)
	if err != nil {
		return domain.Gig{}, domain.Bid{}, wrapStorageErr(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Gig{}, domain.Bid{}, wrapStorageErr(err)
	}

	// Delivery happens after commit; a notification for a rolled-back hire
	// would be a lie, and a failed delivery must not undo the hire.
	if e.Notifier != nil {
		e.Notifier.Notify(ctx, hiredBid.FreelancerID, notify.Event{
			Kind:     "hired",
			GigID:    hiredGig.ID,
			BidID:    hiredBid.ID,
			GigTitle: hiredGig.Title,
			Message:  fmt.Sprintf("Congratulations! You have been hired for %q!", hiredGig.Title),
		})
	}

	return hiredGig, hiredBid, nil
}

// ReviewCreateOptions are parameters for leaving a review.
type ReviewCreateOptions struct {
	GigID      string
	Rating     int
	Comment    string
	ReviewerID string
}

// CreateReview stores a review and refreshes the reviewee's cached rating.
// The recompute reads all reviews and averages them outside the insert
// transaction; two concurrent reviewers may both read before either writes
// and the later write wins, which self-corrects on the next review.
func (e Engine) CreateReview(ctx context.Context, opts ReviewCreateOptions) (domain.Review, error) {
	if opts.Rating < 1 || opts.Rating > 5 {
		return domain.Review{}, InvalidError{Message: "rating must be between 1 and 5"}
	}
	g, err := e.Repo.GetGig(ctx, opts.GigID)
	if err != nil {
		return domain.Review{}, err
	}
	if g.Status != "completed" {
		return domain.Review{}, ConflictError{Message: "gig must be completed before it can be reviewed"}
	}
	if g.HiredFreelancerID == nil {
		return domain.Review{}, ConflictError{Message: "gig has no hired freelancer"}
	}
	var revieweeID, reviewType string
	switch opts.ReviewerID {
	case g.OwnerID:
		revieweeID = *g.HiredFreelancerID
		reviewType = "client-to-freelancer"
	case *g.HiredFreelancerID:
		revieweeID = g.OwnerID
		reviewType = "freelancer-to-client"
	default:
		return domain.Review{}, auth.ForbiddenError{Message: "only gig participants can review this gig"}
	}
	now := e.nowRFC3339()
	rv := domain.Review{
		ID:         uuid.NewString(),
		GigID:      opts.GigID,
		ReviewerID: opts.ReviewerID,
		RevieweeID: revieweeID,
		Rating:     opts.Rating,
		Comment:    opts.Comment,
		Type:       reviewType,
		CreatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Review{}, wrapStorageErr(err)
	}
	defer tx.Rollback()

	if err := e.Repo.InsertReviewTx(ctx, tx, rv); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.Review{}, ConflictError{Message: "you have already reviewed this gig"}
		}
		return domain.Review{}, wrapStorageErr(err)
	}
	if err := e.Events.Append(ctx, tx, "review.created", "review", rv.ID, opts.ReviewerID, events.EventPayload{
		"gig_id":      rv.GigID,
		"reviewee_id": rv.RevieweeID,
		"rating":      rv.Rating,
	}); err != nil {
		return domain.Review{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Review{}, wrapStorageErr(err)
	}

	if err := e.recomputeRating(ctx, revieweeID); err != nil {
		return domain.Review{}, wrapStorageErr(err)
	}
	return rv, nil
}

func (e Engine) recomputeRating(ctx context.Context, userID string) error {
	avg, count, err := e.Repo.ReviewAggregate(ctx, userID)
	if err != nil {
		return err
	}
	return e.Repo.UpdateUserRating(ctx, userID, avg, count, e.nowRFC3339())
}

func (e Engine) ListReviewsForUser(ctx context.Context, userID string) ([]domain.Review, error) {
	return e.Repo.ListReviewsForUser(ctx, userID)
}

func (e Engine) GetUser(ctx context.Context, id string) (domain.User, error) {
	return e.Repo.GetUser(ctx, id)
}

// ProfileUpdateOptions are optional profile updates; nil leaves a field unchanged.
type ProfileUpdateOptions struct {
	Name       *string
	Bio        *string
	Location   *string
	HourlyRate *float64
	Skills     []string
	SkillsSet  bool
}

func (e Engine) UpdateProfile(ctx context.Context, userID string, opts ProfileUpdateOptions) (domain.User, error) {
	if opts.HourlyRate != nil && *opts.HourlyRate < 0 {
		return domain.User{}, InvalidError{Message: "hourly rate must be non-negative"}
	}
	now := e.nowRFC3339()
	if err := e.Repo.EnsureUser(ctx, userID, "", "", now); err != nil {
		return domain.User{}, wrapStorageErr(err)
	}
	patch := repo.UserPatch{
		Name:       opts.Name,
		Bio:        opts.Bio,
		Location:   opts.Location,
		HourlyRate: opts.HourlyRate,
		Skills:     opts.Skills,
		SkillsSet:  opts.SkillsSet,
	}
	if err := e.Repo.UpdateUserProfile(ctx, userID, patch, now); err != nil {
		return domain.User{}, wrapStorageErr(err)
	}
	return e.Repo.GetUser(ctx, userID)
}

func (e Engine) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	return e.Repo.UserStats(ctx, userID)
}

// Notifications lists stored notifications for a user, marking any still
// queued as delivered once they have been read.
func (e Engine) Notifications(ctx context.Context, userID string, undeliveredOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	list, err := e.Repo.ListNotifications(ctx, userID, undeliveredOnly, limit)
	if err != nil {
		return nil, err
	}
	now := e.nowRFC3339()
	for i := range list {
		if list[i].DeliveredAt == nil {
			if err := e.Repo.MarkNotificationDelivered(ctx, list[i].ID, now); err == nil {
				list[i].DeliveredAt = &now
			}
		}
	}
	return list, nil
}
