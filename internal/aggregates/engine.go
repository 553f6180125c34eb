// Package aggregates recomputes the denormalised statistics stored on case
// posts and lawyer profiles. Every recompute is a full re-scan of the
// dependent rows so missed writes never cause drift.
package aggregates

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bids-backend/internal/metrics"
	"github.com/aldoetobex/legal-bids-backend/internal/store"
	"github.com/aldoetobex/legal-bids-backend/pkg/logger"
	"github.com/aldoetobex/legal-bids-backend/pkg/models"
)

const (
	AggregateCaseBids       = "case_bids"
	AggregateLawyerRatings  = "lawyer_ratings"
	AggregateCompletedCases = "lawyer_completed_cases"
)

// BidStats returns the bid count and the ceiling of the mean amount.
func BidStats(amounts []int) (count, average int) {
	if len(amounts) == 0 {
		return 0, 0
	}
	// Summed as float64 so large amounts cannot wrap around.
	var sum float64
	for _, a := range amounts {
		sum += float64(a)
	}
	return len(amounts), int(math.Ceil(sum / float64(len(amounts))))
}

// RatingStats returns the review count and the mean rating rounded to one
// decimal place.
func RatingStats(ratings []int) (count int, average float64) {
	if len(ratings) == 0 {
		return 0, 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	mean := float64(sum) / float64(len(ratings))
	return len(ratings), math.Round(mean*10) / 10
}

// Engine persists recomputed aggregates.
type Engine struct {
	db      *gorm.DB
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewEngine(db *gorm.DB, log *logger.Logger, m *metrics.Metrics) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{db: db, log: log.With("component", "aggregates"), metrics: m}
}

// RecomputeCaseBids rewrites bid_count and average_bid of one case post.
func (e *Engine) RecomputeCaseBids(ctx context.Context, caseID uuid.UUID) error {
	bids, err := store.New[models.Bid](e.db).FindMany(ctx, store.Filter{"case_post_id": caseID})
	if err != nil {
		return fmt.Errorf("scan bids: %w", err)
	}
	amounts := make([]int, 0, len(bids))
	for _, b := range bids {
		amounts = append(amounts, b.Amount)
	}
	count, avg := BidStats(amounts)

	_, err = store.New[models.CasePost](e.db).UpdateWhere(ctx, store.Filter{"id": caseID}, map[string]any{
		"bid_count":   count,
		"average_bid": avg,
	})
	if err != nil {
		return fmt.Errorf("persist case bids: %w", err)
	}
	return nil
}

// RecomputeLawyerRatings rewrites ratings_quantity and ratings_average on the
// lawyer's profile. A lawyer without a profile is a no-op.
func (e *Engine) RecomputeLawyerRatings(ctx context.Context, lawyerID uuid.UUID) error {
	reviews, err := store.New[models.Review](e.db).FindMany(ctx, store.Filter{"lawyer_id": lawyerID})
	if err != nil {
		return fmt.Errorf("scan reviews: %w", err)
	}
	ratings := make([]int, 0, len(reviews))
	for _, r := range reviews {
		ratings = append(ratings, r.Rating)
	}
	count, avg := RatingStats(ratings)

	n, err := store.New[models.LawyerProfile](e.db).UpdateWhere(ctx, store.Filter{"user_id": lawyerID}, map[string]any{
		"ratings_quantity": count,
		"ratings_average":  avg,
	})
	if err != nil {
		return fmt.Errorf("persist lawyer ratings: %w", err)
	}
	if n == 0 {
		e.log.Debug("no profile to update", "lawyer_id", lawyerID.String(), "aggregate", AggregateLawyerRatings)
	}
	return nil
}

// RecomputeCompletedCases rewrites completed_cases on the lawyer's profile
// from the completed cases whose accepted bid belongs to the lawyer.
func (e *Engine) RecomputeCompletedCases(ctx context.Context, lawyerID uuid.UUID) error {
	var count int64
	err := e.db.WithContext(ctx).
		Model(&models.CasePost{}).
		Joins("JOIN bids ON bids.id = case_posts.accepted_bid_id").
		Where("case_posts.status = ? AND bids.lawyer_id = ?", models.CaseCompleted, lawyerID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("scan completed cases: %w", err)
	}
	_, err = store.New[models.LawyerProfile](e.db).UpdateWhere(ctx, store.Filter{"user_id": lawyerID}, map[string]any{
		"completed_cases": count,
	})
	if err != nil {
		return fmt.Errorf("persist completed cases: %w", err)
	}
	return nil
}

/* ============================ Best-effort hooks ========================= */

// AfterBidWrite recomputes the case's bid aggregates. Failures are logged
// and counted, never returned.
func (e *Engine) AfterBidWrite(ctx context.Context, caseID uuid.UUID) {
	err := e.RecomputeCaseBids(ctx, caseID)
	e.record(AggregateCaseBids, err, "case_id", caseID.String())
}

// AfterReviewWrite recomputes the lawyer's rating aggregates.
func (e *Engine) AfterReviewWrite(ctx context.Context, lawyerID uuid.UUID) {
	err := e.RecomputeLawyerRatings(ctx, lawyerID)
	e.record(AggregateLawyerRatings, err, "lawyer_id", lawyerID.String())
}

// AfterCaseCompleted recomputes the lawyer's completed case count.
func (e *Engine) AfterCaseCompleted(ctx context.Context, lawyerID uuid.UUID) {
	err := e.RecomputeCompletedCases(ctx, lawyerID)
	e.record(AggregateCompletedCases, err, "lawyer_id", lawyerID.String())
}

func (e *Engine) record(aggregate string, err error, kv ...interface{}) {
	e.metrics.RecordRecompute(aggregate, err)
	if err != nil {
		e.log.Error("aggregate recompute failed", append([]interface{}{"aggregate", aggregate, "error", err}, kv...)...)
	}
}
