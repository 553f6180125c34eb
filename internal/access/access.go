// Package access holds the authorization rules that gate every write and the
// role-scoped read filter shared by all case queries.
package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bids-backend/internal/store"
	"github.com/aldoetobex/legal-bids-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bids-backend/pkg/models"
)

// Actor is the authenticated identity performing a request.
type Actor struct {
	ID   uuid.UUID
	Role models.Role
}

func (a Actor) IsAdmin() bool  { return a.Role == models.RoleAdmin }
func (a Actor) IsClient() bool { return a.Role == models.RoleClient }
func (a Actor) IsLawyer() bool { return a.Role == models.RoleLawyer }

/* ============================== Case posts ============================== */

// CaseScope restricts case queries to what the actor may see:
// clients see their own cases, lawyers see open cases, admins see everything.
// Unknown roles see nothing.
func CaseScope(a Actor) store.Scope {
	return func(db *gorm.DB) *gorm.DB {
		switch a.Role {
		case models.RoleAdmin:
			return db
		case models.RoleClient:
			return db.Where("case_posts.client_id = ?", a.ID)
		case models.RoleLawyer:
			return db.Where("case_posts.status = ?", models.CaseOpen)
		default:
			return db.Where("1 = 0")
		}
	}
}

// CanCreateCase permits only clients.
func CanCreateCase(a Actor) error {
	if !a.IsClient() {
		return apperr.WithMessage(apperr.ErrForbidden, "Only clients can post cases")
	}
	return nil
}

// CanModifyCase permits the owner or an admin. The caller resolves the case
// first so a missing target reports NotFound before any permission check.
func CanModifyCase(a Actor, cs *models.CasePost) error {
	if cs == nil {
		return apperr.ErrNotFound
	}
	if a.IsAdmin() || cs.ClientID == a.ID {
		return nil
	}
	return apperr.ErrForbidden
}

var caseTransitions = map[models.CaseStatus][]models.CaseStatus{
	models.CaseOpen:       {models.CaseCancelled},
	models.CaseInProgress: {models.CaseCompleted, models.CaseCancelled},
}

// CheckCaseTransition validates a manual status change. Moving a case to
// in-progress only happens by accepting a bid.
func CheckCaseTransition(cs *models.CasePost, to models.CaseStatus) error {
	if cs.Status == to {
		return nil
	}
	for _, s := range caseTransitions[cs.Status] {
		if s == to {
			if to == models.CaseCompleted && cs.AcceptedBidID == nil {
				return apperr.WithMessage(apperr.ErrInvalidTransition, "A case needs an accepted bid before it can be completed")
			}
			return nil
		}
	}
	return apperr.WithMessage(apperr.ErrInvalidTransition,
		"Cannot move case from "+string(cs.Status)+" to "+string(to))
}

/* ================================= Bids ================================= */

// CheckBidCreate enforces the lawyer role and one bid per (lawyer, case).
func CheckBidCreate(ctx context.Context, db *gorm.DB, a Actor, caseID uuid.UUID) error {
	if !a.IsLawyer() {
		return apperr.ErrOnlyLawyersCanBid
	}
	n, err := store.New[models.Bid](db).Count(ctx, store.Filter{"lawyer_id": a.ID, "case_post_id": caseID})
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.ErrDuplicateBid
	}
	return nil
}

// CanChangeBid permits the bid's own lawyer.
func CanChangeBid(a Actor, b *models.Bid) error {
	if b.LawyerID != a.ID {
		return apperr.ErrForbidden
	}
	return nil
}

// CanDeleteBid permits the bid's own lawyer or an admin.
func CanDeleteBid(a Actor, b *models.Bid) error {
	if a.IsAdmin() || b.LawyerID == a.ID {
		return nil
	}
	return apperr.ErrForbidden
}

/* =============================== Reviews ================================ */

// reviewedLast sorts engagements the client already reviewed after the rest.
const reviewedLast = `CASE WHEN EXISTS (
	SELECT 1 FROM reviews
	WHERE reviews.case_post_id = case_posts.id
	  AND reviews.user_id = case_posts.client_id
	  AND reviews.lawyer_id = bids.lawyer_id
) THEN 1 ELSE 0 END`

// FindCompletedEngagement returns the completed case of clientID whose
// accepted bid belongs to lawyerID. When caseID is non-nil only that case
// qualifies; otherwise the most recently updated one the client has not
// reviewed yet is chosen, falling back to the most recent reviewed one.
func FindCompletedEngagement(ctx context.Context, db *gorm.DB, clientID, lawyerID uuid.UUID, caseID *uuid.UUID) (*models.CasePost, error) {
	q := db.WithContext(ctx).
		Model(&models.CasePost{}).
		Joins("JOIN bids ON bids.id = case_posts.accepted_bid_id").
		Where("case_posts.client_id = ? AND case_posts.status = ? AND bids.lawyer_id = ?",
			clientID, models.CaseCompleted, lawyerID)
	if caseID != nil {
		q = q.Where("case_posts.id = ?", *caseID)
	}
	var cs models.CasePost
	err := q.Order(reviewedLast).Order("case_posts.updated_at DESC").First(&cs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNoCompletedEngagement
	}
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// CheckReviewCreate enforces the client role, a completed engagement with the
// lawyer and one review per (user, lawyer, case). It returns the case the
// review attaches to.
func CheckReviewCreate(ctx context.Context, db *gorm.DB, a Actor, lawyerID uuid.UUID, caseID *uuid.UUID) (*models.CasePost, error) {
	if !a.IsClient() {
		return nil, apperr.ErrOnlyClientsCanReview
	}
	cs, err := FindCompletedEngagement(ctx, db, a.ID, lawyerID, caseID)
	if err != nil {
		return nil, err
	}
	n, err := store.New[models.Review](db).Count(ctx, store.Filter{
		"user_id": a.ID, "lawyer_id": lawyerID, "case_post_id": cs.ID,
	})
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, apperr.ErrDuplicateReview
	}
	return cs, nil
}

// CanChangeReview permits only the reviewer.
func CanChangeReview(a Actor, r *models.Review) error {
	if r.UserID != a.ID {
		return apperr.ErrForbidden
	}
	return nil
}

// CanDeleteReview permits the reviewer or an admin.
func CanDeleteReview(a Actor, r *models.Review) error {
	if a.IsAdmin() || r.UserID == a.ID {
		return nil
	}
	return apperr.ErrForbidden
}

/* =========================== Lawyer profiles ============================ */

// CheckProfileOwner requires the profile's target user to be a lawyer. A
// non-admin actor may only write their own profile.
func CheckProfileOwner(a Actor, target *models.User) error {
	if !a.IsAdmin() && a.ID != target.ID {
		return apperr.ErrForbidden
	}
	if target.Role != models.RoleLawyer {
		return apperr.ErrOnlyLawyersHaveProfiles
	}
	return nil
}

// ProfileComplete reports whether every field a client relies on is filled.
func ProfileComplete(p *models.LawyerProfile) bool {
	return p.Bio != "" &&
		len(p.Specializations) > 0 &&
		p.ExperienceYears != nil &&
		len(p.Education) > 0 &&
		len(p.Languages) > 0
}

/* ================================= Users ================================ */

// CanDeleteUser permits admins, never on their own account.
func CanDeleteUser(a Actor, target uuid.UUID) error {
	if !a.IsAdmin() {
		return apperr.ErrForbidden
	}
	if a.ID == target {
		return apperr.WithMessage(apperr.ErrForbidden, "Admins cannot delete their own account")
	}
	return nil
}
