package reviews

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bids-backend/internal/access"
	"github.com/aldoetobex/legal-bids-backend/internal/aggregates"
	"github.com/aldoetobex/legal-bids-backend/internal/auth"
	"github.com/aldoetobex/legal-bids-backend/internal/store"
	"github.com/aldoetobex/legal-bids-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bids-backend/pkg/logger"
	"github.com/aldoetobex/legal-bids-backend/pkg/models"
	"github.com/aldoetobex/legal-bids-backend/pkg/utils"
	"github.com/aldoetobex/legal-bids-backend/pkg/validation"
)

// ===== DTOs =====

type CreateReviewRequest struct {
	LawyerID string `json:"lawyer_id" validate:"required,uuid"`
	// Optional; defaults to the most recent completed case with the lawyer.
	CasePostID  string `json:"case_post_id" validate:"omitempty,uuid"`
	Rating      int    `json:"rating" validate:"required,gte=1,lte=5"`
	Title       string `json:"title" validate:"max=100"`
	Comment     string `json:"comment" validate:"max=1000"`
	IsAnonymous bool   `json:"is_anonymous"`
}

type UpdateReviewRequest struct {
	Rating      *int    `json:"rating" validate:"omitempty,gte=1,lte=5"`
	Title       *string `json:"title" validate:"omitempty,max=100"`
	Comment     *string `json:"comment" validate:"omitempty,max=1000"`
	IsAnonymous *bool   `json:"is_anonymous"`
}

// ReviewView hides the reviewer of anonymous reviews.
type ReviewView struct {
	ID           uuid.UUID  `json:"id"`
	LawyerID     uuid.UUID  `json:"lawyer_id"`
	CasePostID   uuid.UUID  `json:"case_post_id"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	ReviewerName string     `json:"reviewer_name,omitempty"`
	Rating       int        `json:"rating"`
	Title        string     `json:"title"`
	Comment      string     `json:"comment"`
	IsAnonymous  bool       `json:"is_anonymous"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Views joins reviewer names onto rows with one extra IN (?) query.
func Views(ctx context.Context, db *gorm.DB, rows []models.Review) ([]ReviewView, error) {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		if !r.IsAnonymous {
			ids = append(ids, r.UserID)
		}
	}
	names := map[uuid.UUID]string{}
	if len(ids) > 0 {
		users, err := store.New[models.User](db).FindMany(ctx, store.Filter{"id": ids})
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			names[u.ID] = u.Name
		}
	}

	out := make([]ReviewView, 0, len(rows))
	for _, r := range rows {
		v := ReviewView{
			ID:          r.ID,
			LawyerID:    r.LawyerID,
			CasePostID:  r.CasePostID,
			Rating:      r.Rating,
			Title:       r.Title,
			Comment:     r.Comment,
			IsAnonymous: r.IsAnonymous,
			CreatedAt:   r.CreatedAt,
		}
		if !r.IsAnonymous {
			uid := r.UserID
			v.UserID = &uid
			v.ReviewerName = names[r.UserID]
		}
		out = append(out, v)
	}
	return out, nil
}

type Handler struct {
	db      *gorm.DB
	reviews *store.Repo[models.Review]
	agg     *aggregates.Engine
	log     *logger.Logger
}

func NewHandler(db *gorm.DB, agg *aggregates.Engine, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{db: db, reviews: store.New[models.Review](db), agg: agg, log: log}
}

// Create godoc
// @Summary      Review a lawyer
// @Description  Client reviews a lawyer who completed one of their cases
// @Tags         reviews
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateReviewRequest  true  "Review payload"
// @Success      201  {object}  models.Review
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse  "ONLY_CLIENTS_CAN_REVIEW | NO_COMPLETED_ENGAGEMENT"
// @Failure      409  {object}  models.ErrorResponse  "DUPLICATE_REVIEW"
// @Router       /reviews [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return err
	}
	if !a.IsClient() {
		return apperr.ErrOnlyClientsCanReview
	}

	var in CreateReviewRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.LawyerID = strings.TrimSpace(in.LawyerID)
	in.CasePostID = strings.TrimSpace(in.CasePostID)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	lawyerID := uuid.MustParse(in.LawyerID)
	var caseID *uuid.UUID
	if in.CasePostID != "" {
		id := uuid.MustParse(in.CasePostID)
		caseID = &id
	}

	ctx := c.UserContext()
	cs, err := access.CheckReviewCreate(ctx, h.db, a, lawyerID, caseID)
	if err != nil {
		return err
	}

	r := models.Review{
		UserID:      a.ID,
		LawyerID:    lawyerID,
		CasePostID:  cs.ID,
		Rating:      in.Rating,
		Title:       strings.TrimSpace(in.Title),
		Comment:     strings.TrimSpace(in.Comment),
		IsAnonymous: in.IsAnonymous,
	}
	if err := h.reviews.Insert(ctx, &r); err != nil {
		if apperr.IsKind(err, apperr.KindDuplicateConstraint) {
			return apperr.ErrDuplicateReview
		}
		return err
	}
	h.agg.AfterReviewWrite(ctx, lawyerID)
	return c.Status(fiber.StatusCreated).JSON(r)
}

// ListByLawyer godoc
// @Summary      Reviews of a lawyer
// @Tags         reviews
// @Security     BearerAuth
// @Produce      json
// @Param        id        path  string true  "lawyer user id (uuid)"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  utils.Page[ReviewView]
// @Router       /lawyers/{id}/reviews [get]
func (h *Handler) ListByLawyer(c *fiber.Ctx) error {
	lawyerID, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	page, size := utils.ParsePage(c)
	ctx := c.UserContext()

	f := store.Filter{"lawyer_id": lawyerID}
	total, err := h.reviews.Count(ctx, f)
	if err != nil {
		return err
	}
	rows, err := h.reviews.FindMany(ctx, f, store.OrderBy("created_at DESC"), store.Page(page, size))
	if err != nil {
		return err
	}
	items, err := Views(ctx, h.db, rows)
	if err != nil {
		return err
	}
	return c.JSON(utils.NewPage(page, size, total, items))
}

// Update godoc
// @Summary      Update review
// @Tags         reviews
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string               true  "review id (uuid)"
// @Param        payload  body  UpdateReviewRequest  true  "Fields to change"
// @Success      200  {object}  models.Review
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /reviews/{id} [patch]
func (h *Handler) Update(c *fiber.Ctx) error {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	r, err := h.reviews.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := access.CanChangeReview(a, r); err != nil {
		return err
	}

	var in UpdateReviewRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	patch := map[string]any{}
	if in.Rating != nil {
		patch["rating"] = *in.Rating
	}
	if in.Title != nil {
		patch["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Comment != nil {
		patch["comment"] = strings.TrimSpace(*in.Comment)
	}
	if in.IsAnonymous != nil {
		patch["is_anonymous"] = *in.IsAnonymous
	}
	if len(patch) == 0 {
		return c.JSON(r)
	}

	updated, err := h.reviews.Update(ctx, r.ID, patch)
	if err != nil {
		return err
	}
	if updated.Rating != r.Rating {
		h.agg.AfterReviewWrite(ctx, r.LawyerID)
	}
	return c.JSON(updated)
}

// Delete godoc
// @Summary      Delete review
// @Tags         reviews
// @Security     BearerAuth
// @Param        id   path string true "review id (uuid)"
// @Success      204
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /reviews/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	r, err := h.reviews.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := access.CanDeleteReview(a, r); err != nil {
		return err
	}
	if err := h.reviews.Delete(ctx, r.ID); err != nil {
		return err
	}
	h.agg.AfterReviewWrite(ctx, r.LawyerID)
	return c.SendStatus(fiber.StatusNoContent)
}
