package bids

import (
	"strings"

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

type Handler struct {
	db    *gorm.DB
	bids  *store.Repo[models.Bid]
	cases *store.Repo[models.CasePost]
	agg   *aggregates.Engine
	log   *logger.Logger
}

func NewHandler(db *gorm.DB, agg *aggregates.Engine, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		db:    db,
		bids:  store.New[models.Bid](db),
		cases: store.New[models.CasePost](db),
		agg:   agg,
		log:   log,
	}
}

// ===== DTOs =====

type DurationInput struct {
	Value int    `json:"value" validate:"gte=1,lte=1000"`
	Unit  string `json:"unit" validate:"required,durationunit"`
}

type CreateBidRequest struct {
	CasePostID string        `json:"case_post_id" validate:"required,uuid"`
	Amount     int           `json:"amount" validate:"gte=0,lte=1000000000"`
	Message    string        `json:"message" validate:"max=2000"`
	Duration   DurationInput `json:"estimated_duration"`
}

// UpdateBidRequest is a partial update; nil fields are left alone.
type UpdateBidRequest struct {
	Amount   *int           `json:"amount" validate:"omitempty,gte=0,lte=1000000000"`
	Message  *string        `json:"message" validate:"omitempty,max=2000"`
	Duration *DurationInput `json:"estimated_duration"`
}

// =====================================
// POST /api/bids (lawyer)
// =====================================

// Create godoc
// @Summary      Submit bid
// @Description  Lawyer bids on an open case; one bid per lawyer and case
// @Tags         bids
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateBidRequest  true  "Bid payload"
// @Success      201  {object}  models.Bid
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse  "ONLY_LAWYERS_CAN_BID"
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "DUPLICATE_BID"
// @Router       /bids [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return err
	}
	if !a.IsLawyer() {
		return apperr.ErrOnlyLawyersCanBid
	}

	var in CreateBidRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.CasePostID = strings.TrimSpace(in.CasePostID)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	caseID := uuid.MustParse(in.CasePostID)

	ctx := c.UserContext()
	// Lawyers only see open cases, so a closed one is simply not found.
	if _, err := h.cases.FindByID(ctx, caseID, access.CaseScope(a)); err != nil {
		return err
	}
	if err := access.CheckBidCreate(ctx, h.db, a, caseID); err != nil {
		return err
	}

	b := models.Bid{
		CasePostID: caseID,
		LawyerID:   a.ID,
		Amount:     in.Amount,
		Message:    strings.TrimSpace(in.Message),
		Status:     models.BidPending,
		Duration:   models.EstimatedDuration{Value: in.Duration.Value, Unit: models.DurationUnit(in.Duration.Unit)},
	}
	if err := h.bids.Insert(ctx, &b); err != nil {
		// Lost a race with a concurrent insert of the same pair.
		if apperr.IsKind(err, apperr.KindDuplicateConstraint) {
			return apperr.ErrDuplicateBid
		}
		return err
	}
	h.agg.AfterBidWrite(ctx, caseID)
	return c.Status(fiber.StatusCreated).JSON(b)
}

// =====================================================
// GET /api/bids/mine?page=&pageSize=&status= (lawyer)
// =====================================================

// ListMine godoc
// @Summary      My bids
// @Tags         bids
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        status    query string false "pending|accepted|rejected|withdrawn"
// @Success      200  {object}  utils.Page[models.Bid]
// @Router       /bids/mine [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return err
	}
	page, size := utils.ParsePage(c)

	f := store.Filter{"lawyer_id": a.ID}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		switch models.BidStatus(status) {
		case models.BidPending, models.BidAccepted, models.BidRejected, models.BidWithdrawn:
			f["status"] = status
		default:
			return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
		}
	}

	ctx := c.UserContext()
	total, err := h.bids.Count(ctx, f)
	if err != nil {
		return err
	}
	rows, err := h.bids.FindMany(ctx, f, store.OrderBy("created_at DESC"), store.Page(page, size))
	if err != nil {
		return err
	}
	return c.JSON(utils.NewPage(page, size, total, rows))
}

// loadOwn resolves the bid then checks the lawyer owns it.
func (h *Handler) loadOwn(c *fiber.Ctx) (access.Actor, *models.Bid, error) {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return a, nil, err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return a, nil, err
	}
	b, err := h.bids.FindByID(c.UserContext(), id)
	if err != nil {
		return a, nil, err
	}
	if err := access.CanChangeBid(a, b); err != nil {
		return a, nil, err
	}
	return a, b, nil
}

// Update godoc
// @Summary      Update bid
// @Description  The bid's lawyer changes amount, message or duration while the bid is pending and the case open
// @Tags         bids
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string            true  "bid id (uuid)"
// @Param        payload  body  UpdateBidRequest  true  "Fields to change"
// @Success      200  {object}  models.Bid
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /bids/{id} [patch]
func (h *Handler) Update(c *fiber.Ctx) error {
	_, b, err := h.loadOwn(c)
	if err != nil {
		return err
	}

	var in UpdateBidRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	ctx := c.UserContext()
	if b.Status != models.BidPending {
		return apperr.WithMessage(apperr.ErrInvalid, "Bid is immutable once "+string(b.Status))
	}
	cs, err := h.cases.FindByID(ctx, b.CasePostID)
	if err != nil {
		return err
	}
	if cs.Status != models.CaseOpen {
		return apperr.WithMessage(apperr.ErrInvalid, "Case is not open")
	}

	patch := map[string]any{}
	if in.Amount != nil {
		patch["amount"] = *in.Amount
	}
	if in.Message != nil {
		patch["message"] = strings.TrimSpace(*in.Message)
	}
	if in.Duration != nil {
		patch["estimated_value"] = in.Duration.Value
		patch["estimated_unit"] = in.Duration.Unit
	}
	if len(patch) == 0 {
		return c.JSON(b)
	}

	updated, err := h.bids.Update(ctx, b.ID, patch)
	if err != nil {
		return err
	}
	if updated.Amount != b.Amount {
		h.agg.AfterBidWrite(ctx, b.CasePostID)
	}
	return c.JSON(updated)
}

// Withdraw godoc
// @Summary      Withdraw bid
// @Tags         bids
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "bid id (uuid)"
// @Success      200  {object}  models.Bid
// @Failure      400  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /bids/{id}/withdraw [post]
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	_, b, err := h.loadOwn(c)
	if err != nil {
		return err
	}
	if b.Status != models.BidPending {
		return apperr.WithMessage(apperr.ErrInvalid, "Only pending bids can be withdrawn")
	}
	updated, err := h.bids.Update(c.UserContext(), b.ID, map[string]any{"status": models.BidWithdrawn})
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

// Accept godoc
// @Summary      Accept bid
// @Description  Case owner or admin accepts a pending bid; other pending bids are rejected and the case moves to in-progress
// @Tags         bids
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "bid id (uuid)"
// @Success      200  {object}  models.Bid
// @Failure      400  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /bids/{id}/accept [post]
func (h *Handler) Accept(c *fiber.Ctx) error {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	// Atomic: single winner per case.
	var accepted *models.Bid
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1) Load bid and case (FOR UPDATE)
		var b models.Bid
		if err := store.ForUpdate(tx).First(&b, "id = ?", id).Error; err != nil {
			return store.Translate(err)
		}
		var cs models.CasePost
		if err := store.ForUpdate(tx).First(&cs, "id = ?", b.CasePostID).Error; err != nil {
			return store.Translate(err)
		}
		if err := access.CanModifyCase(a, &cs); err != nil {
			return err
		}
		if cs.Status != models.CaseOpen {
			return apperr.WithMessage(apperr.ErrInvalidTransition, "Case is not open")
		}
		if b.Status != models.BidPending {
			return apperr.WithMessage(apperr.ErrInvalid, "Only pending bids can be accepted")
		}

		bids := h.bids.WithTx(tx)
		// 2) Winner, then reject the other pending bids
		won, err := bids.Update(ctx, b.ID, map[string]any{"status": models.BidAccepted})
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Bid{}).
			Where("case_post_id = ? AND id <> ? AND status = ?", cs.ID, b.ID, models.BidPending).
			Update("status", models.BidRejected).Error; err != nil {
			return err
		}
		// 3) Case in progress
		if _, err := h.cases.WithTx(tx).Update(ctx, cs.ID, map[string]any{
			"status":          models.CaseInProgress,
			"accepted_bid_id": b.ID,
		}); err != nil {
			return err
		}
		if err := utils.LogCaseHistory(ctx, tx, cs.ID, a.ID, "bid_accepted", cs.Status, models.CaseInProgress, "bid "+b.ID.String()); err != nil {
			return err
		}

		accepted = won
		return nil
	})
	if err != nil {
		return err
	}
	h.log.Info("bid accepted", "bid_id", accepted.ID.String(), "case_id", accepted.CasePostID.String(), "actor_id", a.ID.String())
	return c.JSON(accepted)
}

// Delete godoc
// @Summary      Delete bid
// @Description  The bid's lawyer or an admin removes a bid that was not accepted
// @Tags         bids
// @Security     BearerAuth
// @Param        id   path string true "bid id (uuid)"
// @Success      204
// @Failure      400  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /bids/{id} [delete]
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
	b, err := h.bids.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := access.CanDeleteBid(a, b); err != nil {
		return err
	}
	if b.Status == models.BidAccepted {
		return apperr.WithMessage(apperr.ErrInvalid, "An accepted bid cannot be deleted")
	}
	if err := h.bids.Delete(ctx, b.ID); err != nil {
		return err
	}
	h.agg.AfterBidWrite(ctx, b.CasePostID)
	return c.SendStatus(fiber.StatusNoContent)
}
