package cases

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
	"github.com/aldoetobex/legal-bids-backend/pkg/sanitize"
	"github.com/aldoetobex/legal-bids-backend/pkg/utils"
	"github.com/aldoetobex/legal-bids-backend/pkg/validation"
)

// ===== DTOs =====

type CreateCaseRequest struct {
	Title       string     `json:"title" validate:"required,max=120"`
	Category    string     `json:"category" validate:"required,category"`
	Description string     `json:"description" validate:"max=5000"`
	Budget      int        `json:"budget" validate:"gte=0,lte=1000000000"`
	Deadline    *time.Time `json:"deadline"`
	Location    string     `json:"location" validate:"max=120"`
}

// UpdateCaseRequest is a partial update; nil fields are left alone.
type UpdateCaseRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=120"`
	Category    *string    `json:"category" validate:"omitempty,category"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Budget      *int       `json:"budget" validate:"omitempty,gte=0,lte=1000000000"`
	Deadline    *time.Time `json:"deadline"`
	Location    *string    `json:"location" validate:"omitempty,max=120"`
	Status      *string    `json:"status" validate:"omitempty,oneof=open in-progress completed cancelled"`
	Reason      string     `json:"reason" validate:"max=500"`
}

// CaseView is a case as the requesting actor may see it. Lawyers get a
// redacted description and no client identity.
type CaseView struct {
	ID            uuid.UUID         `json:"id"`
	ClientID      *uuid.UUID        `json:"client_id,omitempty"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Preview       string            `json:"preview,omitempty"`
	Category      string            `json:"category"`
	Budget        int               `json:"budget"`
	Status        models.CaseStatus `json:"status"`
	AcceptedBidID *uuid.UUID        `json:"accepted_bid_id,omitempty"`
	Deadline      *time.Time        `json:"deadline,omitempty"`
	Location      string            `json:"location"`
	AverageBid    int               `json:"average_bid"`
	BidCount      int               `json:"bid_count"`
	HasMyBid      *bool             `json:"has_my_bid,omitempty"` // lawyers only; FE disables the bid button
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func viewFor(a access.Actor, cs *models.CasePost, bidded map[uuid.UUID]bool) CaseView {
	v := CaseView{
		ID:            cs.ID,
		Title:         cs.Title,
		Description:   cs.Description,
		Category:      cs.Category,
		Budget:        cs.Budget,
		Status:        cs.Status,
		AcceptedBidID: cs.AcceptedBidID,
		Deadline:      cs.Deadline,
		Location:      cs.Location,
		AverageBid:    cs.AverageBid,
		BidCount:      cs.BidCount,
		CreatedAt:     cs.CreatedAt,
		UpdatedAt:     cs.UpdatedAt,
	}
	if a.IsLawyer() {
		v.Description = sanitize.RedactPII(cs.Description)
		v.Preview = sanitize.Summary(v.Description, 240)
		has := bidded[cs.ID]
		v.HasMyBid = &has
		return v
	}
	clientID := cs.ClientID
	v.ClientID = &clientID
	return v
}

type Handler struct {
	db    *gorm.DB
	cases *store.Repo[models.CasePost]
	bids  *store.Repo[models.Bid]
	agg   *aggregates.Engine
	log   *logger.Logger
}

func NewHandler(db *gorm.DB, agg *aggregates.Engine, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		db:    db,
		cases: store.New[models.CasePost](db),
		bids:  store.New[models.Bid](db),
		agg:   agg,
		log:   log,
	}
}

// Create Case godoc
// @Summary      Create case
// @Description  Client creates a new case
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateCaseRequest  true  "Case payload"
// @Success      201  {object}  CaseView
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /cases [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return err
	}
	if err := access.CanCreateCase(a); err != nil {
		return err
	}

	var in CreateCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	// Validation (Laravel-style response)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	cs := models.CasePost{
		ClientID:    a.ID,
		Title:       strings.TrimSpace(in.Title),
		Category:    strings.ToLower(strings.TrimSpace(in.Category)),
		Description: strings.TrimSpace(in.Description),
		Budget:      in.Budget,
		Deadline:    in.Deadline,
		Location:    strings.TrimSpace(in.Location),
		Status:      models.CaseOpen,
	}
	ctx := c.UserContext()
	if err := h.cases.Insert(ctx, &cs); err != nil {
		return err
	}
	_ = utils.LogCaseHistory(ctx, h.db, cs.ID, a.ID, "created", "", models.CaseOpen, "")
	return c.Status(fiber.StatusCreated).JSON(viewFor(a, &cs, nil))
}

// List Cases godoc
// @Summary      List cases
// @Description  Clients see their own cases, lawyers see open cases (anonymized), admins see all
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        category  query string false "category"
// @Param        status    query string false "status"
// @Success      200  {object}  utils.Page[CaseView]
// @Failure      401  {object}  models.ErrorResponse
// @Router       /cases [get]
func (h *Handler) List(c *fiber.Ctx) error {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return err
	}
	page, size := utils.ParsePage(c)

	f := store.Filter{}
	if category := strings.ToLower(strings.TrimSpace(c.Query("category"))); category != "" {
		f["category"] = category
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		switch models.CaseStatus(status) {
		case models.CaseOpen, models.CaseInProgress, models.CaseCompleted, models.CaseCancelled:
			f["status"] = status
		default:
			return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
		}
	}

	ctx := c.UserContext()
	scope := access.CaseScope(a)
	total, err := h.cases.Count(ctx, f, scope)
	if err != nil {
		return err
	}
	list, err := h.cases.FindMany(ctx, f,
		store.WithScopes(scope),
		store.OrderBy("created_at DESC"),
		store.Page(page, size),
	)
	if err != nil {
		return err
	}

	bidded, err := h.biddedBy(ctx, a, list)
	if err != nil {
		return err
	}
	items := make([]CaseView, 0, len(list))
	for i := range list {
		items = append(items, viewFor(a, &list[i], bidded))
	}
	return c.JSON(utils.NewPage(page, size, total, items))
}

// biddedBy returns which of the listed cases the lawyer already bid on,
// in one IN (?) query for the page to avoid N+1.
func (h *Handler) biddedBy(ctx context.Context, a access.Actor, list []models.CasePost) (map[uuid.UUID]bool, error) {
	out := map[uuid.UUID]bool{}
	if !a.IsLawyer() || len(list) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, 0, len(list))
	for _, cs := range list {
		ids = append(ids, cs.ID)
	}
	mine, err := h.bids.FindMany(ctx, store.Filter{"lawyer_id": a.ID, "case_post_id": ids})
	if err != nil {
		return nil, err
	}
	for _, b := range mine {
		out[b.CasePostID] = true
	}
	return out, nil
}

// Get case detail
// @Summary      Case detail
// @Description  Scoped like the list; a case outside the caller's scope is 404
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {object}  CaseView
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	cs, err := h.cases.FindByID(ctx, id, access.CaseScope(a))
	if err != nil {
		return err
	}
	bidded, err := h.biddedBy(ctx, a, []models.CasePost{*cs})
	if err != nil {
		return err
	}
	return c.JSON(viewFor(a, cs, bidded))
}

// Update case
// @Summary      Update case
// @Description  Owner or admin edits fields or moves the status (open→cancelled, in-progress→completed|cancelled)
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string             true  "case id (uuid)"
// @Param        payload  body  UpdateCaseRequest  true  "Fields to change"
// @Success      200  {object}  CaseView
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [patch]
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
	cs, err := h.cases.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := access.CanModifyCase(a, cs); err != nil {
		return err
	}

	var in UpdateCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	patch := map[string]any{}
	if in.Title != nil {
		patch["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Category != nil {
		patch["category"] = strings.ToLower(strings.TrimSpace(*in.Category))
	}
	if in.Description != nil {
		patch["description"] = strings.TrimSpace(*in.Description)
	}
	if in.Budget != nil {
		patch["budget"] = *in.Budget
	}
	if in.Deadline != nil {
		patch["deadline"] = *in.Deadline
	}
	if in.Location != nil {
		patch["location"] = strings.TrimSpace(*in.Location)
	}
	if len(patch) > 0 && (cs.Status == models.CaseCompleted || cs.Status == models.CaseCancelled) {
		return apperr.WithMessage(apperr.ErrInvalid, "A closed case cannot be edited")
	}

	from := cs.Status
	to := from
	if in.Status != nil {
		to = models.CaseStatus(*in.Status)
		if err := access.CheckCaseTransition(cs, to); err != nil {
			return err
		}
		if to != from {
			patch["status"] = to
		}
	}
	if len(patch) == 0 {
		return c.JSON(viewFor(a, cs, nil))
	}

	updated, err := h.cases.Update(ctx, cs.ID, patch)
	if err != nil {
		return err
	}
	if to != from {
		_ = utils.LogCaseHistory(ctx, h.db, cs.ID, a.ID, "status_changed", from, to, strings.TrimSpace(in.Reason))
		if to == models.CaseCompleted {
			h.afterCompleted(ctx, updated)
		}
	}
	return c.JSON(viewFor(a, updated, nil))
}

func (h *Handler) afterCompleted(ctx context.Context, cs *models.CasePost) {
	if cs.AcceptedBidID == nil {
		return
	}
	bid, err := h.bids.FindByID(ctx, *cs.AcceptedBidID)
	if err != nil {
		h.log.Warn("accepted bid missing on completed case", "case_id", cs.ID.String(), "error", err)
		return
	}
	h.agg.AfterCaseCompleted(ctx, bid.LawyerID)
}

// Delete case
// @Summary      Delete case
// @Description  Owner or admin removes a case together with its bids and reviews
// @Tags         cases
// @Security     BearerAuth
// @Param        id   path string true "case id (uuid)"
// @Success      204
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [delete]
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
	cs, err := h.cases.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := access.CanModifyCase(a, cs); err != nil {
		return err
	}

	// Lawyers whose ratings or completions referenced this case.
	var lawyers []uuid.UUID
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Review{}).Where("case_post_id = ?", cs.ID).
			Distinct().Pluck("lawyer_id", &lawyers).Error; err != nil {
			return err
		}
		if cs.AcceptedBidID != nil {
			var accepted models.Bid
			if err := tx.First(&accepted, "id = ?", *cs.AcceptedBidID).Error; err == nil {
				lawyers = append(lawyers, accepted.LawyerID)
			}
		}
		if _, err := h.bids.WithTx(tx).DeleteWhere(ctx, store.Filter{"case_post_id": cs.ID}); err != nil {
			return err
		}
		if _, err := store.New[models.Review](tx).DeleteWhere(ctx, store.Filter{"case_post_id": cs.ID}); err != nil {
			return err
		}
		if err := h.cases.WithTx(tx).Delete(ctx, cs.ID); err != nil {
			return err
		}
		return utils.LogCaseHistory(ctx, tx, cs.ID, a.ID, "deleted", cs.Status, "", "")
	})
	if err != nil {
		return err
	}

	seen := map[uuid.UUID]bool{}
	for _, l := range lawyers {
		if seen[l] {
			continue
		}
		seen[l] = true
		h.agg.AfterReviewWrite(ctx, l)
		h.agg.AfterCaseCompleted(ctx, l)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// List bids on a case
// @Summary      Bids on a case
// @Description  Case owner or admin lists every bid on the case (paginated)
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id        path  string true  "case id (uuid)"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  utils.Page[models.Bid]
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/bids [get]
func (h *Handler) ListBids(c *fiber.Ctx) error {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	cs, err := h.cases.FindByID(ctx, id, access.CaseScope(a))
	if err != nil {
		return err
	}
	if err := access.CanModifyCase(a, cs); err != nil {
		return err
	}

	page, size := utils.ParsePage(c)
	f := store.Filter{"case_post_id": cs.ID}
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
