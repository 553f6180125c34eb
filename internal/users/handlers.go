package users

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bids-backend/internal/access"
	"github.com/aldoetobex/legal-bids-backend/internal/aggregates"
	"github.com/aldoetobex/legal-bids-backend/internal/auth"
	"github.com/aldoetobex/legal-bids-backend/internal/store"
	"github.com/aldoetobex/legal-bids-backend/pkg/logger"
	"github.com/aldoetobex/legal-bids-backend/pkg/models"
	"github.com/aldoetobex/legal-bids-backend/pkg/utils"
)

// PublicUser is what any authenticated user may see about another user.
type PublicUser struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

type Handler struct {
	db    *gorm.DB
	users *store.Repo[models.User]
	agg   *aggregates.Engine
	log   *logger.Logger
}

func NewHandler(db *gorm.DB, agg *aggregates.Engine, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{db: db, users: store.New[models.User](db), agg: agg, log: log}
}

// List godoc
// @Summary      List users (admin)
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        role      query string false "client|lawyer|admin"
// @Success      200  {object}  utils.Page[models.User]
// @Failure      403  {object}  models.ErrorResponse
// @Router       /users [get]
func (h *Handler) List(c *fiber.Ctx) error {
	page, size := utils.ParsePage(c)
	f := store.Filter{}
	switch role := models.Role(c.Query("role")); role {
	case "":
	case models.RoleClient, models.RoleLawyer, models.RoleAdmin:
		f["role"] = role
	default:
		return fiber.NewError(fiber.StatusBadRequest, "invalid role filter")
	}

	ctx := c.UserContext()
	total, err := h.users.Count(ctx, f)
	if err != nil {
		return err
	}
	rows, err := h.users.FindMany(ctx, f, store.OrderBy("created_at DESC"), store.Page(page, size))
	if err != nil {
		return err
	}
	return c.JSON(utils.NewPage(page, size, total, rows))
}

// Get godoc
// @Summary      Public user
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "user id (uuid)"
// @Success      200  {object}  PublicUser
// @Failure      404  {object}  models.ErrorResponse
// @Router       /users/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	u, err := h.users.FindByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(PublicUser{ID: u.ID, Name: u.Name, Role: u.Role, CreatedAt: u.CreatedAt})
}

// Delete godoc
// @Summary      Delete user (admin)
// @Description  Removes the user with their cases, bids, reviews and profile
// @Tags         users
// @Security     BearerAuth
// @Param        id   path string true "user id (uuid)"
// @Success      204
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /users/{id} [delete]
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
	target, err := h.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := access.CanDeleteUser(a, target.ID); err != nil {
		return err
	}

	var fx effects
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		fx, err = purgeUser(ctx, tx, target, a.ID)
		return err
	})
	if err != nil {
		return err
	}

	// Aggregates depend on rows that are gone now.
	for _, caseID := range fx.cases {
		h.agg.AfterBidWrite(ctx, caseID)
	}
	for _, lawyerID := range fx.lawyers {
		h.agg.AfterReviewWrite(ctx, lawyerID)
		h.agg.AfterCaseCompleted(ctx, lawyerID)
	}
	h.log.Info("user deleted", "user_id", target.ID.String(), "role", target.Role, "actor_id", a.ID.String())
	return c.SendStatus(fiber.StatusNoContent)
}

// effects lists aggregates touched by a purge.
type effects struct {
	cases   []uuid.UUID
	lawyers []uuid.UUID
}

// purgeUser deletes the user and every row owned by them inside tx.
// In-progress cases that had accepted the lawyer's bid are reopened.
func purgeUser(ctx context.Context, tx *gorm.DB, u *models.User, actorID uuid.UUID) (effects, error) {
	var fx effects
	bids := store.New[models.Bid](tx)
	reviews := store.New[models.Review](tx)
	cases := store.New[models.CasePost](tx)

	switch u.Role {
	case models.RoleLawyer:
		// Cases keep existing; they only lose this lawyer's bids.
		if err := tx.Model(&models.Bid{}).Where("lawyer_id = ?", u.ID).
			Distinct().Pluck("case_post_id", &fx.cases).Error; err != nil {
			return fx, err
		}
		accepted := func() *gorm.DB {
			return tx.Model(&models.Bid{}).Select("id").Where("lawyer_id = ?", u.ID)
		}
		// Work in progress goes back to the marketplace.
		var reopened []uuid.UUID
		if err := tx.Model(&models.CasePost{}).
			Where("status = ? AND accepted_bid_id IN (?)", models.CaseInProgress, accepted()).
			Pluck("id", &reopened).Error; err != nil {
			return fx, err
		}
		if len(reopened) > 0 {
			if err := tx.Model(&models.CasePost{}).Where("id IN ?", reopened).
				Updates(map[string]any{"status": models.CaseOpen, "accepted_bid_id": nil}).Error; err != nil {
				return fx, err
			}
			for _, id := range reopened {
				if err := utils.LogCaseHistory(ctx, tx, id, actorID, "reopened",
					models.CaseInProgress, models.CaseOpen, "accepted lawyer deleted"); err != nil {
					return fx, err
				}
			}
		}
		if err := tx.Model(&models.CasePost{}).
			Where("accepted_bid_id IN (?)", accepted()).
			Update("accepted_bid_id", nil).Error; err != nil {
			return fx, err
		}
		if _, err := bids.DeleteWhere(ctx, store.Filter{"lawyer_id": u.ID}); err != nil {
			return fx, err
		}
		if _, err := reviews.DeleteWhere(ctx, store.Filter{"lawyer_id": u.ID}); err != nil {
			return fx, err
		}
		if _, err := store.New[models.LawyerProfile](tx).DeleteWhere(ctx, store.Filter{"user_id": u.ID}); err != nil {
			return fx, err
		}

	case models.RoleClient:
		// Lawyers who worked the client's cases lose reviews and completions.
		if err := tx.Model(&models.Review{}).Where("user_id = ?", u.ID).
			Distinct().Pluck("lawyer_id", &fx.lawyers).Error; err != nil {
			return fx, err
		}
		var worked []uuid.UUID
		if err := tx.Model(&models.CasePost{}).
			Joins("JOIN bids ON bids.id = case_posts.accepted_bid_id").
			Where("case_posts.client_id = ?", u.ID).
			Distinct().Pluck("bids.lawyer_id", &worked).Error; err != nil {
			return fx, err
		}
		fx.lawyers = union(fx.lawyers, worked)

		if err := tx.Where("case_post_id IN (?)", tx.Model(&models.CasePost{}).Select("id").Where("client_id = ?", u.ID)).
			Delete(&models.Bid{}).Error; err != nil {
			return fx, err
		}
		if _, err := reviews.DeleteWhere(ctx, store.Filter{"user_id": u.ID}); err != nil {
			return fx, err
		}
		if _, err := cases.DeleteWhere(ctx, store.Filter{"client_id": u.ID}); err != nil {
			return fx, err
		}
	}

	if err := store.New[models.User](tx).Delete(ctx, u.ID); err != nil {
		return fx, err
	}
	return fx, nil
}

func union(a, b []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(a)+len(b))
	out := make([]uuid.UUID, 0, len(a)+len(b))
	for _, id := range append(a, b...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
