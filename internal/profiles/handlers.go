package profiles

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bids-backend/internal/access"
	"github.com/aldoetobex/legal-bids-backend/internal/aggregates"
	"github.com/aldoetobex/legal-bids-backend/internal/auth"
	"github.com/aldoetobex/legal-bids-backend/internal/reviews"
	"github.com/aldoetobex/legal-bids-backend/internal/store"
	"github.com/aldoetobex/legal-bids-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bids-backend/pkg/logger"
	"github.com/aldoetobex/legal-bids-backend/pkg/models"
	"github.com/aldoetobex/legal-bids-backend/pkg/utils"
	"github.com/aldoetobex/legal-bids-backend/pkg/validation"
)

// recentReviews is how many reviews the profile detail embeds.
const recentReviews = 20

// ===== DTOs =====

type LicenseInput struct {
	Number       string `json:"number" validate:"omitempty,barnum"`
	Jurisdiction string `json:"jurisdiction" validate:"omitempty,jurisdiction"`
	Year         int    `json:"year" validate:"omitempty,gte=1900,lte=2100"`
}

// UpsertProfileRequest replaces the whole profile. Derived fields are never
// read from the payload.
type UpsertProfileRequest struct {
	Bio             string             `json:"bio" validate:"max=3000"`
	Specializations []string           `json:"specializations" validate:"max=20,dive,min=1,max=60"`
	ExperienceYears *int               `json:"experience_years" validate:"omitempty,gte=0,lte=80"`
	Education       []models.Education `json:"education" validate:"max=20,dive"`
	License         LicenseInput       `json:"license"`
	Languages       []string           `json:"languages" validate:"max=20,dive,min=2,max=40"`
	HourlyRate      int                `json:"hourly_rate" validate:"gte=0,lte=1000000000"`
	ConsultationFee int                `json:"consultation_fee" validate:"gte=0,lte=1000000000"`
	Availability    string             `json:"availability" validate:"omitempty,oneof=available busy unavailable"`
}

// ProfileView is a profile with its owner's name and, on detail, reviews.
type ProfileView struct {
	models.LawyerProfile
	Name    string               `json:"name"`
	Reviews []reviews.ReviewView `json:"reviews,omitempty"`
}

type Handler struct {
	db       *gorm.DB
	profiles *store.Repo[models.LawyerProfile]
	users    *store.Repo[models.User]
	agg      *aggregates.Engine
	log      *logger.Logger
}

func NewHandler(db *gorm.DB, agg *aggregates.Engine, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		db:       db,
		profiles: store.New[models.LawyerProfile](db),
		users:    store.New[models.User](db),
		agg:      agg,
		log:      log,
	}
}

// normalize trims, lower-cases and de-duplicates tags; never returns nil.
func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// UpsertMine godoc
// @Summary      Upsert my lawyer profile
// @Tags         profiles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  UpsertProfileRequest  true  "Profile"
// @Success      200  {object}  ProfileView
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse  "ONLY_LAWYERS_HAVE_PROFILES"
// @Router       /profiles/me [put]
func (h *Handler) UpsertMine(c *fiber.Ctx) error {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return err
	}
	return h.upsert(c, a, a.ID)
}

// UpsertFor godoc
// @Summary      Upsert a lawyer's profile (admin)
// @Tags         profiles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        userID   path  string                true  "lawyer user id (uuid)"
// @Param        payload  body  UpsertProfileRequest  true  "Profile"
// @Success      200  {object}  ProfileView
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /profiles/{userID} [put]
func (h *Handler) UpsertFor(c *fiber.Ctx) error {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return err
	}
	target, err := utils.ParamUUID(c, "userID")
	if err != nil {
		return err
	}
	return h.upsert(c, a, target)
}

func (h *Handler) upsert(c *fiber.Ctx, a access.Actor, targetID uuid.UUID) error {
	ctx := c.UserContext()
	target, err := h.users.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := access.CheckProfileOwner(a, target); err != nil {
		return err
	}

	var in UpsertProfileRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	education := in.Education
	if education == nil {
		education = []models.Education{}
	}
	availability := models.Availability(in.Availability)
	if availability == "" {
		availability = models.Available
	}
	p := models.LawyerProfile{
		UserID:          target.ID,
		Bio:             strings.TrimSpace(in.Bio),
		Specializations: datatypes.JSONSlice[string](normalize(in.Specializations)),
		ExperienceYears: in.ExperienceYears,
		Education:       datatypes.JSONSlice[models.Education](education),
		License: models.License{
			Number:       strings.TrimSpace(in.License.Number),
			Jurisdiction: strings.ToUpper(strings.TrimSpace(in.License.Jurisdiction)),
			Year:         in.License.Year,
		},
		Languages:       datatypes.JSONSlice[string](normalize(in.Languages)),
		HourlyRate:      in.HourlyRate,
		ConsultationFee: in.ConsultationFee,
		Availability:    availability,
	}
	p.IsProfileComplete = access.ProfileComplete(&p)

	existing, err := h.profiles.FindOne(ctx, store.Filter{"user_id": target.ID})
	switch {
	case err == nil:
		saved, err := h.profiles.Update(ctx, existing.ID, map[string]any{
			"bio":                  p.Bio,
			"specializations":      p.Specializations,
			"experience_years":     p.ExperienceYears,
			"education":            p.Education,
			"license_number":       p.License.Number,
			"license_jurisdiction": p.License.Jurisdiction,
			"license_year":         p.License.Year,
			"languages":            p.Languages,
			"hourly_rate":          p.HourlyRate,
			"consultation_fee":     p.ConsultationFee,
			"availability":         p.Availability,
			"is_profile_complete":  p.IsProfileComplete,
		})
		if err != nil {
			return err
		}
		return c.JSON(ProfileView{LawyerProfile: *saved, Name: target.Name})

	case apperr.IsKind(err, apperr.KindNotFound):
		if err := h.profiles.Insert(ctx, &p); err != nil {
			return err
		}
		// Reviews and completions may predate the profile.
		h.agg.AfterReviewWrite(ctx, target.ID)
		h.agg.AfterCaseCompleted(ctx, target.ID)
		saved, err := h.profiles.FindByID(ctx, p.ID)
		if err != nil {
			return err
		}
		h.log.Info("lawyer profile created", "user_id", target.ID.String(), "actor_id", a.ID.String())
		return c.Status(fiber.StatusCreated).JSON(ProfileView{LawyerProfile: *saved, Name: target.Name})

	default:
		return err
	}
}

// Get godoc
// @Summary      Lawyer profile
// @Description  Profile with the lawyer's most recent reviews
// @Tags         profiles
// @Security     BearerAuth
// @Produce      json
// @Param        userID  path  string  true  "lawyer user id (uuid)"
// @Success      200  {object}  ProfileView
// @Failure      404  {object}  models.ErrorResponse
// @Router       /profiles/{userID} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	userID, err := utils.ParamUUID(c, "userID")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	p, err := h.profiles.FindOne(ctx, store.Filter{"user_id": userID})
	if err != nil {
		return err
	}
	u, err := h.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	rows, err := store.New[models.Review](h.db).FindMany(ctx, store.Filter{"lawyer_id": userID},
		store.OrderBy("created_at DESC"), store.Limit(recentReviews))
	if err != nil {
		return err
	}
	views, err := reviews.Views(ctx, h.db, rows)
	if err != nil {
		return err
	}
	return c.JSON(ProfileView{LawyerProfile: *p, Name: u.Name, Reviews: views})
}

// List godoc
// @Summary      Browse lawyer profiles
// @Tags         profiles
// @Security     BearerAuth
// @Produce      json
// @Param        specialization  query string false "specialization tag"
// @Param        availability    query string false "available|busy|unavailable"
// @Param        page            query int    false "page"
// @Param        pageSize        query int    false "pageSize"
// @Success      200  {object}  utils.Page[ProfileView]
// @Router       /profiles [get]
func (h *Handler) List(c *fiber.Ctx) error {
	page, size := utils.ParsePage(c)
	ctx := c.UserContext()

	f := store.Filter{}
	if av := strings.TrimSpace(c.Query("availability")); av != "" {
		switch models.Availability(av) {
		case models.Available, models.Busy, models.Unavailable:
			f["availability"] = av
		default:
			return fiber.NewError(fiber.StatusBadRequest, "invalid availability filter")
		}
	}
	var scopes []store.Scope
	if spec := c.Query("specialization"); strings.TrimSpace(spec) != "" {
		scopes = append(scopes, hasSpecialization(spec))
	}

	total, err := h.profiles.Count(ctx, f, scopes...)
	if err != nil {
		return err
	}
	rows, err := h.profiles.FindMany(ctx, f,
		store.WithScopes(scopes...),
		store.OrderBy("ratings_average DESC, ratings_quantity DESC, created_at ASC"),
		store.Page(page, size),
	)
	if err != nil {
		return err
	}
	items, err := h.withNames(ctx, rows)
	if err != nil {
		return err
	}
	return c.JSON(utils.NewPage(page, size, total, items))
}

// hasSpecialization matches a tag inside the JSON array column. The text
// cast works on both the JSONB (postgres) and JSON (sqlite) encodings.
func hasSpecialization(tag string) store.Scope {
	tag = strings.ToLower(strings.TrimSpace(tag))
	tag = strings.NewReplacer(`%`, "", `_`, "", `"`, "").Replace(tag)
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("CAST(lawyer_profiles.specializations AS TEXT) LIKE ?", `%"`+tag+`"%`)
	}
}

func (h *Handler) withNames(ctx context.Context, rows []models.LawyerProfile) ([]ProfileView, error) {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, p := range rows {
		ids = append(ids, p.UserID)
	}
	names := map[uuid.UUID]string{}
	if len(ids) > 0 {
		users, err := h.users.FindMany(ctx, store.Filter{"id": ids})
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			names[u.ID] = u.Name
		}
	}
	out := make([]ProfileView, 0, len(rows))
	for _, p := range rows {
		out = append(out, ProfileView{LawyerProfile: p, Name: names[p.UserID]})
	}
	return out, nil
}
