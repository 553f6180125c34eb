package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bids-backend/internal/store"
	"github.com/aldoetobex/legal-bids-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bids-backend/pkg/config"
	"github.com/aldoetobex/legal-bids-backend/pkg/logger"
	"github.com/aldoetobex/legal-bids-backend/pkg/models"
	"github.com/aldoetobex/legal-bids-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /signup. Admin accounts cannot be self-registered.
type SignupRequest struct {
	Role     string `json:"role" validate:"required,oneof=client lawyer"`
	Name     string `json:"name" validate:"required,min=2,max=80"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	// Optional for lawyers
	Jurisdiction string `json:"jurisdiction" validate:"omitempty,jurisdiction"`
	BarNumber    string `json:"bar_number" validate:"omitempty,barnum"`
}

// Request body for /login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
}

// Request body for PATCH /me
type UpdateMeRequest struct {
	Name string `json:"name" validate:"required,min=2,max=80"`
}

// Standard auth response
type AuthResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Profile response for /me
type UserProfileResponse struct {
	ID           uuid.UUID   `json:"id"`
	Email        string      `json:"email"`
	Role         models.Role `json:"role"`
	Name         string      `json:"name"`
	Jurisdiction string      `json:"jurisdiction"`
	BarNumber    string      `json:"bar_number"`
	CreatedAt    time.Time   `json:"created_at"`
}

func toProfile(u *models.User) UserProfileResponse {
	return UserProfileResponse{
		ID:           u.ID,
		Email:        u.Email,
		Role:         u.Role,
		Name:         u.Name,
		Jurisdiction: u.Jurisdiction,
		BarNumber:    u.BarNumber,
		CreatedAt:    u.CreatedAt,
	}
}

/* ============================== Handler ================================= */

type Handler struct {
	users  *store.Repo[models.User]
	tokens *Tokens
	log    *logger.Logger
}

func NewHandler(db *gorm.DB, tokens *Tokens, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{users: store.New[models.User](db), tokens: tokens, log: log}
}

/* =============================== Signup ================================= */

// @Summary      Sign up
// @Description  Register a new user (client or lawyer)
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  SignupRequest  true  "Signup payload"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "email already exists"
// @Router       /signup [post]
func (h *Handler) Signup(c *fiber.Ctx) error {
	var in SignupRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	// Normalize email
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	// Validate request (Laravel-like error shape)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	u := models.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         models.Role(in.Role),
		Name:         strings.TrimSpace(in.Name),
		Jurisdiction: strings.ToUpper(in.Jurisdiction),
		BarNumber:    in.BarNumber,
	}
	if err := h.users.Insert(c.UserContext(), &u); err != nil {
		if apperr.IsKind(err, apperr.KindDuplicateConstraint) {
			return apperr.ErrDuplicateEmail
		}
		return err
	}
	h.log.Info("user signed up", "user_id", u.ID.String(), "role", u.Role)

	token, err := h.tokens.Issue(u.ID.String(), string(u.Role))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(AuthResponse{Token: token, Role: string(u.Role)})
}

/* ================================ Login ================================= */

// @Summary      Login
// @Description  Authenticate and receive a JWT
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /login [post]
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	u, err := h.users.FindOne(c.UserContext(), store.Filter{"email": in.Email})
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return fiber.ErrUnauthorized
		}
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return fiber.ErrUnauthorized
	}

	token, err := h.tokens.Issue(u.ID.String(), string(u.Role))
	if err != nil {
		return err
	}
	return c.JSON(AuthResponse{Token: token, Role: string(u.Role)})
}

/* ================================= Me =================================== */

// @Summary      Get current user profile
// @Description  Return full profile of the authenticated user
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  UserProfileResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	a, err := ActorFrom(c)
	if err != nil {
		return err
	}
	u, err := h.users.FindByID(c.UserContext(), a.ID)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	return c.JSON(toProfile(u))
}

// @Summary      Update current user
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  UpdateMeRequest  true  "Fields to update"
// @Success      200  {object}  UserProfileResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /me [patch]
func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	a, err := ActorFrom(c)
	if err != nil {
		return err
	}
	var in UpdateMeRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Name = strings.TrimSpace(in.Name)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	u, err := h.users.Update(c.UserContext(), a.ID, map[string]any{"name": in.Name})
	if err != nil {
		return err
	}
	return c.JSON(toProfile(u))
}

/* ============================ Admin bootstrap =========================== */

// EnsureAdmin creates the configured admin account if it does not exist yet.
// An empty email disables bootstrapping.
func EnsureAdmin(ctx context.Context, db *gorm.DB, cfg config.AdminConfig) (bool, error) {
	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	if email == "" {
		return false, nil
	}
	if cfg.Password == "" {
		return false, errors.New("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}
	users := store.New[models.User](db)
	existing, err := users.FindOne(ctx, store.Filter{"email": email})
	switch {
	case err == nil:
		if existing.Role != models.RoleAdmin {
			return false, errors.New("ADMIN_EMAIL belongs to a non-admin account")
		}
		return false, nil
	case !apperr.IsKind(err, apperr.KindNotFound):
		return false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	u := models.User{Email: email, PasswordHash: string(hash), Role: models.RoleAdmin, Name: cfg.Name}
	if err := users.Insert(ctx, &u); err != nil {
		return false, err
	}
	return true, nil
}
