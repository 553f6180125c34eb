// @title           Legal Bids API
// @version         1.0
// @description     API for a legal marketplace: clients post cases, lawyers bid on them, clients accept a bid and review the lawyer afterwards.
// @contact.name    Aldo Rifki Putra
// @contact.email   aldoetobex@gmail.com
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/aldoetobex/legal-bids-backend/internal/aggregates"
	"github.com/aldoetobex/legal-bids-backend/internal/auth"
	"github.com/aldoetobex/legal-bids-backend/internal/bids"
	"github.com/aldoetobex/legal-bids-backend/internal/cases"
	"github.com/aldoetobex/legal-bids-backend/internal/metrics"
	"github.com/aldoetobex/legal-bids-backend/internal/middleware"
	"github.com/aldoetobex/legal-bids-backend/internal/profiles"
	"github.com/aldoetobex/legal-bids-backend/internal/reviews"
	"github.com/aldoetobex/legal-bids-backend/internal/users"
	"github.com/aldoetobex/legal-bids-backend/pkg/config"
	"github.com/aldoetobex/legal-bids-backend/pkg/database"
	"github.com/aldoetobex/legal-bids-backend/pkg/logger"
	"github.com/aldoetobex/legal-bids-backend/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config: ", err)
	}

	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatal("logger: ", err)
	}
	defer lg.Sync()

	db, err := database.Init(cfg.Database, cfg.Env)
	if err != nil {
		lg.Fatal("database connection failed", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		lg.Fatal("migration failed", "error", err)
	}

	created, err := auth.EnsureAdmin(context.Background(), db, cfg.Admin)
	if err != nil {
		lg.Fatal("admin bootstrap failed", "error", err)
	}
	if created {
		lg.Info("admin account created", "email", cfg.Admin.Email)
	}

	m := metrics.New()
	agg := aggregates.NewEngine(db, lg, m)
	tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.TTL)

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.NewErrorHandler(lg),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(m.Middleware())
	app.Use(middleware.RequestLogger(lg))

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/metrics", m.Handler())

	api := app.Group("/api")
	requireAuth := auth.RequireAuth(tokens)

	// Auth
	authH := auth.NewHandler(db, tokens, lg)
	api.Post("/signup", authH.Signup)
	api.Post("/login", authH.Login)
	api.Get("/me", requireAuth, authH.Me)
	api.Patch("/me", requireAuth, authH.UpdateMe)

	// Users
	userH := users.NewHandler(db, agg, lg)
	api.Get("/users", requireAuth, auth.RequireRole(models.RoleAdmin), userH.List)
	api.Get("/users/:id", requireAuth, userH.Get)
	api.Delete("/users/:id", requireAuth, auth.RequireRole(models.RoleAdmin), userH.Delete)

	// Cases; ownership and visibility are decided per request.
	caseH := cases.NewHandler(db, agg, lg)
	api.Post("/cases", requireAuth, caseH.Create)
	api.Get("/cases", requireAuth, caseH.List)
	api.Get("/cases/:id", requireAuth, caseH.Get)
	api.Patch("/cases/:id", requireAuth, caseH.Update)
	api.Delete("/cases/:id", requireAuth, caseH.Delete)
	api.Get("/cases/:id/bids", requireAuth, caseH.ListBids)

	// Bids
	bidH := bids.NewHandler(db, agg, lg)
	api.Post("/bids", requireAuth, bidH.Create)
	api.Get("/bids/mine", requireAuth, auth.RequireRole(models.RoleLawyer), bidH.ListMine)
	api.Patch("/bids/:id", requireAuth, bidH.Update)
	api.Post("/bids/:id/withdraw", requireAuth, bidH.Withdraw)
	api.Post("/bids/:id/accept", requireAuth, bidH.Accept)
	api.Delete("/bids/:id", requireAuth, bidH.Delete)

	// Reviews
	reviewH := reviews.NewHandler(db, agg, lg)
	api.Post("/reviews", requireAuth, reviewH.Create)
	api.Get("/lawyers/:id/reviews", requireAuth, reviewH.ListByLawyer)
	api.Patch("/reviews/:id", requireAuth, reviewH.Update)
	api.Delete("/reviews/:id", requireAuth, reviewH.Delete)

	// Profiles
	profileH := profiles.NewHandler(db, agg, lg)
	api.Put("/profiles/me", requireAuth, profileH.UpsertMine)
	api.Get("/profiles", requireAuth, profileH.List)
	api.Put("/profiles/:userID", requireAuth, profileH.UpsertFor)
	api.Get("/profiles/:userID", requireAuth, profileH.Get)

	go func() {
		addr := ":" + cfg.Server.Port
		lg.Info("server listening", "addr", addr, "env", cfg.Env)
		if err := app.Listen(addr); err != nil {
			lg.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		lg.Error("shutdown failed", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
