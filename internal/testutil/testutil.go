// Package testutil opens throwaway databases and seeds fixtures for handler
// and engine tests.
package testutil

import (
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/aldoetobex/legal-bids-backend/pkg/models"
)

// OpenDB opens a private in-memory SQLite database with every table migrated.
// The single connection keeps the in-memory database alive for the test and
// serialises access.
func OpenDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}

// InjectAuth sets the locals RequireAuth would set, without a real JWT.
func InjectAuth(userID uuid.UUID, role models.Role) fiber.Handler {
	id := userID.String()
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		c.Locals("role", string(role))
		return c.Next()
	}
}

/* ================================ Seeds ================================ */

func SeedUser(tb testing.TB, db *gorm.DB, role models.Role) *models.User {
	tb.Helper()
	id := uuid.New()
	u := &models.User{
		Base:         models.Base{ID: id},
		Email:        string(role) + "_" + id.String()[:8] + "@x.com",
		PasswordHash: "x",
		Role:         role,
		Name:         "User " + id.String()[:4],
	}
	if err := db.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedCase(tb testing.TB, db *gorm.DB, clientID uuid.UUID, status models.CaseStatus) *models.CasePost {
	tb.Helper()
	cs := &models.CasePost{
		ClientID:    clientID,
		Title:       "Tenancy dispute",
		Description: "Landlord kept the deposit",
		Category:    "property",
		Budget:      1000,
		Status:      status,
		Location:    "Singapore",
	}
	if err := db.Create(cs).Error; err != nil {
		tb.Fatalf("seed case: %v", err)
	}
	return cs
}

func SeedBid(tb testing.TB, db *gorm.DB, caseID, lawyerID uuid.UUID, amount int) *models.Bid {
	tb.Helper()
	b := &models.Bid{
		CasePostID: caseID,
		LawyerID:   lawyerID,
		Amount:     amount,
		Message:    "I can help",
		Status:     models.BidPending,
		Duration:   models.EstimatedDuration{Value: 2, Unit: models.UnitWeeks},
	}
	if err := db.Create(b).Error; err != nil {
		tb.Fatalf("seed bid: %v", err)
	}
	return b
}

func SeedReview(tb testing.TB, db *gorm.DB, userID, lawyerID, caseID uuid.UUID, rating int) *models.Review {
	tb.Helper()
	r := &models.Review{
		UserID:     userID,
		LawyerID:   lawyerID,
		CasePostID: caseID,
		Rating:     rating,
		Title:      "Review",
	}
	if err := db.Create(r).Error; err != nil {
		tb.Fatalf("seed review: %v", err)
	}
	return r
}

func SeedProfile(tb testing.TB, db *gorm.DB, lawyerID uuid.UUID) *models.LawyerProfile {
	tb.Helper()
	years := 5
	p := &models.LawyerProfile{
		UserID:          lawyerID,
		Bio:             "Property litigator",
		Specializations: []string{"property"},
		ExperienceYears: &years,
		Education:       []models.Education{{Institution: "NUS", Degree: "LLB", Year: 2015}},
		Languages:       []string{"en"},
		Availability:    models.Available,
	}
	p.IsProfileComplete = true
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return p
}

// Engagement is a completed case between a client and a lawyer.
type Engagement struct {
	Client *models.User
	Lawyer *models.User
	Case   *models.CasePost
	Bid    *models.Bid
}

// SeedEngagement creates a client, a lawyer, and a case with the lawyer's bid
// accepted, left in the given status.
func SeedEngagement(tb testing.TB, db *gorm.DB, status models.CaseStatus) Engagement {
	tb.Helper()
	client := SeedUser(tb, db, models.RoleClient)
	lawyer := SeedUser(tb, db, models.RoleLawyer)
	cs := SeedCase(tb, db, client.ID, status)
	bid := SeedBid(tb, db, cs.ID, lawyer.ID, 500)
	if err := db.Model(bid).Update("status", models.BidAccepted).Error; err != nil {
		tb.Fatalf("accept bid: %v", err)
	}
	if err := db.Model(cs).Updates(map[string]any{"accepted_bid_id": bid.ID, "updated_at": time.Now()}).Error; err != nil {
		tb.Fatalf("attach bid: %v", err)
	}
	cs.AcceptedBidID = &bid.ID
	bid.Status = models.BidAccepted
	return Engagement{Client: client, Lawyer: lawyer, Case: cs, Bid: bid}
}
