package reviews

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bids-backend/internal/aggregates"
	"github.com/aldoetobex/legal-bids-backend/internal/auth"
	"github.com/aldoetobex/legal-bids-backend/internal/testutil"
	"github.com/aldoetobex/legal-bids-backend/pkg/models"
)

func newTestApp(db *gorm.DB, actor *models.User) *fiber.App {
	h := NewHandler(db, aggregates.NewEngine(db, nil, nil), nil)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(testutil.InjectAuth(actor.ID, actor.Role))

	app.Post("/api/reviews", h.Create)
	app.Get("/api/lawyers/:id/reviews", h.ListByLawyer)
	app.Patch("/api/reviews/:id", h.Update)
	app.Delete("/api/reviews/:id", h.Delete)
	return app
}

func send(t *testing.T, app *fiber.App, method, path, body string, out any) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func reviewBody(lawyerID uuid.UUID, rating int) string {
	return fmt.Sprintf(`{"lawyer_id":%q,"rating":%d,"title":"Great","comment":"Solved it"}`, lawyerID.String(), rating)
}

func profileOf(t *testing.T, db *gorm.DB, lawyerID uuid.UUID) models.LawyerProfile {
	t.Helper()
	var p models.LawyerProfile
	require.NoError(t, db.First(&p, "user_id = ?", lawyerID).Error)
	return p
}

func TestCreate_RequiresCompletedEngagement(t *testing.T) {
	db := testutil.OpenDB(t)
	e := testutil.SeedEngagement(t, db, models.CaseInProgress)
	testutil.SeedProfile(t, db, e.Lawyer.ID)
	app := newTestApp(db, e.Client)

	var body models.ErrorResponse
	code := send(t, app, "POST", "/api/reviews", reviewBody(e.Lawyer.ID, 5), &body)
	assert.Equal(t, fiber.StatusForbidden, code)
	assert.Equal(t, "NO_COMPLETED_ENGAGEMENT", body.Code)

	require.NoError(t, db.Model(e.Case).Update("status", models.CaseCompleted).Error)

	var r models.Review
	code = send(t, app, "POST", "/api/reviews", reviewBody(e.Lawyer.ID, 5), &r)
	require.Equal(t, fiber.StatusCreated, code)
	assert.Equal(t, e.Case.ID, r.CasePostID)

	p := profileOf(t, db, e.Lawyer.ID)
	assert.Equal(t, 1, p.RatingsQuantity)
	assert.Equal(t, 5.0, p.RatingsAverage)

	body = models.ErrorResponse{}
	code = send(t, app, "POST", "/api/reviews", reviewBody(e.Lawyer.ID, 4), &body)
	assert.Equal(t, fiber.StatusConflict, code)
	assert.Equal(t, "DUPLICATE_REVIEW", body.Code)
}

func TestCreate_DefaultsToUnreviewedEngagement(t *testing.T) {
	db := testutil.OpenDB(t)
	older := testutil.SeedEngagement(t, db, models.CaseCompleted)
	testutil.SeedProfile(t, db, older.Lawyer.ID)

	newer := testutil.SeedEngagement(t, db, models.CaseCompleted)
	require.NoError(t, db.Model(&models.CasePost{}).Where("id = ?", newer.Case.ID).Update("client_id", older.Client.ID).Error)
	require.NoError(t, db.Model(&models.Bid{}).Where("id = ?", newer.Bid.ID).Update("lawyer_id", older.Lawyer.ID).Error)
	testutil.SeedReview(t, db, older.Client.ID, older.Lawyer.ID, newer.Case.ID, 5)

	app := newTestApp(db, older.Client)
	var r models.Review
	code := send(t, app, "POST", "/api/reviews", reviewBody(older.Lawyer.ID, 3), &r)
	require.Equal(t, fiber.StatusCreated, code)
	assert.Equal(t, older.Case.ID, r.CasePostID)

	var body models.ErrorResponse
	code = send(t, app, "POST", "/api/reviews", reviewBody(older.Lawyer.ID, 4), &body)
	assert.Equal(t, fiber.StatusConflict, code)
	assert.Equal(t, "DUPLICATE_REVIEW", body.Code)

	p := profileOf(t, db, older.Lawyer.ID)
	assert.Equal(t, 2, p.RatingsQuantity)
	assert.Equal(t, 4.0, p.RatingsAverage)
}

func TestCreate_OnlyClients(t *testing.T) {
	db := testutil.OpenDB(t)
	e := testutil.SeedEngagement(t, db, models.CaseCompleted)

	var body models.ErrorResponse
	code := send(t, newTestApp(db, e.Lawyer), "POST", "/api/reviews", reviewBody(e.Lawyer.ID, 5), &body)
	assert.Equal(t, fiber.StatusForbidden, code)
	assert.Equal(t, "ONLY_CLIENTS_CAN_REVIEW", body.Code)

	var n int64
	db.Model(&models.Review{}).Count(&n)
	assert.Zero(t, n)
}

func TestRatingsAverage_FourAndFive(t *testing.T) {
	db := testutil.OpenDB(t)
	first := testutil.SeedEngagement(t, db, models.CaseCompleted)
	lawyer := first.Lawyer
	testutil.SeedProfile(t, db, lawyer.ID)

	second := testutil.SeedEngagement(t, db, models.CaseCompleted)
	require.NoError(t, db.Model(&models.Bid{}).Where("id = ?", second.Bid.ID).Update("lawyer_id", lawyer.ID).Error)

	require.Equal(t, fiber.StatusCreated, send(t, newTestApp(db, first.Client), "POST", "/api/reviews", reviewBody(lawyer.ID, 4), nil))
	require.Equal(t, fiber.StatusCreated, send(t, newTestApp(db, second.Client), "POST", "/api/reviews", reviewBody(lawyer.ID, 5), nil))

	p := profileOf(t, db, lawyer.ID)
	assert.Equal(t, 2, p.RatingsQuantity)
	assert.Equal(t, 4.5, p.RatingsAverage)
}

func TestUpdateAndDelete(t *testing.T) {
	db := testutil.OpenDB(t)
	e := testutil.SeedEngagement(t, db, models.CaseCompleted)
	testutil.SeedProfile(t, db, e.Lawyer.ID)
	admin := testutil.SeedUser(t, db, models.RoleAdmin)
	stranger := testutil.SeedUser(t, db, models.RoleClient)

	var r models.Review
	require.Equal(t, fiber.StatusCreated, send(t, newTestApp(db, e.Client), "POST", "/api/reviews", reviewBody(e.Lawyer.ID, 5), &r))
	path := "/api/reviews/" + r.ID.String()

	code := send(t, newTestApp(db, stranger), "PATCH", path, `{"rating":1}`, nil)
	assert.Equal(t, fiber.StatusForbidden, code)
	code = send(t, newTestApp(db, admin), "PATCH", path, `{"rating":1}`, nil)
	assert.Equal(t, fiber.StatusForbidden, code, "admins may delete but not rewrite reviews")

	code = send(t, newTestApp(db, e.Client), "PATCH", path, `{"rating":9}`, nil)
	assert.Equal(t, fiber.StatusBadRequest, code)

	var updated models.Review
	code = send(t, newTestApp(db, e.Client), "PATCH", path, `{"rating":3,"is_anonymous":true}`, &updated)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 3, updated.Rating)
	assert.True(t, updated.IsAnonymous)
	assert.Equal(t, 3.0, profileOf(t, db, e.Lawyer.ID).RatingsAverage)

	code = send(t, newTestApp(db, stranger), "DELETE", path, "", nil)
	assert.Equal(t, fiber.StatusForbidden, code)
	code = send(t, newTestApp(db, admin), "DELETE", path, "", nil)
	require.Equal(t, fiber.StatusNoContent, code)

	p := profileOf(t, db, e.Lawyer.ID)
	assert.Zero(t, p.RatingsQuantity)
	assert.Zero(t, p.RatingsAverage)
}

func TestListByLawyer_HidesAnonymousReviewer(t *testing.T) {
	db := testutil.OpenDB(t)
	e := testutil.SeedEngagement(t, db, models.CaseCompleted)
	open := testutil.SeedReview(t, db, e.Client.ID, e.Lawyer.ID, e.Case.ID, 5)

	other := testutil.SeedUser(t, db, models.RoleClient)
	anon := testutil.SeedReview(t, db, other.ID, e.Lawyer.ID, uuid.New(), 3)
	require.NoError(t, db.Model(anon).Update("is_anonymous", true).Error)

	var out struct {
		Total int64        `json:"total"`
		Items []ReviewView `json:"items"`
	}
	code := send(t, newTestApp(db, other), "GET", "/api/lawyers/"+e.Lawyer.ID.String()+"/reviews", "", &out)
	require.Equal(t, fiber.StatusOK, code)
	require.EqualValues(t, 2, out.Total)

	byID := map[uuid.UUID]ReviewView{}
	for _, v := range out.Items {
		byID[v.ID] = v
	}
	require.NotNil(t, byID[open.ID].UserID)
	assert.Equal(t, e.Client.ID, *byID[open.ID].UserID)
	assert.Equal(t, e.Client.Name, byID[open.ID].ReviewerName)
	assert.Nil(t, byID[anon.ID].UserID)
	assert.Empty(t, byID[anon.ID].ReviewerName)
}
