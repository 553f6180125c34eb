package users

import (
	"encoding/json"
	"net/http/httptest"
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
	app.Get("/api/users", h.List)
	app.Get("/api/users/:id", h.Get)
	app.Delete("/api/users/:id", h.Delete)
	return app
}

func call(t *testing.T, app *fiber.App, method, path string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestList_FiltersByRole(t *testing.T) {
	db := testutil.OpenDB(t)
	admin := testutil.SeedUser(t, db, models.RoleAdmin)
	testutil.SeedUser(t, db, models.RoleClient)
	testutil.SeedUser(t, db, models.RoleLawyer)
	testutil.SeedUser(t, db, models.RoleLawyer)

	app := newTestApp(db, admin)
	code, body := call(t, app, "GET", "/api/users?role=lawyer")
	require.Equal(t, fiber.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])
	for _, it := range body["items"].([]any) {
		item := it.(map[string]any)
		assert.Equal(t, "lawyer", item["role"])
		assert.NotContains(t, item, "password_hash")
	}

	code, _ = call(t, app, "GET", "/api/users?role=wizard")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestGet_PublicFieldsOnly(t *testing.T) {
	db := testutil.OpenDB(t)
	viewer := testutil.SeedUser(t, db, models.RoleClient)
	lawyer := testutil.SeedUser(t, db, models.RoleLawyer)

	app := newTestApp(db, viewer)
	code, body := call(t, app, "GET", "/api/users/"+lawyer.ID.String())
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, lawyer.Name, body["name"])
	assert.NotContains(t, body, "email")

	code, _ = call(t, app, "GET", "/api/users/"+uuid.NewString())
	assert.Equal(t, fiber.StatusNotFound, code)

	code, _ = call(t, app, "GET", "/api/users/not-a-uuid")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestDelete_AdminOnlyAndNotSelf(t *testing.T) {
	db := testutil.OpenDB(t)
	admin := testutil.SeedUser(t, db, models.RoleAdmin)
	client := testutil.SeedUser(t, db, models.RoleClient)
	other := testutil.SeedUser(t, db, models.RoleClient)

	code, _ := call(t, newTestApp(db, client), "DELETE", "/api/users/"+other.ID.String())
	assert.Equal(t, fiber.StatusForbidden, code)

	code, _ = call(t, newTestApp(db, admin), "DELETE", "/api/users/"+admin.ID.String())
	assert.Equal(t, fiber.StatusForbidden, code)

	code, _ = call(t, newTestApp(db, admin), "DELETE", "/api/users/"+uuid.NewString())
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestDelete_LawyerCascadesAndRecomputes(t *testing.T) {
	db := testutil.OpenDB(t)
	admin := testutil.SeedUser(t, db, models.RoleAdmin)
	client := testutil.SeedUser(t, db, models.RoleClient)
	cs := testutil.SeedCase(t, db, client.ID, models.CaseOpen)

	gone := testutil.SeedUser(t, db, models.RoleLawyer)
	stays := testutil.SeedUser(t, db, models.RoleLawyer)
	testutil.SeedBid(t, db, cs.ID, gone.ID, 300)
	testutil.SeedBid(t, db, cs.ID, stays.ID, 100)
	testutil.SeedProfile(t, db, gone.ID)
	require.NoError(t, db.Model(cs).Updates(map[string]any{"bid_count": 2, "average_bid": 200}).Error)

	code, _ := call(t, newTestApp(db, admin), "DELETE", "/api/users/"+gone.ID.String())
	require.Equal(t, fiber.StatusNoContent, code)

	var got models.CasePost
	require.NoError(t, db.First(&got, "id = ?", cs.ID).Error)
	assert.Equal(t, 1, got.BidCount)
	assert.Equal(t, 100, got.AverageBid)

	var n int64
	db.Model(&models.LawyerProfile{}).Where("user_id = ?", gone.ID).Count(&n)
	assert.Zero(t, n)
	db.Model(&models.User{}).Where("id = ?", gone.ID).Count(&n)
	assert.Zero(t, n)
}

func TestDelete_LawyerReopensInProgressCases(t *testing.T) {
	db := testutil.OpenDB(t)
	admin := testutil.SeedUser(t, db, models.RoleAdmin)
	working := testutil.SeedEngagement(t, db, models.CaseInProgress)
	done := testutil.SeedEngagement(t, db, models.CaseCompleted)
	require.NoError(t, db.Model(&models.Bid{}).Where("id = ?", done.Bid.ID).Update("lawyer_id", working.Lawyer.ID).Error)

	code, _ := call(t, newTestApp(db, admin), "DELETE", "/api/users/"+working.Lawyer.ID.String())
	require.Equal(t, fiber.StatusNoContent, code)

	var reopened models.CasePost
	require.NoError(t, db.First(&reopened, "id = ?", working.Case.ID).Error)
	assert.Equal(t, models.CaseOpen, reopened.Status)
	assert.Nil(t, reopened.AcceptedBidID)

	var hist models.CaseHistory
	require.NoError(t, db.First(&hist, "case_id = ? AND action = ?", working.Case.ID, "reopened").Error)
	assert.Equal(t, admin.ID, hist.ActorID)
	assert.Equal(t, models.CaseInProgress, hist.OldStatus)
	assert.Equal(t, models.CaseOpen, hist.NewStatus)

	var closed models.CasePost
	require.NoError(t, db.First(&closed, "id = ?", done.Case.ID).Error)
	assert.Equal(t, models.CaseCompleted, closed.Status)
	assert.Nil(t, closed.AcceptedBidID)
}

func TestDelete_ClientCascadesAndRecomputesRatings(t *testing.T) {
	db := testutil.OpenDB(t)
	admin := testutil.SeedUser(t, db, models.RoleAdmin)

	e := testutil.SeedEngagement(t, db, models.CaseCompleted)
	testutil.SeedProfile(t, db, e.Lawyer.ID)
	testutil.SeedReview(t, db, e.Client.ID, e.Lawyer.ID, e.Case.ID, 2)

	keep := testutil.SeedEngagement(t, db, models.CaseCompleted)
	require.NoError(t, db.Model(&models.Bid{}).Where("id = ?", keep.Bid.ID).Update("lawyer_id", e.Lawyer.ID).Error)
	testutil.SeedReview(t, db, keep.Client.ID, e.Lawyer.ID, keep.Case.ID, 5)

	code, _ := call(t, newTestApp(db, admin), "DELETE", "/api/users/"+e.Client.ID.String())
	require.Equal(t, fiber.StatusNoContent, code)

	var p models.LawyerProfile
	require.NoError(t, db.First(&p, "user_id = ?", e.Lawyer.ID).Error)
	assert.Equal(t, 1, p.RatingsQuantity)
	assert.Equal(t, 5.0, p.RatingsAverage)
	assert.Equal(t, 1, p.CompletedCases)

	var n int64
	db.Model(&models.CasePost{}).Where("client_id = ?", e.Client.ID).Count(&n)
	assert.Zero(t, n)
	db.Model(&models.Bid{}).Where("case_post_id = ?", e.Case.ID).Count(&n)
	assert.Zero(t, n)
}
