package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bidPayload struct {
	Amount int    `json:"amount" validate:"gte=0"`
	Unit   string `json:"unit" validate:"required,durationunit"`
}

type casePayload struct {
	Title    string `json:"title" validate:"required,max=5"`
	Category string `json:"category" validate:"required,category"`
}

func TestValidate_UsesJSONNamesAndMessages(t *testing.T) {
	errs, err := Validate(casePayload{Title: "too long title", Category: "space-law"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Must be at most 5 characters"}, errs["title"])
	assert.Equal(t, []string{"Unknown category"}, errs["category"])
}

func TestValidate_CategoryIsCaseInsensitive(t *testing.T) {
	errs, err := Validate(casePayload{Title: "ok", Category: "Family"})
	require.NoError(t, err)
	assert.Nil(t, errs)
}

func TestValidate_DurationUnitAndRange(t *testing.T) {
	errs, _ := Validate(bidPayload{Amount: -1, Unit: "years"})
	assert.Equal(t, []string{"Must be greater than or equal to 0"}, errs["amount"])
	assert.Equal(t, []string{"Unit must be one of days, weeks, months"}, errs["unit"])

	errs, _ = Validate(bidPayload{Amount: 0, Unit: "weeks"})
	assert.Nil(t, errs)
}
