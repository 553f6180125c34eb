package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestRedactPII(t *testing.T) {
	in := "Reach me at jane.doe@example.com or +65 9123 4567 after 6pm"
	out := RedactPII(in)

	assert.NotContains(t, out, "jane.doe@example.com")
	assert.NotContains(t, out, "9123")
	assert.Contains(t, out, "[redacted email]")
	assert.Contains(t, out, "[redacted phone]")
	assert.Contains(t, out, "after 6pm")
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "short", Summary("short", 10))

	got := Summary("the quick brown fox jumps", 12)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, "the quick…", got)
}

func TestSummary_CutsOnRuneBoundary(t *testing.T) {
	got := Summary(strings.Repeat("é", 200), 241)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 120)+"…", got)
}
