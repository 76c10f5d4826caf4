package shared

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
)

func TestValidationErrorUnwrapsToHTTPValidation(t *testing.T) {
	err := NewValidationError("Only %d units available.", 4)
	require.True(t, errors.Is(err, httpx.ErrValidation))
	require.Equal(t, "Only 4 units available.", err.UserMessage())
}

func TestSentinelErrorsMapToHTTPKinds(t *testing.T) {
	require.ErrorIs(t, ErrNotFound, httpx.ErrNotFound)
	require.ErrorIs(t, ErrForbidden, httpx.ErrForbidden)
	require.ErrorIs(t, ErrInvalidCredentials, httpx.ErrUnauthorized)
	require.ErrorIs(t, ErrConflict, httpx.ErrConflict)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	page, meta := Paginate(items, 2, 2)
	require.Equal(t, []int{3, 4}, page)
	require.Equal(t, 3, meta.TotalPages)

	page, _ = Paginate(items, 9, 2)
	require.Empty(t, page)
}

func TestPaginationFromQueryDefaults(t *testing.T) {
	page, perPage := PaginationFromQuery(url.Values{})
	require.Equal(t, 1, page)
	require.Equal(t, 20, perPage)

	page, perPage = PaginationFromQuery(url.Values{"page": {"3"}, "per_page": {"500"}})
	require.Equal(t, 3, page)
	require.Equal(t, 200, perPage)
}

type formFixture struct {
	Title    string `json:"title" validate:"required"`
	Priority string `json:"priority" validate:"omitempty,oneof=low high"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func TestValidateStructRequiredWins(t *testing.T) {
	v := NewValidator()
	err := ValidateStruct(v, formFixture{Priority: "bogus"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, MsgRequiredFields, ve.Message)
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	v := NewValidator()
	err := ValidateStruct(v, formFixture{Title: "x", Priority: "bogus"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "Invalid priority: must be one of low high.", ve.Message)

	require.NoError(t, ValidateStruct(v, formFixture{Title: "x", Priority: "low"}))
}

func TestInsufficientStockMessages(t *testing.T) {
	require.Equal(t, "Only 3 units available.", InsufficientStock(3, "").UserMessage())
	require.Equal(t, "Only 0 units available for transfer.", InsufficientStock(0, "transfer").UserMessage())
}

func TestParseDateRange(t *testing.T) {
	now := time.Date(2024, 3, 15, 13, 30, 0, 0, time.UTC)

	r, err := ParseDateRange(url.Values{"range": {"7d"}}, now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), r.From)
	require.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), r.To)

	r, err = ParseDateRange(url.Values{"from": {"2024-01-01"}, "to": {"2024-01-31"}, "range": {"7d"}}, now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), r.To)

	r, err = ParseDateRange(url.Values{}, now)
	require.NoError(t, err)
	require.True(t, r.From.IsZero())
	b := r.Bounded(now)
	require.Equal(t, 30*24*time.Hour, b.To.Sub(b.From))

	_, err = ParseDateRange(url.Values{"range": {"2w"}}, now)
	require.ErrorIs(t, err, httpx.ErrValidation)
	_, err = ParseDateRange(url.Values{"from": {"2024-02-01"}, "to": {"2024-01-01"}}, now)
	require.ErrorIs(t, err, httpx.ErrValidation)
	_, err = ParseDateRange(url.Values{"from": {"yesterday"}}, now)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestConflictOnRace(t *testing.T) {
	err := ConflictOnRace(fmt.Errorf("platform/db: commit tx: %w", &pgconn.PgError{Code: "40001"}))
	require.ErrorIs(t, err, ErrConflict)

	rr := httptest.NewRecorder()
	httpx.RespondError(rr, err)
	require.Equal(t, http.StatusConflict, rr.Code)

	other := &pgconn.PgError{Code: "23505"}
	require.Same(t, other, ConflictOnRace(other))
	require.NoError(t, ConflictOnRace(nil))
}
