package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesOnKind(t *testing.T) {
	err := fmt.Errorf("get lead: %w", NotFound("lead"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, "lead not found", From(err).Message)
}

func TestFromUnknownErrorIsServerError(t *testing.T) {
	cause := errors.New("connection refused")
	e := From(cause)

	assert.Equal(t, KindServer, e.Kind)
	assert.Equal(t, ErrServer.Message, e.Message)
	assert.ErrorIs(t, e, cause)
	assert.NotContains(t, e.Message, "connection refused")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidCredentials: http.StatusUnauthorized,
		KindAccountInactive:    http.StatusForbidden,
		KindSessionExpired:     http.StatusUnauthorized,
		KindTenantNotFound:     http.StatusNotFound,
		KindTenantRequired:     http.StatusBadRequest,
		KindForbidden:          http.StatusForbidden,
		KindNotFound:           http.StatusNotFound,
		KindValidation:         http.StatusUnprocessableEntity,
		KindAlreadyConverted:   http.StatusConflict,
		KindRateLimited:        http.StatusTooManyRequests,
		KindServer:             http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), kind)
	}
}

func TestValidationCarriesFields(t *testing.T) {
	e := Field("email", "is required")

	assert.Equal(t, KindValidation, KindOf(e))
	assert.Equal(t, []string{"is required"}, e.Fields["email"])
}
