package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_HTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInternal:        http.StatusInternalServerError,
		KindValidation:      http.StatusBadRequest,
		KindAuthentication:  http.StatusUnauthorized,
		KindAuthorization:   http.StatusForbidden,
		KindConflict:        http.StatusConflict,
		KindNotFound:        http.StatusNotFound,
		KindRateLimit:       http.StatusTooManyRequests,
		KindPayloadTooLarge: http.StatusRequestEntityTooLarge,
		KindUnavailable:     http.StatusServiceUnavailable,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), kind.String())
	}
	assert.Equal(t, http.StatusInternalServerError, Kind(99).HTTPStatus())
}

func TestAsThroughWrapping(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("login: %w", Wrap(KindAuthentication, "Invalid token", cause))

	e, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, "Invalid token", e.Message)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, KindAuthentication))
	assert.Equal(t, KindInternal, KindOf(cause))
	assert.False(t, Is(nil, KindInternal))
}
