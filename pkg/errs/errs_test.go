package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	base := WithCode(KindWindowExpired, "EDIT_WINDOW_EXPIRED", "edit window expired")
	wrapped := fmt.Errorf("editing message 7: %w", base)

	assert.Equal(t, KindWindowExpired, KindOf(wrapped))
	assert.Equal(t, "EDIT_WINDOW_EXPIRED", CodeOf(wrapped))
	assert.Equal(t, http.StatusConflict, HTTPStatus(wrapped))
	assert.True(t, errors.Is(wrapped, base))
}

func TestUnclassifiedIsInternal(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "INTERNAL", CodeOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.False(t, Retryable(err))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidInput:       http.StatusBadRequest,
		KindUnauthorized:       http.StatusUnauthorized,
		KindForbidden:          http.StatusForbidden,
		KindNotFound:           http.StatusNotFound,
		KindConflict:           http.StatusConflict,
		KindTransientRetryable: http.StatusServiceUnavailable,
		KindRateLimited:        http.StatusTooManyRequests,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(New(kind, "x")), kind.String())
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(KindTransientRetryable, "not yet")))
	assert.True(t, Retryable(New(KindRateLimited, "slow down")))
	assert.False(t, Retryable(New(KindNotFound, "gone")))
}
