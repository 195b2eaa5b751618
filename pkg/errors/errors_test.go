package errors

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMatching(t *testing.T) {
	err := fmt.Errorf("load request: %w", NotFound("blood request", sql.ErrNoRows))

	assert.True(t, stderrors.Is(err, NotFoundError))
	assert.False(t, stderrors.Is(err, InvalidTransitionError))
	assert.True(t, stderrors.Is(err, sql.ErrNoRows))
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "load request: blood request not found: sql: no rows in result set", err.Error())
}

func TestHasCodeWalksNestedAppErrors(t *testing.T) {
	inner := NewConfigurationGap("unknown blood type \"Q+\"", nil)
	outer := Internal(inner)

	assert.True(t, HasCode(outer, ErrInternal))
	assert.True(t, HasCode(outer, ErrConfigurationGap))
	assert.False(t, HasCode(outer, ErrNotFound))
	assert.False(t, HasCode(stderrors.New("plain"), ErrInternal))
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  *AppError
		want int
	}{
		{NotFound("unit", nil), http.StatusNotFound},
		{BadRequest("bad", nil), http.StatusBadRequest},
		{NewInvalidTransition("blood request", "rejected", "approve"), http.StatusConflict},
		{NewConflict("dup", nil), http.StatusConflict},
		{Unauthorized(nil), http.StatusUnauthorized},
		{Forbidden(nil), http.StatusForbidden},
		{NewConfigurationGap("gap", nil), http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.StatusCode(), tc.err.Error())
	}
}

func TestInvalidTransitionMessage(t *testing.T) {
	err := NewInvalidTransition("blood request", "approved", "approve")
	assert.Equal(t, `cannot approve blood request in status "approved"`, err.Error())
}
