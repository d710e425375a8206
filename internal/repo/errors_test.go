package repo

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/finboard/server/internal/apperr"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))

	err := classify("get user", sql.ErrNoRows)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "get user")

	err = classify("insert user", &pq.Error{Code: "23505", Constraint: "users_email_live_idx"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	err = classify("insert token", &pq.Error{Code: "23505", Constraint: "refresh_tokens_token_hash_key"})
	assert.NotErrorIs(t, err, ErrDuplicateEmail)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	for _, connErr := range []error{
		&pq.Error{Code: "08006"},
		&pq.Error{Code: "57P01"},
		&net.OpError{Op: "dial", Err: errors.New("connection refused")},
		context.DeadlineExceeded,
	} {
		assert.True(t, apperr.Is(classify("ping", connErr), apperr.KindUnavailable), "%v", connErr)
	}
}
