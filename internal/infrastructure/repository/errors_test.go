package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsDuplicateKeyViolation(t *testing.T) {
	assert.True(t, IsDuplicateKeyViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, IsDuplicateKeyViolation(ErrDuplicateKey))
	assert.False(t, IsDuplicateKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsDuplicateKeyViolation(errors.New("other")))
	assert.False(t, IsDuplicateKeyViolation(nil))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsNotFound(pgx.ErrNoRows))
	assert.True(t, IsNotFound(fmt.Errorf("load: %w", ErrNotFound)))
	assert.False(t, IsNotFound(errors.New("other")))
	assert.False(t, IsNotFound(nil))
}
