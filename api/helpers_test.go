package api

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/steward"
)

func TestDefaultLimit(t *testing.T) {
	assert.Equal(t, 50, defaultLimit(0))
	assert.Equal(t, 50, defaultLimit(-3))
	assert.Equal(t, 20, defaultLimit(20))
	assert.Equal(t, 1000, defaultLimit(5000))
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("at", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseTime("at", "2026-03-01T14:00:00+02:00")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), *got)
	assert.Equal(t, time.UTC, got.Location())

	_, err = parseTime("at", "yesterday")
	assert.Error(t, err)
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))

	plain := errors.New("boom")
	assert.Same(t, plain, mapError(plain))

	for _, err := range []error{
		steward.ErrUnknownPrincipal,
		steward.ErrRoleNotFound,
		fmt.Errorf("wrapped: %w", steward.ErrAssignmentNotFound),
		steward.ErrInvalidWindow,
		steward.ErrDuplicateRole,
		steward.ErrAccessDenied,
	} {
		mapped := mapError(err)
		require.Error(t, mapped)
		assert.NotEqual(t, err, mapped, "expected %v to map to an HTTP error", err)
	}
}
