package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportTargets(t *testing.T) {
	self, a, b := uuid.New(), uuid.New(), uuid.New()

	got, err := supportTargets(self, []uuid.UUID{a, b, a})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, got)

	_, err = supportTargets(self, []uuid.UUID{a, self})
	assert.ErrorIs(t, err, ErrCycle)

	got, err = supportTargets(self, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
