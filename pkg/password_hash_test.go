package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	passwordHash, err := HashPassword("sr")
	require.NoError(t, err)
	assert.NotEmpty(t, passwordHash)
	assert.True(t, CheckPasswordHash("sr", passwordHash))
	assert.False(t, CheckPasswordHash("rs", passwordHash))

	cost, err := bcrypt.Cost([]byte(passwordHash))
	require.NoError(t, err)
	assert.Equal(t, DefaultPasswordCost, cost)
}

func TestHashPasswordWithCost(t *testing.T) {
	passwordHash, err := HashPasswordWithCost("todo", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("todo", passwordHash))
	assert.False(t, CheckPasswordHash("", passwordHash))
	assert.False(t, CheckPasswordHash("todo", "not-a-hash"))
}
