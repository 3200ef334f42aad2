package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("testpassword")
	assert.NoError(t, err)
	assert.NotEqual(t, "testpassword", hash)

	assert.True(t, checkPasswordHash("testpassword", hash))
	assert.False(t, checkPasswordHash("wrongpassword", hash))
}
