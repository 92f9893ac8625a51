package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheck(t *testing.T) {
	hash, err := Hash("pw123secret")
	require.NoError(t, err)
	require.NotEqual(t, "pw123secret", string(hash))

	assert.True(t, Check("pw123secret", hash))
	assert.False(t, Check("wrong-password", hash))
	assert.False(t, Check("", hash))
}

func TestCheck_InvalidHash(t *testing.T) {
	assert.False(t, Check("anything", []byte("not-a-bcrypt-hash")))
}
