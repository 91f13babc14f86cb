package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("s3cret")
	require.NoError(t, err)

	assert.True(t, IsHashed(encoded))
	assert.True(t, Verify("s3cret", encoded))
	assert.False(t, Verify("wrong", encoded))
}

func TestVerifyRejectsMalformed(t *testing.T) {
	assert.False(t, Verify("x", "plain-text"))
	assert.False(t, Verify("x", "$argon2id$v=19$bogus$c2FsdA$aGFzaA"))
	assert.False(t, IsHashed("plain-text"))
}
