package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateParse(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := Generate(secret, "w1", "worker", time.Hour)
	require.NoError(t, err)

	c, err := Parse(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "w1", c.NodeID)
	assert.Equal(t, "worker", c.Role)

	_, err = Parse([]byte("other"), tok)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = Parse(nil, tok)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestExpired(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := Generate(secret, "w1", "worker", -time.Minute)
	require.NoError(t, err, "negative ttl means no expiry")
	_, err = Parse(secret, tok)
	assert.NoError(t, err)

	_, err = Generate(nil, "w1", "worker", time.Hour)
	assert.Error(t, err)
}
