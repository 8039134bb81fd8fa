package twofactor

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTOTPSkew(t *testing.T) {
	key, err := generateTOTPKey("matchguard", "alice@example.com")
	require.NoError(t, err)
	secret := key.Secret()
	now := time.Date(2024, 6, 1, 12, 0, 15, 0, time.UTC)

	// codes from the current step and one step either side are accepted
	for _, offset := range []time.Duration{0, -30 * time.Second, 30 * time.Second} {
		code, err := totp.GenerateCode(secret, now.Add(offset))
		require.NoError(t, err)
		assert.True(t, validateTOTP(code, secret, now), "offset %s", offset)
	}

	// two steps out is rejected
	for _, offset := range []time.Duration{-90 * time.Second, 90 * time.Second} {
		code, err := totp.GenerateCode(secret, now.Add(offset))
		require.NoError(t, err)
		assert.False(t, validateTOTP(code, secret, now), "offset %s", offset)
	}
}

func TestValidateTOTPBadCode(t *testing.T) {
	key, err := generateTOTPKey("matchguard", "alice@example.com")
	require.NoError(t, err)
	assert.False(t, validateTOTP("000000", key.Secret(), time.Now()))
	assert.False(t, validateTOTP("not-a-code", key.Secret(), time.Now()))
}
