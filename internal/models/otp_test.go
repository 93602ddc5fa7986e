package models

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_RoundTrip(t *testing.T) {
	for _, ch := range []Channel{ChannelEmail, ChannelMobile, ChannelReset} {
		parsed, err := ParseChannel(ch.String())
		require.NoError(t, err)
		assert.Equal(t, ch, parsed)
	}

	_, err := ParseChannel("carrier-pigeon")
	assert.Error(t, err)
}

func TestOTPRecord_IsExpiredAt(t *testing.T) {
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	record := OTPRecord{CreatedAt: created, ExpiresAt: created.Add(10 * time.Minute)}

	assert.False(t, record.IsExpiredAt(created.Add(599*time.Second)))
	assert.True(t, record.IsExpiredAt(created.Add(600*time.Second)))
	assert.True(t, record.IsExpiredAt(created.Add(601*time.Second)))
}

func TestVerifyReason_Err(t *testing.T) {
	assert.ErrorIs(t, ReasonNotFound.Err(), ErrNotFound)
	assert.ErrorIs(t, ReasonExpired.Err(), ErrOTPExpired)
	assert.ErrorIs(t, ReasonTooManyAttempts.Err(), ErrTooManyAttempts)
	assert.ErrorIs(t, ReasonInvalidCode.Err(), ErrInvalidCode)
	assert.NoError(t, ReasonNone.Err())
}

func TestAuthError_Unwraps(t *testing.T) {
	err := NewAuthError(http.StatusTooManyRequests, "Too many OTP requests", ErrRateLimitExceeded)

	var authErr *AuthError
	require.True(t, errors.As(error(err), &authErr))
	assert.Equal(t, http.StatusTooManyRequests, authErr.Status)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, "Too many OTP requests: rate limit exceeded", err.Error())

	internal := InternalError()
	assert.Equal(t, http.StatusInternalServerError, internal.Status)
	assert.ErrorIs(t, internal, ErrInternalServer)
}

func TestIdentity_HasRole(t *testing.T) {
	identity := Identity{Roles: []string{RoleUser}}
	assert.True(t, identity.HasRole(RoleUser))
	assert.False(t, identity.HasRole(RoleSuperadmin))
}
