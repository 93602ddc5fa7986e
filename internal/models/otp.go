package models

import (
	"fmt"
	"time"
)

// Channel is the delivery/purpose context of an OTP. Reset is its own channel
// so that a login code can never be replayed as a password-reset code.
type Channel int

const (
	ChannelEmail Channel = iota + 1
	ChannelMobile
	ChannelReset
)

func (c Channel) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelMobile:
		return "mobile"
	case ChannelReset:
		return "reset"
	default:
		return "unknown"
	}
}

// ParseChannel converts the stored representation back into a Channel
func ParseChannel(s string) (Channel, error) {
	switch s {
	case "email":
		return ChannelEmail, nil
	case "mobile":
		return ChannelMobile, nil
	case "reset":
		return ChannelReset, nil
	default:
		return 0, fmt.Errorf("unknown otp channel %q", s)
	}
}

// OTPRecord is a persisted one-time code. The plaintext code is never stored.
type OTPRecord struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Channel    Channel   `json:"channel"`
	CodeHash   string    `json:"-"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsExpiredAt reports whether the record is no longer valid at now
func (r *OTPRecord) IsExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// VerifyReason explains a failed verification
type VerifyReason string

const (
	ReasonNone            VerifyReason = ""
	ReasonNotFound        VerifyReason = "not_found"
	ReasonExpired         VerifyReason = "expired"
	ReasonTooManyAttempts VerifyReason = "too_many_attempts"
	ReasonInvalidCode     VerifyReason = "invalid_code"
)

// Err maps a verification reason onto the error taxonomy
func (r VerifyReason) Err() error {
	switch r {
	case ReasonNotFound:
		return ErrNotFound
	case ReasonExpired:
		return ErrOTPExpired
	case ReasonTooManyAttempts:
		return ErrTooManyAttempts
	case ReasonInvalidCode:
		return ErrInvalidCode
	default:
		return nil
	}
}
