package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizedEmail(t *testing.T) {
	assert.Equal(t, "a@*******.com", SanitizedEmail("a@example.com"))
	assert.Equal(t, "j***@****.io", SanitizedEmail("jane@mail.io"))
	assert.Equal(t, "[invalid-email]", SanitizedEmail("no-at-sign"))
}

func TestSanitizedMobile(t *testing.T) {
	assert.Equal(t, "+91********10", SanitizedMobile("+919876543210"))
	assert.Equal(t, "****", SanitizedMobile("+123"))
}

func TestSanitizedIdentifier(t *testing.T) {
	assert.Equal(t, "a@*******.com", SanitizedIdentifier("a@example.com"))
	assert.Equal(t, "+44********89", SanitizedIdentifier("+447700900789"))
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("code=123456"))
	assert.True(t, SanitizeQueryString("Token=abc"))
	assert.False(t, SanitizeQueryString("page=2"))
}
