// Package identifier classifies login identifiers as email addresses or
// mobile numbers and reduces them to a canonical form.
//
// Request-code and verify-code calls must go through the same Classifier so
// that a phone number is normalised identically on both sides; otherwise the
// stored OTP record is never found.
package identifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BradenHooton/pagebuilder-identity/internal/models"
	pkglogger "github.com/BradenHooton/pagebuilder-identity/pkg/logger"
	"github.com/go-playground/validator/v10"
)

// Kind is the identifier family
type Kind int

const (
	KindEmail Kind = iota + 1
	KindMobile
)

func (k Kind) String() string {
	switch k {
	case KindEmail:
		return "email"
	case KindMobile:
		return "mobile"
	default:
		return "unknown"
	}
}

// Identifier is a classified, canonical login identifier
type Identifier struct {
	Kind  Kind
	Value string
}

// OTPChannel returns the login channel matching the identifier kind
func (id Identifier) OTPChannel() models.Channel {
	switch id.Kind {
	case KindEmail:
		return models.ChannelEmail
	default:
		return models.ChannelMobile
	}
}

// Mask returns a partially redacted form suitable for display
func (id Identifier) Mask() string {
	switch id.Kind {
	case KindEmail:
		return pkglogger.SanitizedEmail(id.Value)
	default:
		return pkglogger.SanitizedMobile(id.Value)
	}
}

func (id Identifier) String() string {
	return id.Value
}

// nationalNumberLen is the longest digit string treated as a national number
// when it happens to start with the default country code.
const nationalNumberLen = 10

var (
	e164Pattern  = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
	mobileStrip  = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")
	emailChecker = validator.New()
)

// Classifier canonicalises identifiers. DefaultCountryCode is the dialling
// code (digits only, e.g. "91") applied to national-format numbers.
type Classifier struct {
	DefaultCountryCode string
}

// NewClassifier creates a Classifier for the given default dialling code
func NewClassifier(defaultCountryCode string) *Classifier {
	return &Classifier{DefaultCountryCode: strings.TrimPrefix(strings.TrimSpace(defaultCountryCode), "+")}
}

// Classify decides whether raw is an email address or a mobile number and
// returns its canonical form. Malformed input yields models.ErrValidation.
func (c *Classifier) Classify(raw string) (Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identifier{}, fmt.Errorf("%w: identifier is required", models.ErrValidation)
	}

	if strings.Contains(raw, "@") {
		email := strings.ToLower(raw)
		if err := emailChecker.Var(email, "required,email"); err != nil {
			return Identifier{}, fmt.Errorf("%w: invalid email address", models.ErrValidation)
		}
		return Identifier{Kind: KindEmail, Value: email}, nil
	}

	mobile, err := c.normalizeMobile(raw)
	if err != nil {
		return Identifier{}, err
	}
	return Identifier{Kind: KindMobile, Value: mobile}, nil
}

// MustEmail classifies raw and requires it to be an email address
func (c *Classifier) MustEmail(raw string) (Identifier, error) {
	id, err := c.Classify(raw)
	if err != nil {
		return Identifier{}, err
	}
	if id.Kind != KindEmail {
		return Identifier{}, fmt.Errorf("%w: invalid email address", models.ErrValidation)
	}
	return id, nil
}

// MustMobile classifies raw and requires it to be a mobile number
func (c *Classifier) MustMobile(raw string) (Identifier, error) {
	id, err := c.Classify(raw)
	if err != nil {
		return Identifier{}, err
	}
	if id.Kind != KindMobile {
		return Identifier{}, fmt.Errorf("%w: invalid mobile number", models.ErrValidation)
	}
	return id, nil
}

func (c *Classifier) normalizeMobile(raw string) (string, error) {
	n := mobileStrip.Replace(raw)

	switch {
	case strings.HasPrefix(n, "+"):
		// already international
	case strings.HasPrefix(n, "00"):
		n = "+" + n[2:]
	case strings.HasPrefix(n, "0") && c.DefaultCountryCode != "":
		n = "+" + c.DefaultCountryCode + n[1:]
	case c.DefaultCountryCode == "":
		n = "+" + n
	case strings.HasPrefix(n, c.DefaultCountryCode) && len(n) > nationalNumberLen:
		// country code given without the plus sign
		n = "+" + n
	default:
		n = "+" + c.DefaultCountryCode + n
	}

	if !e164Pattern.MatchString(n) {
		return "", fmt.Errorf("%w: invalid mobile number", models.ErrValidation)
	}
	return n, nil
}
