package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidSession = errors.New("invalid or expired session")

// Session is the result of a successful authentication
type Session struct {
	Token     string
	ExpiresAt time.Time
	Cookie    SessionCookie
}

// TokenManager issues and validates HS256 session tokens
type TokenManager struct {
	secret     []byte
	sessionTTL time.Duration
	cookieName string
	secure     bool
	now        func() time.Time
}

// NewTokenManager creates a TokenManager. secure marks the session cookie
// Secure and should be true in production only.
func NewTokenManager(secret string, sessionTTL time.Duration, cookieName string, secure bool) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		cookieName: cookieName,
		secure:     secure,
		now:        time.Now,
	}
}

func (tm *TokenManager) CookieName() string {
	return tm.cookieName
}

// IssueSession signs a token for identity, valid for the configured TTL
func (tm *TokenManager) IssueSession(identity *models.Identity) (*Session, error) {
	if identity == nil || identity.ID == "" {
		return nil, errors.New("cannot issue session without identity")
	}

	now := tm.now()
	expiresAt := now.Add(tm.sessionTTL)

	roles := identity.Roles
	if len(roles) == 0 {
		roles = []string{models.RoleUser}
	}

	claims := &models.SessionClaims{
		Roles:     roles,
		Subdomain: identity.Subdomain,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &Session{
		Token:     tokenString,
		ExpiresAt: expiresAt,
		Cookie: SessionCookie{
			Name:   tm.cookieName,
			Value:  tokenString,
			MaxAge: int(tm.sessionTTL.Seconds()),
			Secure: tm.secure,
		},
	}, nil
}

// ValidateSession parses tokenString and returns its claims
func (tm *TokenManager) ValidateSession(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return tm.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidSession
	}

	if claims.Subject == "" {
		return nil, ErrInvalidSession
	}

	return claims, nil
}

// ClearSessionCookie returns a cookie that removes the session on the client
func (tm *TokenManager) ClearSessionCookie() SessionCookie {
	return SessionCookie{
		Name:   tm.cookieName,
		MaxAge: 0,
		Secure: tm.secure,
	}
}
