package auth

import (
	"net/http"
	"strconv"
	"strings"
)

// SessionCookie describes the session cookie independently of net/http so
// the exact attribute set is fixed.
type SessionCookie struct {
	Name   string
	Value  string
	MaxAge int
	Secure bool
}

// String renders the Set-Cookie header value
func (c SessionCookie) String() string {
	var b strings.Builder

	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)
	b.WriteString("; Path=/; HttpOnly; SameSite=Strict; Max-Age=")
	b.WriteString(strconv.Itoa(c.MaxAge))
	if c.Secure {
		b.WriteString("; Secure")
	}

	return b.String()
}

// Write adds the cookie to the response headers
func (c SessionCookie) Write(w http.ResponseWriter) {
	w.Header().Add("Set-Cookie", c.String())
}

// GetSessionCookie retrieves the session token from the named cookie
func GetSessionCookie(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
