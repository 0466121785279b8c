package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Claims are the display-relevant fields of an ID or access token. The
// payload is decoded without signature verification; it is used only to show
// who is signed in, never to authorize anything.
type Claims struct {
	Subject string
	Email   string
	Name    string
	Expiry  time.Time
}

// ParseClaims decodes the middle segment of a JWT.
func ParseClaims(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("token is not a jwt")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decoding token payload: %w", err)
	}

	var raw struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Exp   int64  `json:"exp"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("parsing token payload: %w", err)
	}

	c := &Claims{Subject: raw.Sub, Email: raw.Email, Name: raw.Name}
	if raw.Exp > 0 {
		c.Expiry = time.Unix(raw.Exp, 0)
	}
	return c, nil
}
