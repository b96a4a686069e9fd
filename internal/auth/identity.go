package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/raphaelgruber/docchat/internal/models"
)

// Identity is what an ID token says about its subject.
type Identity struct {
	User      models.User
	ExpiresAt time.Time
}

// ParseIdentity reads the identity claims of an ID token. The signature is
// not checked: the backends verify tokens, the client only displays them.
func ParseIdentity(idToken string) (Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return Identity{}, fmt.Errorf("parse id token: %w", err)
	}

	user := models.User{
		Username:   firstClaim(claims, "cognito:username", "username", "preferred_username", "sub"),
		Email:      firstClaim(claims, "email"),
		Name:       firstClaim(claims, "name"),
		Attributes: map[string]string{},
	}
	if user.Username == "" {
		return Identity{}, fmt.Errorf("parse id token: no subject claim")
	}
	for k, v := range claims {
		if s, ok := v.(string); ok && strings.HasPrefix(k, "custom:") {
			user.Attributes[strings.TrimPrefix(k, "custom:")] = s
		}
	}
	if len(user.Attributes) == 0 {
		user.Attributes = nil
	}

	id := Identity{User: user}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

func firstClaim(claims jwt.MapClaims, names ...string) string {
	for _, n := range names {
		if s, ok := claims[n].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
