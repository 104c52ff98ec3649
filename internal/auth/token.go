package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ms-delivery/internal/models"
)

// Claims is the subset of the identity token the platform reads.
type Claims struct {
	jwt.RegisteredClaims
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	Role              string `json:"role,omitempty"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access,omitempty"`
}

// roleAliases maps identity provider role names onto platform roles.
var roleAliases = map[string]models.Role{
	"admin":    models.RoleAdmin,
	"manager":  models.RoleAdmin,
	"courier":  models.RoleCourier,
	"motoboy":  models.RoleCourier,
	"customer": models.RoleCustomer,
}

// Actor resolves the token's identity. An explicit role claim wins over realm
// roles; admin outranks courier when both are present.
func (c Claims) Actor() (models.Actor, error) {
	if c.Subject == "" {
		return models.Actor{}, errors.New("subject claim not found in token")
	}

	role := models.RoleCustomer
	if r, ok := roleAliases[strings.ToLower(c.Role)]; ok {
		role = r
	} else {
		for _, raw := range c.RealmAccess.Roles {
			r, ok := roleAliases[strings.ToLower(raw)]
			if !ok {
				continue
			}
			if r == models.RoleAdmin || role == models.RoleCustomer {
				role = r
			}
		}
	}

	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}
	if name == "" {
		name = c.Email
	}
	return models.Actor{ID: c.Subject, Name: name, Role: role}, nil
}

// ExtractTokenFromRequest reads a bearer token from the Authorization header,
// falling back to the access_token query parameter for EventSource clients.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if q := r.URL.Query().Get("access_token"); q != "" {
			return q, nil
		}
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

// ParseUnverified decodes the token claims without checking the signature.
func ParseUnverified(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, errors.New("empty token")
	}
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return Claims{}, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims, nil
}

// ActorFromToken is what the terminal apps use to learn who they are.
func ActorFromToken(tokenString string) (models.Actor, error) {
	claims, err := ParseUnverified(tokenString)
	if err != nil {
		return models.Actor{}, err
	}
	return claims.Actor()
}

// DevToken mints an HS256 token for local runs against a server started with
// AUTH_DEV_MODE. Such servers do not check signatures.
func DevToken(actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "ms-delivery-dev",
		},
		Name: actor.Name,
		Role: string(actor.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("ms-delivery-dev"))
}
