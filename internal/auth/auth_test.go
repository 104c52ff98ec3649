package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
)

func TestClaimsActor_RoleResolution(t *testing.T) {
	tests := []struct {
		name   string
		claims Claims
		want   models.Role
	}{
		{"explicit role", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}, Role: "courier"}, models.RoleCourier},
		{"realm motoboy", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}, RealmAccess: struct {
			Roles []string `json:"roles"`
		}{Roles: []string{"offline_access", "motoboy"}}}, models.RoleCourier},
		{"admin outranks courier", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}, RealmAccess: struct {
			Roles []string `json:"roles"`
		}{Roles: []string{"courier", "admin"}}}, models.RoleAdmin},
		{"default customer", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}, models.RoleCustomer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor, err := tt.claims.Actor()
			require.NoError(t, err)
			assert.Equal(t, tt.want, actor.Role)
		})
	}

	_, err := Claims{}.Actor()
	assert.Error(t, err)
}

func TestDevTokenRoundTrip(t *testing.T) {
	token, err := DevToken(models.Actor{ID: "courier-a", Name: "Ana", Role: models.RoleCourier}, time.Hour)
	require.NoError(t, err)

	actor, err := ActorFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.Actor{ID: "courier-a", Name: "Ana", Role: models.RoleCourier}, actor)
}

func TestMiddleware(t *testing.T) {
	log := logger.NewConsoleLogger()
	var seen models.Actor
	h := Middleware(unverified{}, log)(RequireRole(models.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	adminToken, err := DevToken(models.Actor{ID: "boss", Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	courierToken, err := DevToken(models.Actor{ID: "ana", Role: models.RoleCourier}, time.Hour)
	require.NoError(t, err)
	expired, err := DevToken(models.Actor{ID: "boss", Role: models.RoleAdmin}, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"missing header", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bad scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, http.StatusUnauthorized},
		{"garbage token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"expired", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) }, http.StatusUnauthorized},
		{"wrong role", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+courierToken) }, http.StatusForbidden},
		{"admin", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+adminToken) }, http.StatusNoContent},
		{"query token", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("access_token", adminToken)
			r.URL.RawQuery = q.Encode()
		}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/store-info", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, "boss", seen.ID)
}
