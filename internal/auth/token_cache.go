package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-delivery/internal/logger"
)

const (
	tokenKeyPrefix = "auth:claims:"
	// TokenExpiryBuffer drops cached claims this long before the token expires.
	TokenExpiryBuffer = 30 * time.Second
	maxCacheTTL       = 10 * time.Minute
)

// CachedVerifier remembers verified claims in redis so every API instance
// skips re-verifying a token it has already seen. SSE reconnects and polling
// clients present the same token many times a minute.
type CachedVerifier struct {
	Next   TokenVerifier
	Client *redis.Client
	Logger *logger.Logger
}

func NewCachedVerifier(next TokenVerifier, client *redis.Client, log *logger.Logger) *CachedVerifier {
	return &CachedVerifier{Next: next, Client: client, Logger: log}
}

func tokenKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return tokenKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *CachedVerifier) Verify(ctx context.Context, raw string) (Claims, error) {
	key := tokenKey(raw)

	cached, err := c.Client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var claims Claims
		if err := json.Unmarshal(cached, &claims); err == nil {
			return claims, nil
		}
		c.Logger.Warn("AUTH", "Dropping unreadable cached claims")
	case err != redis.Nil:
		c.Logger.Warn("AUTH", fmt.Sprintf("Token cache read failed: %v", err))
	}

	claims, err := c.Next.Verify(ctx, raw)
	if err != nil {
		return Claims{}, err
	}

	ttl := cacheTTL(claims, time.Now())
	if ttl <= 0 {
		return claims, nil
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return claims, nil
	}
	if err := c.Client.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.Logger.Warn("AUTH", fmt.Sprintf("Token cache write failed: %v", err))
	}
	return claims, nil
}

// cacheTTL keeps claims until shortly before the token expires, capped at
// maxCacheTTL. Tokens without exp are cached for the cap.
func cacheTTL(claims Claims, now time.Time) time.Duration {
	if claims.ExpiresAt == nil {
		return maxCacheTTL
	}
	ttl := claims.ExpiresAt.Sub(now) - TokenExpiryBuffer
	if ttl > maxCacheTTL {
		return maxCacheTTL
	}
	return ttl
}
