package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	revoked   = map[string]time.Time{}
	revokedMu sync.RWMutex
)

// RevokeSession marks a session id as revoked until expiresAt. The identity provider
// owns logout; operators cut a stolen session short with `session revoke`.
func RevokeSession(sessionID string, expiresAt time.Time) error {
	if sessionID == "" {
		return errors.New("empty session id")
	}
	if rc := GetRedis(); rc != nil {
		ttl := time.Until(expiresAt)
		if ttl <= 0 {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return rc.Set(ctx, "jwt:revoked:"+sessionID, "1", ttl).Err()
	}
	revokedMu.Lock()
	revoked[sessionID] = expiresAt
	revokedMu.Unlock()
	return nil
}

// IsSessionRevoked reports whether sessionID was revoked. Redis errors fail open.
func IsSessionRevoked(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := rc.Exists(ctx, "jwt:revoked:"+sessionID).Result()
		return err == nil && n > 0
	}
	revokedMu.RLock()
	exp, ok := revoked[sessionID]
	revokedMu.RUnlock()
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		revokedMu.Lock()
		delete(revoked, sessionID)
		revokedMu.Unlock()
		return false
	}
	return true
}
