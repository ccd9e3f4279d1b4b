package utils

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// The rewarded-ad flow is an external collaborator: the client starts an ad
// session, plays the ad through its SDK, then redeems the session token to
// reset the download cooldown. Tokens are single-use with a short TTL.

type adTokenEntry struct {
	userID    uint
	expiresAt time.Time
}

var (
	adTokens   = map[string]adTokenEntry{}
	adTokensMu sync.Mutex
)

func adTokenKey(userID uint, token string) string {
	return fmt.Sprintf("ad:session:%d:%s", userID, token)
}

// SaveAdToken stores a rewarded-ad session token bound to a user.
func SaveAdToken(userID uint, token string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	// Prefer Redis for distributed consistency
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rc.Set(ctx, adTokenKey(userID, token), "1", ttl).Err()
		return
	}
	// Fallback to in-memory (single-instance only)
	adTokensMu.Lock()
	adTokens[adTokenKey(userID, token)] = adTokenEntry{userID: userID, expiresAt: time.Now().Add(ttl)}
	adTokensMu.Unlock()
}

// ConsumeAdToken validates and removes a token; single use by construction.
func ConsumeAdToken(userID uint, token string) bool {
	key := adTokenKey(userID, token)
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if v, err := rc.GetDel(ctx, key).Result(); err == nil {
			return v != ""
		}
		return false
	}
	adTokensMu.Lock()
	entry, ok := adTokens[key]
	if ok {
		delete(adTokens, key)
	}
	adTokensMu.Unlock()
	return ok && time.Now().Before(entry.expiresAt)
}
