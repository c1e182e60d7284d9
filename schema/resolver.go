// Package schema resolves logical attestation schema keys to on-chain schema UIDs.
package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/p2einferno/inferno-checkin/models"
)

// Entry is the resolved current version of a schema on a network.
type Entry struct {
	UID        string `json:"uid"`
	Definition string `json:"definition"`
	Resolver   string `json:"resolver"`
	Revocable  bool   `json:"revocable"`
}

// Resolver looks up the most recently deployed schema row for (key, network).
// Found entries are cached for ttl; misses are never cached so a new deployment is
// visible on the next call.
type Resolver struct {
	db    *gorm.DB
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

// NewResolver builds a Resolver. A nil cache disables caching.
func NewResolver(db *gorm.DB, cache Cache, ttl time.Duration, log *zap.Logger) *Resolver {
	if cache == nil {
		cache = noCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{db: db, cache: cache, ttl: ttl, log: log}
}

// Resolve returns the current schema UID or "" when none is configured. Database
// failures are returned as errors; absence is not an error.
func (r *Resolver) Resolve(ctx context.Context, key, network string) (string, error) {
	e, ok, err := r.ResolveEntry(ctx, key, network)
	if err != nil || !ok {
		return "", err
	}
	return e.UID, nil
}

// ResolveEntry is Resolve with the stored definition attached.
func (r *Resolver) ResolveEntry(ctx context.Context, key, network string) (Entry, bool, error) {
	key = strings.TrimSpace(key)
	network = strings.TrimSpace(network)
	if key == "" || network == "" {
		return Entry{}, false, nil
	}

	ck := cacheKey(key, network)
	if e, ok := r.cache.Get(ctx, ck); ok {
		return e, true, nil
	}

	var row models.AttestationSchema
	err := r.db.WithContext(ctx).
		Where("schema_key = ? AND network = ?", key, network).
		Order("created_at DESC").
		Order("id DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.log.Debug("schema not configured", zap.String("schema_key", key), zap.String("network", network))
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("resolve schema %s/%s: %w", network, key, err)
	}

	e := Entry{
		UID:        strings.ToLower(row.SchemaUID),
		Definition: row.SchemaDefinition,
		Resolver:   row.ResolverAddress,
		Revocable:  row.Revocable,
	}
	r.cache.Set(ctx, ck, e, r.ttl)
	return e, true, nil
}

// ClearCache drops every cached entry.
func (r *Resolver) ClearCache(ctx context.Context) {
	r.cache.Clear(ctx)
}

func cacheKey(key, network string) string {
	return network + ":" + key
}
