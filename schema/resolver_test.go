package schema

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2einferno/inferno-checkin/models"
	"github.com/p2einferno/inferno-checkin/testutil"
)

const checkinDef = "address walletAddress,string greeting,uint256 timestamp,uint256 xpGained"

func TestResolvePicksMostRecent(t *testing.T) {
	db := testutil.DB(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, uid := range []string{"0xaaa", "0xccc", "0xbbb"} {
		created := base.Add(time.Duration(i) * time.Hour)
		if uid == "0xccc" {
			created = base.Add(10 * time.Hour)
		}
		testutil.SeedSchema(t, db, models.AttestationSchema{
			SchemaKey: "daily_checkin", Network: "base-sepolia", SchemaUID: uid,
			SchemaDefinition: checkinDef, CreatedAt: created,
		})
	}
	testutil.SeedSchema(t, db, models.AttestationSchema{
		SchemaKey: "daily_checkin", Network: "base", SchemaUID: "0xfff",
		SchemaDefinition: checkinDef, CreatedAt: base.Add(20 * time.Hour),
	})

	r := NewResolver(db, nil, 0, nil)
	uid, err := r.Resolve(context.Background(), "daily_checkin", "base-sepolia")
	require.NoError(t, err)
	assert.Equal(t, "0xccc", uid)

	e, ok, err := r.ResolveEntry(context.Background(), "daily_checkin", "base")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0xfff", e.UID)
	assert.Equal(t, checkinDef, e.Definition)
}

func TestResolveAbsentIsNotCached(t *testing.T) {
	db := testutil.DB(t)
	cache := NewMemoryCache(nil)
	r := NewResolver(db, cache, time.Minute, nil)

	uid, err := r.Resolve(context.Background(), "daily_checkin", "base-sepolia")
	require.NoError(t, err)
	assert.Empty(t, uid)
	assert.Zero(t, cache.Len())

	testutil.SeedSchema(t, db, models.AttestationSchema{
		SchemaKey: "daily_checkin", Network: "base-sepolia", SchemaUID: "0xAbC", SchemaDefinition: checkinDef,
	})
	uid, err = r.Resolve(context.Background(), "daily_checkin", "base-sepolia")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", uid)
}

func TestResolveEmptyArguments(t *testing.T) {
	r := NewResolver(testutil.DB(t), nil, 0, nil)
	uid, err := r.Resolve(context.Background(), "", "base")
	require.NoError(t, err)
	assert.Empty(t, uid)
}

func TestResolveUsesCacheUntilExpiry(t *testing.T) {
	db := testutil.DB(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(func() time.Time { return now })
	r := NewResolver(db, cache, 5*time.Minute, nil)

	row := testutil.SeedSchema(t, db, models.AttestationSchema{
		SchemaKey: "daily_checkin", Network: "base-sepolia", SchemaUID: "0x111", SchemaDefinition: checkinDef,
	})
	uid, err := r.Resolve(context.Background(), "daily_checkin", "base-sepolia")
	require.NoError(t, err)
	assert.Equal(t, "0x111", uid)

	require.NoError(t, db.Model(row).Update("schema_uid", "0x222").Error)

	now = now.Add(4 * time.Minute)
	uid, _ = r.Resolve(context.Background(), "daily_checkin", "base-sepolia")
	assert.Equal(t, "0x111", uid, "served from cache")

	now = now.Add(2 * time.Minute)
	uid, _ = r.Resolve(context.Background(), "daily_checkin", "base-sepolia")
	assert.Equal(t, "0x222", uid, "expired entry reloaded")

	require.NoError(t, db.Model(row).Update("schema_uid", "0x333").Error)
	r.ClearCache(context.Background())
	uid, _ = r.Resolve(context.Background(), "daily_checkin", "base-sepolia")
	assert.Equal(t, "0x333", uid)
}

func TestMemoryCachePurge(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(func() time.Time { return now })
	ctx := context.Background()
	c.Set(ctx, "a", Entry{UID: "0x1"}, time.Minute)
	c.Set(ctx, "b", Entry{UID: "0x2"}, time.Hour)
	c.Set(ctx, "c", Entry{UID: "0x3"}, 0)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get(ctx, "b")
	assert.True(t, ok)
}

func TestTieredBackfillsFront(t *testing.T) {
	ctx := context.Background()
	front, back := NewMemoryCache(nil), NewMemoryCache(nil)
	tc := Tiered{Front: front, Back: back, TTL: time.Minute}

	back.Set(ctx, "k", Entry{UID: "0x9"}, time.Minute)
	e, ok := tc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "0x9", e.UID)
	_, ok = front.Get(ctx, "k")
	assert.True(t, ok)

	tc.Clear(ctx)
	_, ok = tc.Get(ctx, "k")
	assert.False(t, ok)
}

func TestTieredBackfillKeepsSharedExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	front, back := NewMemoryCache(clock), NewMemoryCache(clock)
	tc := Tiered{Front: front, Back: back, TTL: time.Minute}

	back.Set(ctx, "k", Entry{UID: "0x9"}, time.Minute)
	now = now.Add(59 * time.Second)
	e, ok := tc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "0x9", e.UID)

	_, left, ok := front.GetTTL(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, time.Second, left)

	now = now.Add(2 * time.Second)
	_, ok = front.Get(ctx, "k")
	assert.False(t, ok)
	_, ok = tc.Get(ctx, "k")
	assert.False(t, ok, "served past the shared entry's lifetime")
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis cache tests")
	}
	ctx := context.Background()
	rc := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rc.Close() })

	c := NewRedisCache(rc, nil)
	c.Clear(ctx)
	c.Set(ctx, "base:daily_checkin", Entry{UID: "0x1", Definition: checkinDef}, time.Minute)
	e, ok := c.Get(ctx, "base:daily_checkin")
	require.True(t, ok)
	assert.Equal(t, checkinDef, e.Definition)
	_, left, ok := c.GetTTL(ctx, "base:daily_checkin")
	require.True(t, ok)
	assert.True(t, left > 0 && left <= time.Minute)

	c.Clear(ctx)
	_, ok = c.Get(ctx, "base:daily_checkin")
	assert.False(t, ok)
}

func TestDeriveUID(t *testing.T) {
	a := DeriveUID(checkinDef, "0x0000000000000000000000000000000000000000", true)
	b := DeriveUID(checkinDef, "", true)
	c := DeriveUID(checkinDef, "", false)
	assert.Len(t, a, 66)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, SameUID(a, "0X"+a[2:]))
	assert.False(t, SameUID("", ""))
}
