package workers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2einferno/inferno-checkin/models"
	"github.com/p2einferno/inferno-checkin/schema"
	"github.com/p2einferno/inferno-checkin/testutil"
)

func TestReportUnattested(t *testing.T) {
	db := testutil.DB(t)
	now := time.Date(2026, 5, 20, 8, 0, 0, 0, time.UTC)
	a := testutil.SeedProfile(t, db, "0x01")
	b := testutil.SeedProfile(t, db, "0x02")
	testutil.SeedCheckins(t, db, a.ID, "2026-05-19", "2026-05-20")
	testutil.SeedCheckins(t, db, b.ID, "2026-05-20")
	require.NoError(t, db.Model(&models.CheckIn{}).
		Where("user_profile_id = ? AND checkin_day = ?", b.ID, "2026-05-20").
		Update("attestation_uid", "0xabc").Error)

	s, err := New(Config{}, db, nil, testutil.Logger(t))
	require.NoError(t, err)
	s.now = testutil.Clock(now)

	n, err := s.ReportUnattested(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPurgeCacheJob(t *testing.T) {
	now := time.Date(2026, 5, 20, 8, 0, 0, 0, time.UTC)
	cache := schema.NewMemoryCache(func() time.Time { return now })
	cache.Set(context.Background(), "k", schema.Entry{UID: "0x1"}, time.Second)

	s, err := New(Config{CachePurgeInterval: time.Hour}, testutil.DB(t), cache, nil)
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Stop() })

	now = now.Add(time.Minute)
	s.PurgeCache()
	assert.Zero(t, cache.Len())
}
