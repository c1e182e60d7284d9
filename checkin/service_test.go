package checkin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/p2einferno/inferno-checkin/models"
	"github.com/p2einferno/inferno-checkin/streak"
	"github.com/p2einferno/inferno-checkin/testutil"
)

var fixedNow = time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)

func xpTable() streak.XPTable {
	return streak.XPTable{
		BaseXP:       50,
		BonusPerDay:  5,
		MaxBonusDays: 30,
		Tiers: []streak.Tier{
			{Name: "ember", MinStreak: 0, Multiplier: 1},
			{Name: "flame", MinStreak: 7, Multiplier: 1.2},
		},
	}
}

func newService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	svc, err := NewService(db, xpTable(), WithClock(testutil.Clock(fixedNow)), WithLogger(testutil.Logger(t)))
	require.NoError(t, err)
	return svc
}

func profileXP(t *testing.T, db *gorm.DB, id string) int64 {
	t.Helper()
	var p models.UserProfile
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p.ExperiencePoints
}

func TestCheckinFirstDay(t *testing.T) {
	db := testutil.DB(t)
	svc := newService(t, db)
	p := testutil.SeedProfile(t, db, "0xabc")

	res, err := svc.Checkin(context.Background(), p.ID, Input{Greeting: "  <b>gm</b> ", WalletAddress: "0xABC"})
	require.NoError(t, err)
	require.True(t, res.OK)
	require.NotNil(t, res.NewXP)
	assert.Equal(t, int64(50), *res.NewXP)
	assert.Equal(t, int64(50), res.XPEarned)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, int64(50), profileXP(t, db, p.ID))

	today, err := svc.Today(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, today)
	assert.Equal(t, "2026-05-20", today.CheckinDay)
	assert.Equal(t, "gm", today.ActivityData["greeting"])
	assert.Equal(t, "0xabc", today.ActivityData["wallet_address"])
	assert.Nil(t, today.AttestationUID)
}

func TestCheckinContinuesStreak(t *testing.T) {
	db := testutil.DB(t)
	svc := newService(t, db)
	p := testutil.SeedProfile(t, db, "0xabc")
	testutil.SeedCheckins(t, db, p.ID, "2026-05-18", "2026-05-19")

	res, err := svc.Checkin(context.Background(), p.ID, Input{})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, 3, res.Streak)
	// streak of 2 before today: 50 base + 2*5 bonus
	assert.Equal(t, int64(60), res.XPEarned)
	assert.Equal(t, int64(60), *res.NewXP)
}

func TestCheckinAfterGapResets(t *testing.T) {
	db := testutil.DB(t)
	svc := newService(t, db)
	p := testutil.SeedProfile(t, db, "0xabc")
	testutil.SeedCheckins(t, db, p.ID, "2026-05-16", "2026-05-17")

	res, err := svc.Checkin(context.Background(), p.ID, Input{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, int64(50), res.XPEarned)
}

func TestCheckinTwiceReportsConflict(t *testing.T) {
	db := testutil.DB(t)
	svc := newService(t, db)
	p := testutil.SeedProfile(t, db, "0xabc")
	testutil.SeedCheckins(t, db, p.ID, "2026-05-19")

	first, err := svc.Checkin(context.Background(), p.ID, Input{})
	require.NoError(t, err)
	require.True(t, first.OK)

	second, err := svc.Checkin(context.Background(), p.ID, Input{})
	require.NoError(t, err)
	assert.False(t, second.OK)
	assert.True(t, second.Conflict)
	assert.Nil(t, second.NewXP)
	assert.Equal(t, 2, second.Streak)
	assert.Equal(t, *first.NewXP, profileXP(t, db, p.ID))
}

func TestCheckinConcurrentDuplicates(t *testing.T) {
	db := testutil.DB(t)
	svc := newService(t, db)
	p := testutil.SeedProfile(t, db, "0xabc")

	const n = 4
	results := make([]*Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Checkin(context.Background(), p.ID, Input{})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, r := range results {
		require.NotNil(t, r)
		if r.OK {
			ok++
		}
		if r.Conflict {
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, int64(50), profileXP(t, db, p.ID))

	var rows int64
	require.NoError(t, db.Model(&models.CheckIn{}).Where("user_profile_id = ?", p.ID).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestCheckinMissingProfileRollsBack(t *testing.T) {
	db := testutil.DB(t)
	svc := newService(t, db)

	res, err := svc.Checkin(context.Background(), "00000000-0000-0000-0000-000000000000", Input{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.False(t, res.OK)
	assert.False(t, res.Conflict)

	var rows int64
	require.NoError(t, db.Model(&models.CheckIn{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestCheckinEmptyUser(t *testing.T) {
	svc := newService(t, testutil.DB(t))
	res, err := svc.Checkin(context.Background(), " ", Input{})
	require.Error(t, err)
	assert.False(t, res.OK)
}

func TestNewServiceRejectsBadTable(t *testing.T) {
	_, err := NewService(nil, streak.XPTable{BaseXP: 10})
	assert.ErrorIs(t, err, streak.ErrNoTiers)
}

func TestStatusAndHistory(t *testing.T) {
	db := testutil.DB(t)
	svc := newService(t, db)
	p := testutil.SeedProfile(t, db, "0xabc")
	testutil.SeedCheckins(t, db, p.ID, "2026-05-17", "2026-05-18", "2026-05-19")

	st, err := svc.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, st.CurrentStreak)
	assert.Equal(t, 4, st.NextStreak)
	assert.False(t, st.CheckedInToday)
	assert.Equal(t, "2026-05-19", st.LastCheckinDay)

	today, err := svc.Today(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Nil(t, today)

	hist, err := svc.History(context.Background(), p.ID, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "2026-05-19", hist[0].CheckinDay)
	assert.Equal(t, "2026-05-18", hist[1].CheckinDay)
}

func TestGreetingIsTruncated(t *testing.T) {
	long := make([]rune, 200)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, []rune(cleanGreeting(string(long))), maxGreetingRunes)
	assert.Equal(t, "hello", cleanGreeting("<script>alert(1)</script>hello"))
}

func TestCheckinInsertCollisionIsConflict(t *testing.T) {
	db := testutil.DB(t)
	svc := newService(t, db)
	p := testutil.SeedProfile(t, db, "0xabc")
	testutil.SeedCheckins(t, db, p.ID, "2026-05-19")
	before := profileXP(t, db, p.ID)

	// another writer lands today's row after the history read, so only the unique
	// index can reject the insert
	var raced bool
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:race_today", func(tx *gorm.DB) {
		if raced || tx.Statement.Schema == nil || tx.Statement.Schema.Table != "user_activities" {
			return
		}
		raced = true
		row := &models.CheckIn{UserProfileID: p.ID, CheckinDay: streak.DayKey(fixedNow), Streak: 2}
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(row).Error; err != nil {
			_ = tx.AddError(err)
		}
	}))

	res, err := svc.Checkin(context.Background(), p.ID, Input{Greeting: "gm"})
	require.NoError(t, err)
	require.True(t, raced)
	assert.False(t, res.OK)
	assert.True(t, res.Conflict)
	assert.Nil(t, res.NewXP)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, before, profileXP(t, db, p.ID))

	var rows int64
	require.NoError(t, db.Model(&models.CheckIn{}).Where("user_profile_id = ?", p.ID).Count(&rows).Error)
	assert.Equal(t, int64(1), rows, "transaction rolled back")
}

func TestCheckinAfterSkewedFutureRowIsConflict(t *testing.T) {
	db := testutil.DB(t)
	svc := newService(t, db)
	p := testutil.SeedProfile(t, db, "0xabc")
	testutil.SeedCheckins(t, db, p.ID, "2026-05-21")

	res, err := svc.Checkin(context.Background(), p.ID, Input{})
	require.NoError(t, err)
	assert.True(t, res.Conflict)

	var rows int64
	require.NoError(t, db.Model(&models.CheckIn{}).Where("user_profile_id = ?", p.ID).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}
