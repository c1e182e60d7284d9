package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() XPTable {
	t := XPTable{
		BaseXP:       50,
		BonusPerDay:  5,
		MaxBonusDays: 30,
		Tiers: []Tier{
			{Name: "flame", MinStreak: 7, Multiplier: 1.2},
			{Name: "ember", MinStreak: 0, Multiplier: 1.0},
			{Name: "blaze", MinStreak: 30, Multiplier: 1.5},
		},
	}
	if err := t.Validate(); err != nil {
		panic(err)
	}
	return t
}

func days(now time.Time, offsets ...int) []time.Time {
	out := make([]time.Time, 0, len(offsets))
	for _, o := range offsets {
		out = append(out, now.AddDate(0, 0, -o))
	}
	return out
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name        string
		history     []time.Time
		wantCurrent int
		wantNext    int
		wantToday   bool
	}{
		{name: "no history", history: nil, wantCurrent: 0, wantNext: 1},
		{name: "continues from yesterday", history: days(now, 2, 1), wantCurrent: 2, wantNext: 3},
		{name: "already checked in today", history: days(now, 2, 1, 0), wantCurrent: 3, wantNext: 3, wantToday: true},
		{name: "gap of two days breaks", history: days(now, 3), wantCurrent: 0, wantNext: 1},
		{name: "only the trailing run counts", history: days(now, 6, 5, 3, 2, 1), wantCurrent: 3, wantNext: 4},
		{name: "single check-in yesterday", history: days(now, 1), wantCurrent: 1, wantNext: 2},
		{name: "day ahead of clock counts as today", history: days(now, -1), wantCurrent: 1, wantNext: 1, wantToday: true},
		{name: "run ending ahead of clock", history: days(now, 1, 0, -1), wantCurrent: 3, wantNext: 3, wantToday: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Evaluate(tt.history, now, testTable())
			assert.Equal(t, tt.wantCurrent, st.CurrentStreak)
			assert.Equal(t, tt.wantNext, st.NextStreak)
			assert.Equal(t, tt.wantToday, st.CheckedInToday)
		})
	}
}

func TestEvaluateUsesUTCDayBoundaries(t *testing.T) {
	// 23:30 UTC yesterday and 00:15 UTC today are different days even if a local zone disagrees.
	loc := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2026, 3, 10, 0, 15, 0, 0, time.UTC).In(loc)
	history := []time.Time{time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC).In(loc)}

	st := Evaluate(history, now, testTable())
	assert.Equal(t, 1, st.CurrentStreak)
	assert.False(t, st.CheckedInToday)
	assert.Equal(t, "2026-03-09", st.LastCheckinDay)
}

func TestAward(t *testing.T) {
	table := testTable()

	b := table.Award(0)
	assert.Equal(t, int64(50), b.Total)
	assert.Equal(t, "ember", b.TierName)

	b = table.Award(7)
	assert.Equal(t, int64(60+35), b.Total)
	assert.Equal(t, 1.2, b.Multiplier)

	// bonus is capped at MaxBonusDays
	b = table.Award(45)
	assert.Equal(t, int64(75+150), b.Total)
	assert.Equal(t, "blaze", b.TierName)
}

func TestPreviewMatchesAward(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	table := testTable()
	st := Evaluate(days(now, 8, 7, 6, 5, 4, 3, 2, 1), now, table)
	require.Equal(t, 8, st.CurrentStreak)
	assert.Equal(t, table.Award(8).Total, st.PreviewXP)
	assert.Equal(t, 1.2, st.Multiplier)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, (&XPTable{}).Validate(), ErrNoTiers)
	assert.ErrorIs(t, (&XPTable{Tiers: []Tier{{Multiplier: 0}}}).Validate(), ErrBadMultiplier)
	assert.ErrorIs(t, (&XPTable{BaseXP: -1, Tiers: []Tier{{Multiplier: 1}}}).Validate(), ErrNegativeValues)
}

func TestDayKeys(t *testing.T) {
	keys := []string{"2026-03-08", "2026-03-09"}
	parsed, err := ParseDayKeys(keys)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, "2026-03-09", DayKey(parsed[1]))

	_, err = ParseDayKeys([]string{"not-a-day"})
	assert.Error(t, err)
}
