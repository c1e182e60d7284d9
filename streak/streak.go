// Package streak computes daily check-in streaks and the XP a check-in awards.
// Everything here is pure: callers pass history and the current time.
package streak

import (
	"errors"
	"math"
	"sort"
	"time"
)

const dayLayout = "2006-01-02"

// Tier maps a minimum streak length to an XP multiplier.
type Tier struct {
	Name       string  `json:"name"`
	MinStreak  int     `json:"min_streak"`
	Multiplier float64 `json:"multiplier"`
}

// XPTable is the configured XP policy applied to a streak.
type XPTable struct {
	BaseXP       int64  `json:"base_xp"`
	BonusPerDay  int64  `json:"bonus_per_day"`
	MaxBonusDays int    `json:"max_bonus_days"`
	Tiers        []Tier `json:"tiers"`
}

// Breakdown itemizes the XP a check-in awards.
type Breakdown struct {
	BaseXP      int64   `json:"base_xp"`
	Multiplier  float64 `json:"multiplier"`
	TierName    string  `json:"tier"`
	StreakBonus int64   `json:"streak_bonus"`
	Total       int64   `json:"total"`
}

// State is the derived streak view for a user at a point in time.
type State struct {
	CurrentStreak  int       `json:"current_streak"`
	NextStreak     int       `json:"next_streak"`
	CheckedInToday bool      `json:"checked_in_today"`
	LastCheckinDay string    `json:"last_checkin_day,omitempty"`
	Multiplier     float64   `json:"multiplier"`
	PreviewXP      int64     `json:"preview_xp"`
	Breakdown      Breakdown `json:"breakdown"`
}

var (
	ErrNoTiers        = errors.New("xp table has no tiers")
	ErrBadMultiplier  = errors.New("xp tier multiplier must be positive")
	ErrNegativeValues = errors.New("xp table values must not be negative")
)

// Validate checks the table is usable. Tiers are sorted by MinStreak in place.
func (t *XPTable) Validate() error {
	if len(t.Tiers) == 0 {
		return ErrNoTiers
	}
	if t.BaseXP < 0 || t.BonusPerDay < 0 || t.MaxBonusDays < 0 {
		return ErrNegativeValues
	}
	for _, tier := range t.Tiers {
		if tier.Multiplier <= 0 {
			return ErrBadMultiplier
		}
		if tier.MinStreak < 0 {
			return ErrNegativeValues
		}
	}
	sort.SliceStable(t.Tiers, func(i, j int) bool { return t.Tiers[i].MinStreak < t.Tiers[j].MinStreak })
	return nil
}

// TierFor returns the highest tier whose MinStreak is reached. A streak below every
// tier gets multiplier 1.
func (t XPTable) TierFor(streak int) Tier {
	best := Tier{Name: "", Multiplier: 1}
	found := false
	for _, tier := range t.Tiers {
		if streak >= tier.MinStreak && (!found || tier.MinStreak >= best.MinStreak) {
			best = tier
			found = true
		}
	}
	return best
}

// StreakBonus is BonusPerDay for each streak day, capped at MaxBonusDays.
func (t XPTable) StreakBonus(streak int) int64 {
	days := streak
	if t.MaxBonusDays > 0 && days > t.MaxBonusDays {
		days = t.MaxBonusDays
	}
	if days < 0 {
		days = 0
	}
	return t.BonusPerDay * int64(days)
}

// Award computes the XP breakdown for a check-in made while the streak is currentStreak.
func (t XPTable) Award(currentStreak int) Breakdown {
	tier := t.TierFor(currentStreak)
	// epsilon guards against 50*1.2 landing just under 60
	scaled := int64(math.Floor(float64(t.BaseXP)*tier.Multiplier + 1e-9))
	bonus := t.StreakBonus(currentStreak)
	return Breakdown{
		BaseXP:      t.BaseXP,
		Multiplier:  tier.Multiplier,
		TierName:    tier.Name,
		StreakBonus: bonus,
		Total:       scaled + bonus,
	}
}

// Evaluate derives the streak state from check-in days (distinct, ascending) at now.
// The streak is the run of consecutive UTC days ending today or yesterday; anything
// older means the streak is broken. A last day ahead of now counts as checked in today.
func Evaluate(days []time.Time, now time.Time, table XPTable) State {
	today := Day(now)
	st := State{}

	if n := len(days); n > 0 {
		last := Day(days[n-1])
		st.LastCheckinDay = DayKey(last)
		// clock skew between instances around midnight
		st.CheckedInToday = !last.Before(today)

		if st.CheckedInToday || last.Equal(today.AddDate(0, 0, -1)) {
			st.CurrentStreak = 1
			prev := last
			for i := n - 2; i >= 0; i-- {
				d := Day(days[i])
				if !d.Equal(prev.AddDate(0, 0, -1)) {
					break
				}
				st.CurrentStreak++
				prev = d
			}
		}
	}

	if st.CheckedInToday {
		st.NextStreak = st.CurrentStreak
	} else {
		st.NextStreak = st.CurrentStreak + 1
	}

	st.Breakdown = table.Award(st.CurrentStreak)
	st.Multiplier = st.Breakdown.Multiplier
	st.PreviewXP = st.Breakdown.Total
	return st
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey formats t's UTC calendar day as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// ParseDayKey parses a YYYY-MM-DD key as a UTC midnight.
func ParseDayKey(key string) (time.Time, error) {
	return time.ParseInLocation(dayLayout, key, time.UTC)
}

// ParseDayKeys converts stored day keys into times. A malformed key is an error.
func ParseDayKeys(keys []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(keys))
	for _, k := range keys {
		d, err := ParseDayKey(k)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
