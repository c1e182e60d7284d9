// Package checkin records daily check-ins and keeps the XP running total in step.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/p2einferno/inferno-checkin/models"
	"github.com/p2einferno/inferno-checkin/streak"
	"github.com/p2einferno/inferno-checkin/utils"
)

const maxGreetingRunes = 140

var (
	// ErrAlreadyCheckedIn is returned inside the transaction when today's row exists.
	ErrAlreadyCheckedIn = errors.New("already checked in today")
	// ErrProfileNotFound means the XP ledger row for the user does not exist.
	ErrProfileNotFound = errors.New("user profile not found")
)

// Input is the server-side view of a check-in request. It has no XP field; the award
// is always computed from stored history.
type Input struct {
	Greeting      string
	WalletAddress string
}

// Result is the outcome of a check-in attempt.
//
//	OK=false Conflict=true   already checked in today, Streak is the existing streak
//	OK=false Conflict=false  persistence failure (err is non-nil)
//	OK=true  NewXP=nil       invalid result, callers must treat as failure
//	OK=true  NewXP!=nil      success
type Result struct {
	OK        bool
	Conflict  bool
	NewXP     *int64
	XPEarned  int64
	Streak    int
	Breakdown streak.Breakdown
	Record    *models.CheckIn
}

// Service implements the atomic check-in transaction.
type Service struct {
	db    *gorm.DB
	table streak.XPTable
	now   func() time.Time
	log   *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a check-in service bound to an XP table.
func NewService(db *gorm.DB, table streak.XPTable, opts ...Option) (*Service, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("checkin: %w", err)
	}
	s := &Service{db: db, table: table, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Table returns the XP table in use.
func (s *Service) Table() streak.XPTable { return s.table }

// Checkin validates eligibility, inserts today's row and credits XP in one transaction.
// The (user, activity, day) unique index is the only mutual exclusion; a concurrent
// duplicate surfaces as a conflict rather than a second success.
func (s *Service) Checkin(ctx context.Context, userProfileID string, in Input) (*Result, error) {
	if strings.TrimSpace(userProfileID) == "" {
		return &Result{}, errors.New("checkin: empty user profile id")
	}

	now := s.now().UTC()
	dayKey := streak.DayKey(now)
	res := &Result{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		days, err := loadDays(tx, userProfileID)
		if err != nil {
			return err
		}

		st := streak.Evaluate(days, now, s.table)
		if st.CheckedInToday {
			return ErrAlreadyCheckedIn
		}

		bd := st.Breakdown
		record := models.CheckIn{
			UserProfileID: userProfileID,
			ActivityType:  models.ActivityDailyCheckin,
			CheckinDay:    dayKey,
			XPEarned:      bd.Total,
			Streak:        st.NextStreak,
			ActivityData: datatypes.JSONMap{
				"greeting":       cleanGreeting(in.Greeting),
				"wallet_address": strings.ToLower(in.WalletAddress),
				"streak":         st.NextStreak,
				"xp_breakdown":   bd,
			},
			CreatedAt: now,
		}
		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyCheckedIn
			}
			return err
		}

		upd := tx.Model(&models.UserProfile{}).
			Where("id = ?", userProfileID).
			UpdateColumn("experience_points", gorm.Expr("experience_points + ?", bd.Total))
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrProfileNotFound
		}

		var total int64
		if err := tx.Model(&models.UserProfile{}).
			Where("id = ?", userProfileID).
			Select("experience_points").
			Scan(&total).Error; err != nil {
			return err
		}

		res.OK = true
		res.NewXP = &total
		res.XPEarned = bd.Total
		res.Streak = st.NextStreak
		res.Breakdown = bd
		res.Record = &record
		return nil
	})

	if errors.Is(err, ErrAlreadyCheckedIn) {
		st, serr := s.Status(ctx, userProfileID)
		if serr != nil {
			return &Result{Conflict: true}, fmt.Errorf("checkin: load existing streak: %w", serr)
		}
		s.log.Debug("duplicate check-in", zap.String("user_profile_id", userProfileID), zap.String("day", dayKey))
		return &Result{Conflict: true, Streak: st.CurrentStreak}, nil
	}
	if err != nil {
		s.log.Error("check-in transaction failed", zap.String("user_profile_id", userProfileID), zap.Error(err))
		return &Result{}, fmt.Errorf("checkin: %w", err)
	}

	s.log.Info("check-in recorded",
		zap.String("user_profile_id", userProfileID),
		zap.Int("streak", res.Streak),
		zap.Int64("xp_earned", res.XPEarned),
	)
	return res, nil
}

// Status evaluates the user's streak from stored history.
func (s *Service) Status(ctx context.Context, userProfileID string) (streak.State, error) {
	days, err := loadDays(s.db.WithContext(ctx), userProfileID)
	if err != nil {
		return streak.State{}, err
	}
	return streak.Evaluate(days, s.now(), s.table), nil
}

// History returns the most recent check-ins, newest first.
func (s *Service) History(ctx context.Context, userProfileID string, limit int) ([]models.CheckIn, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	var rows []models.CheckIn
	err := s.db.WithContext(ctx).
		Where("user_profile_id = ? AND activity_type = ?", userProfileID, models.ActivityDailyCheckin).
		Order("checkin_day DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Today returns today's check-in, or nil when the user has not checked in.
func (s *Service) Today(ctx context.Context, userProfileID string) (*models.CheckIn, error) {
	var row models.CheckIn
	err := s.db.WithContext(ctx).
		Where("user_profile_id = ? AND activity_type = ? AND checkin_day = ?",
			userProfileID, models.ActivityDailyCheckin, streak.DayKey(s.now())).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func loadDays(tx *gorm.DB, userProfileID string) ([]time.Time, error) {
	var keys []string
	if err := tx.Model(&models.CheckIn{}).
		Where("user_profile_id = ? AND activity_type = ?", userProfileID, models.ActivityDailyCheckin).
		Order("checkin_day ASC").
		Pluck("checkin_day", &keys).Error; err != nil {
		return nil, err
	}
	return streak.ParseDayKeys(keys)
}

func cleanGreeting(s string) string {
	s = strings.TrimSpace(utils.SanitizeText(s))
	if utf8.RuneCountInString(s) > maxGreetingRunes {
		s = string([]rune(s)[:maxGreetingRunes])
	}
	return s
}
