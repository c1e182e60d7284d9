// Package workers runs periodic maintenance jobs.
package workers

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/p2einferno/inferno-checkin/models"
	"github.com/p2einferno/inferno-checkin/streak"
)

// Purger drops expired cache entries.
type Purger interface {
	Purge() int
}

// Config selects which jobs run and how often. A zero interval disables the job.
type Config struct {
	CachePurgeInterval time.Duration
	UnattestedInterval time.Duration
	// ReportUnattested is only meaningful while attestations are enabled.
	ReportUnattested bool
}

// Scheduler owns the gocron scheduler and its jobs.
type Scheduler struct {
	sched gocron.Scheduler
	db    *gorm.DB
	cache Purger
	now   func() time.Time
	log   *zap.Logger
}

// New registers the configured jobs. cache may be nil when no in-process cache exists.
func New(cfg Config, db *gorm.DB, cache Purger, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	s := &Scheduler{sched: sched, db: db, cache: cache, now: time.Now, log: log}

	if cache != nil && cfg.CachePurgeInterval > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.CachePurgeInterval),
			gocron.NewTask(s.PurgeCache),
			gocron.WithName("schema-cache-purge"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, err
		}
	}
	if cfg.ReportUnattested && cfg.UnattestedInterval > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.UnattestedInterval),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				_, _ = s.ReportUnattested(ctx)
			}),
			gocron.WithName("unattested-checkins"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.sched.Jobs())))
}

func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}

// PurgeCache removes expired schema cache entries.
func (s *Scheduler) PurgeCache() {
	if n := s.cache.Purge(); n > 0 {
		s.log.Debug("purged schema cache entries", zap.Int("count", n))
	}
}

// ReportUnattested counts today's check-ins without an attestation UID and logs them.
// It does not retry them; users re-invoke the commit endpoint.
func (s *Scheduler) ReportUnattested(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.CheckIn{}).
		Where("activity_type = ? AND checkin_day = ? AND attestation_uid IS NULL",
			models.ActivityDailyCheckin, streak.DayKey(s.now())).
		Count(&n).Error
	if err != nil {
		s.log.Error("unattested check-in report failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.log.Warn("check-ins without attestation", zap.Int64("count", n), zap.String("day", streak.DayKey(s.now())))
	}
	return n, nil
}
