// Package testutil provides an isolated in-memory database and fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/p2einferno/inferno-checkin/config"
	"github.com/p2einferno/inferno-checkin/models"
)

// DB opens a fresh in-memory sqlite database with every model migrated. Each call gets
// its own database; a single connection serializes transactions the way row locks
// would on postgres.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := config.OpenDatabase("sqlite", dsn, "silent")
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	return db
}

// Logger returns a zap logger that writes through tb.
func Logger(tb testing.TB) *zap.Logger {
	tb.Helper()
	return zaptest.NewLogger(tb)
}

// Clock returns a fixed time source.
func Clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func SeedProfile(tb testing.TB, db *gorm.DB, wallet string) *models.UserProfile {
	tb.Helper()
	p := &models.UserProfile{
		PrivyUserID:   "did:privy:" + uuid.NewString(),
		Username:      "player",
		WalletAddress: wallet,
	}
	if err := db.WithContext(context.Background()).Create(p).Error; err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return p
}

func SeedWallet(tb testing.TB, db *gorm.DB, profileID, address string) {
	tb.Helper()
	if err := db.Create(&models.UserWallet{UserProfileID: profileID, Address: address}).Error; err != nil {
		tb.Fatalf("seed wallet: %v", err)
	}
}

// SeedCheckins inserts one check-in per day key with a zero XP award.
func SeedCheckins(tb testing.TB, db *gorm.DB, profileID string, dayKeys ...string) {
	tb.Helper()
	for i, day := range dayKeys {
		row := &models.CheckIn{
			UserProfileID: profileID,
			ActivityType:  models.ActivityDailyCheckin,
			CheckinDay:    day,
			Streak:        i + 1,
		}
		if err := db.Create(row).Error; err != nil {
			tb.Fatalf("seed checkin %s: %v", day, err)
		}
	}
}

func SeedSchema(tb testing.TB, db *gorm.DB, row models.AttestationSchema) *models.AttestationSchema {
	tb.Helper()
	if err := db.Create(&row).Error; err != nil {
		tb.Fatalf("seed schema: %v", err)
	}
	return &row
}
