package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/p2einferno/inferno-checkin/models"
	"github.com/p2einferno/inferno-checkin/streak"
	"github.com/p2einferno/inferno-checkin/utils"
)

// StatsController provides check-in statistics.
type StatsController struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db, now: time.Now}
}

// GetStats returns aggregate check-in counts. Failed counts are reported as 0.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var users, total, today, attested int64
	day := streak.DayKey(s.now())
	db := s.db.WithContext(ctx.Request.Context())

	if err := db.Model(&models.UserProfile{}).Count(&users).Error; err != nil {
		users = 0
	}
	if err := db.Model(&models.CheckIn{}).Count(&total).Error; err != nil {
		total = 0
	}
	if err := db.Model(&models.CheckIn{}).Where("checkin_day = ?", day).Count(&today).Error; err != nil {
		today = 0
	}
	if err := db.Model(&models.CheckIn{}).
		Where("checkin_day = ? AND attestation_uid IS NOT NULL", day).
		Count(&attested).Error; err != nil {
		attested = 0
	}

	utils.Success(ctx, gin.H{
		"day":            day,
		"user_count":     users,
		"checkin_count":  total,
		"checkins_today": today,
		"attested_today": attested,
	})
}
