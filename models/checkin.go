package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityDailyCheckin is the only activity type written by the check-in flow.
const ActivityDailyCheckin = "daily_checkin"

// CheckIn is one daily check-in. The composite unique index enforces a single row per
// user per UTC day; rows are never updated except for AttestationUID.
type CheckIn struct {
	ID             string            `gorm:"primaryKey;size:36" json:"id"`
	UserProfileID  string            `gorm:"size:36;not null;uniqueIndex:idx_checkin_user_day,priority:1" json:"user_profile_id"`
	ActivityType   string            `gorm:"size:32;not null;uniqueIndex:idx_checkin_user_day,priority:2" json:"activity_type"`
	CheckinDay     string            `gorm:"size:10;not null;uniqueIndex:idx_checkin_user_day,priority:3;index" json:"checkin_day"`
	XPEarned       int64             `gorm:"not null;default:0" json:"xp_earned"`
	Streak         int               `gorm:"not null;default:0" json:"streak"`
	ActivityData   datatypes.JSONMap `json:"activity_data"`
	AttestationUID *string           `gorm:"size:66" json:"attestation_uid"`
	CreatedAt      time.Time         `gorm:"index" json:"created_at"`
}

func (CheckIn) TableName() string { return "user_activities" }

func (c *CheckIn) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.ActivityType == "" {
		c.ActivityType = ActivityDailyCheckin
	}
	return nil
}
