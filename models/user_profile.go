package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserProfile is the platform profile behind an authenticated user.
// ExperiencePoints is the XP running total updated by check-ins.
type UserProfile struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	PrivyUserID      string    `gorm:"size:128;uniqueIndex;not null" json:"privy_user_id"`
	Username         string    `gorm:"size:64" json:"username"`
	WalletAddress    string    `gorm:"size:42;index" json:"wallet_address"`
	ExperiencePoints int64     `gorm:"not null;default:0" json:"experience_points"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (UserProfile) TableName() string { return "user_profiles" }

// BeforeCreate assigns an ID when the caller did not provide one.
func (p *UserProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
