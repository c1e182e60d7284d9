package models

import "time"

// MilestoneClaim records a claimed bootcamp milestone reward; it can carry an attestation.
type MilestoneClaim struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserProfileID  string    `gorm:"size:36;not null;uniqueIndex:idx_milestone_claim,priority:1" json:"user_profile_id"`
	MilestoneID    string    `gorm:"size:64;not null;uniqueIndex:idx_milestone_claim,priority:2" json:"milestone_id"`
	AttestationUID *string   `gorm:"size:66" json:"attestation_uid"`
	CreatedAt      time.Time `json:"created_at"`
}

func (MilestoneClaim) TableName() string { return "milestone_claims" }
