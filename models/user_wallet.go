package models

import "time"

// UserWallet is an additional wallet linked to a profile.
type UserWallet struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserProfileID string    `gorm:"size:36;not null;uniqueIndex:idx_wallet_owner,priority:1" json:"user_profile_id"`
	Address       string    `gorm:"size:42;not null;uniqueIndex:idx_wallet_owner,priority:2" json:"address"`
	CreatedAt     time.Time `json:"created_at"`
}

func (UserWallet) TableName() string { return "user_wallets" }
