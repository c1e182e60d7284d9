package models

// All lists every model migrated at boot.
func All() []interface{} {
	return []interface{}{
		&UserProfile{},
		&UserWallet{},
		&CheckIn{},
		&AttestationSchema{},
		&MilestoneClaim{},
	}
}
