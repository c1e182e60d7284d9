package models

import "time"

// AttestationSchema is one deployed version of an EAS schema on a network.
// The row with the latest CreatedAt for a (SchemaKey, Network) pair is current.
type AttestationSchema struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	SchemaKey        string    `gorm:"size:64;not null;index:idx_schema_key_network_created,priority:1" json:"schema_key"`
	Network          string    `gorm:"size:64;not null;index:idx_schema_key_network_created,priority:2" json:"network"`
	SchemaUID        string    `gorm:"size:66;not null" json:"schema_uid"`
	SchemaDefinition string    `gorm:"type:text;not null" json:"schema_definition"`
	ResolverAddress  string    `gorm:"size:42" json:"resolver_address"`
	Revocable        bool      `gorm:"not null" json:"revocable"`
	CreatedAt        time.Time `gorm:"index:idx_schema_key_network_created,priority:3" json:"created_at"`
}

func (AttestationSchema) TableName() string { return "attestation_schemas" }
