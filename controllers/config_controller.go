package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/p2einferno/inferno-checkin/policy"
	"github.com/p2einferno/inferno-checkin/streak"
	"github.com/p2einferno/inferno-checkin/utils"
)

// ConfigController serves the public check-in configuration used by clients to render
// tiers and build attestation payloads.
type ConfigController struct {
	table    streak.XPTable
	settings func() AttestationSettings
}

func NewConfigController(table streak.XPTable, settings func() AttestationSettings) *ConfigController {
	return &ConfigController{table: table, settings: settings}
}

// GetCheckin returns the XP table and attestation switches.
func (c *ConfigController) GetCheckin(ctx *gin.Context) {
	s := c.settings()
	utils.Success(ctx, gin.H{
		"xp": c.table,
		"attestation": gin.H{
			"enabled":   s.Enabled,
			"mode":      policy.ModeFromConfig(s.GracefulDegrade).String(),
			"schemaKey": s.SchemaKey,
			"network":   s.Network,
		},
	})
}
