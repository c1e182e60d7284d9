package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/p2einferno/inferno-checkin/attest"
	"github.com/p2einferno/inferno-checkin/checkin"
	"github.com/p2einferno/inferno-checkin/config"
	"github.com/p2einferno/inferno-checkin/policy"
	"github.com/p2einferno/inferno-checkin/utils"
)

// Committer is the attestation step used after a check-in.
type Committer interface {
	Commit(ctx context.Context, req attest.Request) (*attest.Result, error)
}

// AttestationSettings is the attestation configuration read for each request.
type AttestationSettings struct {
	Enabled         bool
	GracefulDegrade bool
	SchemaKey       string
	Network         string
}

// SettingsFromConfig reads AttestationSettings from the loaded configuration.
func SettingsFromConfig() AttestationSettings {
	cfg := config.Get()
	return AttestationSettings{
		Enabled:         cfg.EASEnabled,
		GracefulDegrade: cfg.EASGracefulDegrade,
		SchemaKey:       cfg.EASCheckinSchema,
		Network:         cfg.EASDefaultNetwork,
	}
}

// CheckinController handles daily check-in endpoints.
type CheckinController struct {
	db        *gorm.DB
	svc       *checkin.Service
	committer Committer
	settings  func() AttestationSettings
	log       *zap.Logger
}

// NewCheckinController creates a new controller instance.
func NewCheckinController(db *gorm.DB, svc *checkin.Service, committer Committer, settings func() AttestationSettings, log *zap.Logger) *CheckinController {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckinController{db: db, svc: svc, committer: committer, settings: settings, log: log}
}

type checkinRequest struct {
	Greeting string `json:"greeting"`
	// XPAmount is accepted for compatibility with older clients and never read.
	XPAmount    *int64                     `json:"xpAmount,omitempty"`
	Attestation *attest.DelegatedSignature `json:"attestation,omitempty"`
}

// Checkin records today's check-in, then attests it when attestations are enabled.
func (c *CheckinController) Checkin(ctx *gin.Context) {
	profile, ok := requireProfile(ctx, c.db)
	if !ok {
		return
	}

	var req checkinRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request body")
			return
		}
	}

	wallet, ok := requireWallet(ctx, c.db, profile)
	if !ok {
		return
	}

	settings := c.settings()
	mode := policy.ModeFromConfig(settings.GracefulDegrade)
	attesting := settings.Enabled && req.Attestation != nil
	if settings.Enabled && mode == policy.FailClosed && req.Attestation == nil {
		utils.Error(ctx, http.StatusBadRequest, 40031, "attestation signature required")
		return
	}
	// a foreign recipient blocks in every mode, so reject it before writing anything
	if attesting && !sameWallet(req.Attestation.Recipient, wallet) {
		utils.Error(ctx, http.StatusBadRequest, policy.CodeAttestationInvalid, "Attestation rejected: "+attest.CodeRecipientMismatch)
		return
	}

	res, err := c.svc.Checkin(ctx.Request.Context(), profile.ID, checkin.Input{
		Greeting:      req.Greeting,
		WalletAddress: wallet,
	})
	switch {
	case err != nil:
		c.log.Error("check-in failed", zap.String("user_profile_id", profile.ID), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50030, "Check-in failed")
		return
	case res.Conflict:
		utils.ErrorWithData(ctx, http.StatusConflict, 40930, "Already checked in today", gin.H{
			"streak":   res.Streak,
			"xpEarned": 0,
		})
		return
	case !res.OK:
		utils.Error(ctx, http.StatusInternalServerError, 50030, "Check-in failed")
		return
	case res.NewXP == nil:
		utils.Error(ctx, http.StatusInternalServerError, 50031, "Check-in result invalid")
		return
	}

	var attestationUID *string
	if attesting {
		ares, aerr := c.committer.Commit(ctx.Request.Context(), attest.Request{
			Signature:       req.Attestation,
			SchemaKey:       settings.SchemaKey,
			Network:         networkOr(req.Attestation.Network, settings.Network),
			GracefulDegrade: mode == policy.GracefulDegrade,
			WalletAddress:   wallet,
			Target:          attest.TargetRef{Kind: attest.TargetCheckin, ID: res.Record.ID, UserProfileID: profile.ID},
			Expect: map[string]any{
				"walletAddress": wallet,
				"xpGained":      res.XPEarned,
				"currentStreak": int64(res.Streak),
			},
		})
		d := policy.Decide(ares, aerr, mode)
		if d.Block {
			// the check-in row stays committed; the client retries the attestation alone
			c.log.Warn("check-in attestation blocked response",
				zap.String("user_profile_id", profile.ID),
				zap.String("checkin_id", res.Record.ID),
				zap.Error(aerr),
			)
			utils.Error(ctx, d.Status, d.Code, d.Message)
			return
		}
		if d.Swallowed != nil {
			c.log.Warn("check-in attestation skipped", zap.String("checkin_id", res.Record.ID), zap.Error(d.Swallowed))
		}
		attestationUID = d.AttestationUID
	}

	utils.Success(ctx, gin.H{
		"checkinId":      res.Record.ID,
		"streak":         res.Streak,
		"xpEarned":       res.XPEarned,
		"newXp":          *res.NewXP,
		"breakdown":      res.Breakdown,
		"attestationUid": attestationUID,
	})
}

// Status returns the streak state and the XP the next check-in would award.
func (c *CheckinController) Status(ctx *gin.Context) {
	profile, ok := requireProfile(ctx, c.db)
	if !ok {
		return
	}
	st, err := c.svc.Status(ctx.Request.Context(), profile.ID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to load check-in status")
		return
	}
	var attestationUID *string
	if st.CheckedInToday {
		if today, err := c.svc.Today(ctx.Request.Context(), profile.ID); err == nil && today != nil {
			attestationUID = today.AttestationUID
		}
	}
	utils.Success(ctx, gin.H{
		"currentStreak":  st.CurrentStreak,
		"nextStreak":     st.NextStreak,
		"checkedInToday": st.CheckedInToday,
		"lastCheckinDay": st.LastCheckinDay,
		"multiplier":     st.Multiplier,
		"previewXp":      st.PreviewXP,
		"breakdown":      st.Breakdown,
		"attestationUid": attestationUID,
		"experience":     profile.ExperiencePoints,
		"serverTime":     time.Now().UTC(),
	})
}

// History lists recent check-ins, newest first.
func (c *CheckinController) History(ctx *gin.Context) {
	profile, ok := requireProfile(ctx, c.db)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "30"))
	rows, err := c.svc.History(ctx.Request.Context(), profile.ID, limit)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50033, "failed to load check-in history")
		return
	}
	utils.Success(ctx, gin.H{"items": rows, "count": len(rows)})
}
