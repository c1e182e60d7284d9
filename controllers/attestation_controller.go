package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/p2einferno/inferno-checkin/attest"
	"github.com/p2einferno/inferno-checkin/models"
	"github.com/p2einferno/inferno-checkin/policy"
	"github.com/p2einferno/inferno-checkin/schema"
	"github.com/p2einferno/inferno-checkin/utils"
)

// AttestationController exposes re-invocable attestation commits and schema lookup.
type AttestationController struct {
	db        *gorm.DB
	committer Committer
	resolver  *schema.Resolver
	settings  func() AttestationSettings
	log       *zap.Logger
}

func NewAttestationController(db *gorm.DB, committer Committer, resolver *schema.Resolver, settings func() AttestationSettings, log *zap.Logger) *AttestationController {
	if log == nil {
		log = zap.NewNop()
	}
	return &AttestationController{db: db, committer: committer, resolver: resolver, settings: settings, log: log}
}

type commitRequest struct {
	Target    string                     `json:"target" binding:"required"`
	RecordID  string                     `json:"recordId" binding:"required"`
	SchemaKey string                     `json:"schemaKey" binding:"required"`
	Network   string                     `json:"network"`
	Signature *attest.DelegatedSignature `json:"signature" binding:"required"`
}

// Commit attests an existing record. Calling it again for an attested record returns
// the stored UID without a new transaction.
func (a *AttestationController) Commit(ctx *gin.Context) {
	profile, ok := requireProfile(ctx, a.db)
	if !ok {
		return
	}
	var req commitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request body")
		return
	}
	settings := a.settings()
	if !settings.Enabled {
		utils.Error(ctx, http.StatusServiceUnavailable, 50340, "attestations are disabled")
		return
	}
	wallet, ok := requireWallet(ctx, a.db, profile)
	if !ok {
		return
	}

	ref := attest.TargetRef{Kind: req.Target, ID: req.RecordID, UserProfileID: profile.ID}
	expect := map[string]any{"walletAddress": wallet}
	if req.Target == attest.TargetCheckin {
		var row models.CheckIn
		if err := a.db.WithContext(ctx.Request.Context()).
			Where("id = ? AND user_profile_id = ?", req.RecordID, profile.ID).
			Take(&row).Error; err == nil {
			expect["xpGained"] = row.XPEarned
			expect["currentStreak"] = int64(row.Streak)
		}
	}

	res, err := a.committer.Commit(ctx.Request.Context(), attest.Request{
		Signature:       req.Signature,
		SchemaKey:       req.SchemaKey,
		Network:         networkOr(req.Network, networkOr(req.Signature.Network, settings.Network)),
		GracefulDegrade: settings.GracefulDegrade,
		WalletAddress:   wallet,
		Target:          ref,
		Expect:          expect,
	})
	// an explicit commit always reports failures
	d := policy.Decide(res, err, policy.FailClosed)
	if d.Block {
		a.log.Warn("attestation commit failed",
			zap.String("target", req.Target),
			zap.String("record_id", req.RecordID),
			zap.Error(err),
		)
		var data any
		if res != nil && res.TxHash != "" {
			data = gin.H{"txHash": res.TxHash}
		}
		utils.ErrorWithData(ctx, d.Status, d.Code, d.Message, data)
		return
	}
	utils.Success(ctx, res)
}

// Schema returns the current schema UID for a key on a network.
func (a *AttestationController) Schema(ctx *gin.Context) {
	key := strings.TrimSpace(ctx.Param("key"))
	network := ctx.DefaultQuery("network", a.settings().Network)
	entry, found, err := a.resolver.ResolveEntry(ctx.Request.Context(), key, network)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to resolve schema")
		return
	}
	if !found {
		utils.Error(ctx, http.StatusNotFound, 40441, "schema not configured")
		return
	}
	utils.Success(ctx, gin.H{
		"schemaKey":  key,
		"network":    network,
		"schemaUid":  entry.UID,
		"definition": entry.Definition,
		"revocable":  entry.Revocable,
	})
}
