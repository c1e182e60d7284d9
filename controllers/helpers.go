package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/p2einferno/inferno-checkin/middleware"
	"github.com/p2einferno/inferno-checkin/models"
	"github.com/p2einferno/inferno-checkin/utils"
)

// ActiveWalletHeader carries the wallet the client is currently using.
const ActiveWalletHeader = "X-Active-Wallet"

var (
	errNoProfile     = errors.New("user profile not found")
	errWalletInvalid = errors.New("active wallet is not a valid address")
	errWalletForeign = errors.New("active wallet is not linked to this user")
)

// currentProfile loads the profile behind the authenticated subject.
func currentProfile(ctx *gin.Context, db *gorm.DB) (*models.UserProfile, error) {
	subject := ctx.GetString(middleware.ContextSubjectKey)
	if subject == "" {
		return nil, errNoProfile
	}
	var p models.UserProfile
	err := db.WithContext(ctx.Request.Context()).Where("privy_user_id = ?", subject).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNoProfile
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// activeWallet returns the lowercased wallet the request acts for. A client-asserted
// wallet is only trusted when it is the profile wallet or a linked wallet.
func activeWallet(ctx *gin.Context, db *gorm.DB, p *models.UserProfile) (string, error) {
	asserted := strings.TrimSpace(ctx.GetHeader(ActiveWalletHeader))
	if asserted == "" {
		asserted = p.WalletAddress
	}
	if !common.IsHexAddress(asserted) {
		return "", errWalletInvalid
	}
	wallet := strings.ToLower(asserted)
	if strings.EqualFold(wallet, p.WalletAddress) {
		return wallet, nil
	}

	var n int64
	err := db.WithContext(ctx.Request.Context()).
		Model(&models.UserWallet{}).
		Where("user_profile_id = ? AND LOWER(address) = ?", p.ID, wallet).
		Count(&n).Error
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", errWalletForeign
	}
	return wallet, nil
}

// requireProfile loads the caller's profile or writes the error response.
func requireProfile(ctx *gin.Context, db *gorm.DB) (*models.UserProfile, bool) {
	p, err := currentProfile(ctx, db)
	if errors.Is(err, errNoProfile) {
		utils.Error(ctx, http.StatusNotFound, 40410, "user profile not found")
		return nil, false
	}
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to load profile")
		return nil, false
	}
	return p, true
}

// requireWallet resolves the active wallet or writes the error response.
func requireWallet(ctx *gin.Context, db *gorm.DB, p *models.UserProfile) (string, bool) {
	wallet, err := activeWallet(ctx, db, p)
	switch {
	case errors.Is(err, errWalletInvalid):
		utils.Error(ctx, http.StatusBadRequest, 40011, err.Error())
		return "", false
	case errors.Is(err, errWalletForeign):
		utils.Error(ctx, http.StatusForbidden, 40310, err.Error())
		return "", false
	case err != nil:
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to verify wallet")
		return "", false
	}
	return wallet, true
}

func sameWallet(a, b string) bool {
	return common.IsHexAddress(a) && common.IsHexAddress(b) && common.HexToAddress(a) == common.HexToAddress(b)
}

func networkOr(network, fallback string) string {
	if strings.TrimSpace(network) != "" {
		return network
	}
	return fallback
}
