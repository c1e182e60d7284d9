package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/p2einferno/inferno-checkin/quests"
	"github.com/p2einferno/inferno-checkin/utils"
)

// QuestController verifies daily-quest tasks.
type QuestController struct {
	db       *gorm.DB
	registry *quests.Registry
}

func NewQuestController(db *gorm.DB, registry *quests.Registry) *QuestController {
	return &QuestController{db: db, registry: registry}
}

type verifyRequest struct {
	TaskType string         `json:"taskType" binding:"required"`
	Params   map[string]any `json:"params"`
}

func (q *QuestController) Verify(ctx *gin.Context) {
	profile, ok := requireProfile(ctx, q.db)
	if !ok {
		return
	}
	var req verifyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid request body")
		return
	}
	out, err := q.registry.Verify(ctx.Request.Context(), req.TaskType, quests.Input{
		UserProfileID: profile.ID,
		WalletAddress: profile.WalletAddress,
		Params:        req.Params,
	})
	if errors.Is(err, quests.ErrUnknownTask) {
		utils.Error(ctx, http.StatusBadRequest, 40051, err.Error())
		return
	}
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50050, "verification failed")
		return
	}
	utils.Success(ctx, out)
}

// Types lists supported task types.
func (q *QuestController) Types(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"taskTypes": q.registry.Types()})
}
