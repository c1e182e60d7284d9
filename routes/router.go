package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/p2einferno/inferno-checkin/checkin"
	"github.com/p2einferno/inferno-checkin/config"
	"github.com/p2einferno/inferno-checkin/controllers"
	"github.com/p2einferno/inferno-checkin/middleware"
	"github.com/p2einferno/inferno-checkin/quests"
	"github.com/p2einferno/inferno-checkin/schema"
	"github.com/p2einferno/inferno-checkin/utils"
)

// Services are the domain components the HTTP layer calls into.
type Services struct {
	Checkin   *checkin.Service
	Committer controllers.Committer
	Resolver  *schema.Resolver
	Quests    *quests.Registry
	Settings  func() controllers.AttestationSettings
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, svc Services) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	if svc.Settings == nil {
		svc.Settings = controllers.SettingsFromConfig
	}

	r := gin.New()
	// access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress, false)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, true))
	} else {
		utils.Sugar.Warnf("gin logger unavailable, using default recovery: %v", err)
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", controllers.ActiveWalletHeader, utils.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", utils.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(ctx.Request.Context()) != nil {
			utils.Error(ctx, http.StatusServiceUnavailable, 50300, "database unavailable")
			return
		}
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	checkinController := controllers.NewCheckinController(db, svc.Checkin, svc.Committer, svc.Settings, utils.Logger.Named("checkin"))
	attestationController := controllers.NewAttestationController(db, svc.Committer, svc.Resolver, svc.Settings, utils.Logger.Named("attest"))
	questController := controllers.NewQuestController(db, svc.Quests)
	statsController := controllers.NewStatsController(db)
	configController := controllers.NewConfigController(svc.Checkin.Table(), svc.Settings)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware())

	// Public
	api.GET("/health", func(ctx *gin.Context) { utils.Success(ctx, gin.H{"status": "ok"}) })
	api.GET("/stats", statsController.GetStats)
	api.GET("/config/checkin", configController.GetCheckin)
	api.GET("/attestations/schemas/:key", attestationController.Schema)
	api.GET("/quests/types", questController.Types)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitPerSubject(cfg.RateLimitPerMinute))
	protected.POST("/checkin", checkinController.Checkin)
	protected.GET("/checkin/status", checkinController.Status)
	protected.GET("/checkin/history", checkinController.History)
	protected.POST("/attestations/commit", attestationController.Commit)
	protected.POST("/quests/verify", questController.Verify)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
