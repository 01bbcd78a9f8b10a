package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/mulsewm/rossmann-sales-forecasting/config"
	"github.com/mulsewm/rossmann-sales-forecasting/middleware"
	"github.com/mulsewm/rossmann-sales-forecasting/services"
)

// Deps are the collaborators the HTTP surface needs. Cache and DB may be
// nil; the routes that need them degrade instead of failing startup.
type Deps struct {
	Registry *services.ModelRegistry
	Cache    *services.CacheService
	CacheTTL time.Duration
	DB       *gorm.DB
	Auth     *services.AuthService
	CORS     config.CORSConfig
	ModelDir string
	// RateLimit and RateBurst throttle /predict/; zero disables it.
	RateLimit float64
	RateBurst int
	Logger    *slog.Logger
}

func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.SetupCORS(d.CORS))

	predict := NewPredictionHandler(d.Registry, d.Cache, d.CacheTTL)
	model := NewModelHandler(d.Registry, d.ModelDir)
	runs := NewRunsHandler(d.DB)
	auth := NewAuthHandler(d.Auth)

	router.GET("/", predict.Root)
	router.POST("/predict/", middleware.RateLimit(d.RateLimit, d.RateBurst, d.Logger), predict.Predict)

	router.GET("/health", func(c *gin.Context) {
		status, code := "UP", http.StatusOK
		if _, _, err := d.Registry.Current(); err != nil {
			status, code = "DEGRADED", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"message": "Rossmann Sales Prediction API is running",
			"cache":   d.Cache.Available(),
			"db":      d.DB != nil,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/models", model.List)
	router.GET("/models/current", model.Current)
	router.GET("/models/runs", runs.GetRuns)

	router.POST("/auth/login", auth.Login)
	admin := router.Group("/admin", middleware.RequireRole(d.Auth, services.RoleAdmin))
	admin.POST("/reload", model.Reload)

	return router
}
