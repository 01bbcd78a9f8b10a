package handlers

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/mulsewm/rossmann-sales-forecasting/models"
	"github.com/mulsewm/rossmann-sales-forecasting/services"
)

const WelcomeMessage = "Welcome to the Rossmann Sales Prediction API"

type PredictionHandler struct {
	registry *services.ModelRegistry
	cache    *services.CacheService
	ttl      time.Duration
}

func NewPredictionHandler(registry *services.ModelRegistry, cache *services.CacheService, ttl time.Duration) *PredictionHandler {
	return &PredictionHandler{registry: registry, cache: cache, ttl: ttl}
}

func (h *PredictionHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": WelcomeMessage})
}

// Predict answers POST /predict/. Every failure, including an unloaded
// model, is reported as 400 with an error message.
func (h *PredictionHandler) Predict(c *gin.Context) {
	var req models.PredictionRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		predictionsFailed.WithLabelValues("invalid_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// One snapshot per request, so the cache key and the prediction come
	// from the same model even if a reload lands meanwhile.
	bundle, _, err := h.registry.Current()
	if err != nil {
		predictionsFailed.WithLabelValues("no_model").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Header("X-Model-ID", bundle.Meta.ID)

	var cacheKey string
	if raw, ok := c.Get(gin.BodyBytesKey); ok {
		if body, ok := raw.([]byte); ok {
			cacheKey = services.PredictionKey(bundle.Meta.ID, body)
		}
	}
	if cacheKey != "" {
		var cached models.PredictionResponse
		if hit, err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && hit {
			predictionCacheHits.Inc()
			predictionsServed.Inc()
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	start := time.Now()
	out, err := bundle.Pipeline.Predict(req.Frame())
	predictionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		predictionsFailed.WithLabelValues("predict").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if math.IsNaN(out[0]) || math.IsInf(out[0], 0) {
		predictionsFailed.WithLabelValues("predict").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "model produced a non-finite prediction"})
		return
	}

	resp := models.PredictionResponse{Store: *req.Store, PredictedSales: out[0]}
	if cacheKey != "" && h.cache.Available() {
		go h.cache.Set(context.Background(), cacheKey, resp, h.ttl)
	}
	predictionsServed.Inc()
	c.JSON(http.StatusOK, resp)
}
