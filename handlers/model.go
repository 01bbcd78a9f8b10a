package handlers

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mulsewm/rossmann-sales-forecasting/artifact"
	"github.com/mulsewm/rossmann-sales-forecasting/services"
)

type ModelHandler struct {
	registry *services.ModelRegistry
	dir      string
}

func NewModelHandler(registry *services.ModelRegistry, dir string) *ModelHandler {
	return &ModelHandler{registry: registry, dir: dir}
}

type ModelInfo struct {
	Artifact string            `json:"artifact"`
	Meta     artifact.Metadata `json:"meta"`
}

type ArtifactInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
	Serving   bool      `json:"serving"`
}

func (h *ModelHandler) Current(c *gin.Context) {
	bundle, path, err := h.registry.Current()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ModelInfo{Artifact: filepath.Base(path), Meta: bundle.Meta})
}

func (h *ModelHandler) List(c *gin.Context) {
	entries, err := artifact.List(h.dir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list models"})
		return
	}
	var serving string
	if _, path, err := h.registry.Current(); err == nil {
		serving = filepath.Base(path)
	}

	out := make([]ArtifactInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, ArtifactInfo{
			Name:      e.Name,
			CreatedAt: e.CreatedAt,
			Size:      e.Size,
			Serving:   e.Name == serving,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *ModelHandler) Reload(c *gin.Context) {
	changed, err := h.registry.Reload()
	ObserveReload(changed, err)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	bundle, path, err := h.registry.Current()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"changed": changed,
		"model":   ModelInfo{Artifact: filepath.Base(path), Meta: bundle.Meta},
	})
}
