package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tilecache/internal/infrastructure/http/v1/dto"
)

func (h *Handler) CacheStats(c *gin.Context) {
	resp := dto.CacheStatsResponse{
		TotalSizeBytes: h.tiles.TotalSize(c.Request.Context()),
		QuotaBytes:     h.tiles.Quota(),
	}

	h.RespondWithJSON(c, http.StatusOK, "cache stats", resp)
}

func (h *Handler) ClearCache(c *gin.Context) {
	if !h.tiles.Clear(c.Request.Context()) {
		h.RespondWithJSON(c, http.StatusInternalServerError, ErrCacheClearFailed.Error(), nil)
		return
	}

	requestLogger(c).Info("tile cache cleared by request")
	h.RespondWithJSON(c, http.StatusOK, "cache cleared", nil)
}
