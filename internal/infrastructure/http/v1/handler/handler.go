package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/tilecache/internal/usecase"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/logger"
)

type TileCache interface {
	GetOrFetch(ctx context.Context, url string) (usecase.Tile, bool)
	TotalSize(ctx context.Context) int64
	Clear(ctx context.Context) bool
	Quota() int64
}

type DownloadJobs interface {
	Start(req usecase.DownloadRequest) (usecase.Job, error)
	Get(id string) (usecase.Job, error)
	List() []usecase.Job
	Cancel(id string) error
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type Handler struct {
	validate      *validator.Validate
	tiles         TileCache
	jobs          DownloadJobs
	tileTemplate  string
	templateHosts map[string]struct{}
}

// NewHandler builds the API handlers. Download requests may override the tile template only
// with one whose host is the default template's host or listed in allowedTemplateHosts.
func NewHandler(v *validator.Validate, tiles TileCache, jobs DownloadJobs, tileTemplate string, allowedTemplateHosts []string) *Handler {
	hosts := map[string]struct{}{
		templateHost(tileTemplate): {},
	}
	for _, h := range allowedTemplateHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts[h] = struct{}{}
		}
	}

	return &Handler{
		validate:      v,
		tiles:         tiles,
		jobs:          jobs,
		tileTemplate:  tileTemplate,
		templateHosts: hosts,
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (h *Handler) RespondWithInternalServerError(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusInternalServerError, InternalServerError.Error(), nil)
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	r := response{
		Success: code < 400,
		Message: message,
		Data:    data,
	}

	c.JSON(code, r)
}

// requestLogger returns the logger installed by the router middleware.
func requestLogger(c *gin.Context) logger.Logger {
	if l, ok := c.Get("logger"); ok {
		if l, ok := l.(logger.Logger); ok {
			return l
		}
	}
	return logger.FromContext(c.Request.Context())
}
