package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tilecache/internal/infrastructure/http/v1/dto"
	"github.com/jaennil/guide_helper/backend/tilecache/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilecache/internal/usecase"
)

func (h *Handler) StartDownload(c *gin.Context) {
	l := requestLogger(c)

	var req dto.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn("failed to decode download request", "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, ErrFailedToDecodeRequestBody.Error(), nil)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		l.Warn("invalid download request", "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if req.Template != "" {
		if _, ok := h.templateHosts[templateHost(req.Template)]; !ok {
			l.Warn("download template host not allowed", "template", req.Template)
			h.RespondWithJSON(c, http.StatusBadRequest, ErrTemplateHostNotAllowed.Error(), nil)
			return
		}
	}

	job, err := h.jobs.Start(usecase.DownloadRequest{
		Bounds: tile.Bounds{
			North: req.Bounds.North,
			South: req.Bounds.South,
			East:  req.Bounds.East,
			West:  req.Bounds.West,
		},
		Zoom:     *req.Zoom,
		Template: req.Template,
	})
	switch {
	case errors.Is(err, usecase.ErrTooManyJobs):
		h.RespondWithJSON(c, http.StatusTooManyRequests, err.Error(), nil)
		return
	case errors.Is(err, usecase.ErrShutdown):
		h.RespondWithJSON(c, http.StatusServiceUnavailable, err.Error(), nil)
		return
	case err != nil:
		l.Error("failed to start download", "error", err)
		h.RespondWithInternalServerError(c)
		return
	}

	h.RespondWithJSON(c, http.StatusAccepted, "download started", toJobResponse(job))
}

func (h *Handler) ListDownloads(c *gin.Context) {
	jobs := h.jobs.List()

	resp := make([]dto.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, toJobResponse(job))
	}

	h.RespondWithJSON(c, http.StatusOK, "downloads", resp)
}

func (h *Handler) GetDownload(c *gin.Context) {
	job, err := h.jobs.Get(c.Param("id"))
	if err != nil {
		h.respondJobError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "download", toJobResponse(job))
}

func (h *Handler) CancelDownload(c *gin.Context) {
	id := c.Param("id")
	if err := h.jobs.Cancel(id); err != nil {
		h.respondJobError(c, err)
		return
	}

	job, err := h.jobs.Get(id)
	if err != nil {
		h.respondJobError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "download cancellation requested", toJobResponse(job))
}

func (h *Handler) respondJobError(c *gin.Context, err error) {
	if errors.Is(err, usecase.ErrJobNotFound) {
		h.RespondWithJSON(c, http.StatusNotFound, err.Error(), nil)
		return
	}

	requestLogger(c).Error("download job lookup failed", "error", err)
	h.RespondWithInternalServerError(c)
}

// templateHost returns the lower-cased host part of a tile URL template, placeholders kept.
func templateHost(template string) string {
	_, rest, ok := strings.Cut(template, "://")
	if !ok {
		return ""
	}
	host, _, _ := strings.Cut(rest, "/")
	return strings.ToLower(host)
}

func toJobResponse(job usecase.Job) dto.JobResponse {
	resp := dto.JobResponse{
		ID:        job.ID,
		Status:    string(job.Status),
		Progress:  job.Progress,
		StartedAt: job.StartedAt,
	}

	if job.Status != usecase.JobRunning {
		finished := job.FinishedAt
		resp.FinishedAt = &finished
		resp.Report = &dto.DownloadReport{
			Total:     job.Report.Total,
			Cached:    job.Report.Cached,
			Fetched:   job.Report.Fetched,
			Failed:    job.Report.Failed,
			Cancelled: job.Report.Cancelled,
			MinZoom:   job.Report.MinZoom,
			MaxZoom:   job.Report.MaxZoom,
		}
	}

	return resp
}
