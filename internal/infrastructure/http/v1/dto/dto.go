package dto

import "time"

type Bounds struct {
	North float64 `json:"north" validate:"gte=-90,lte=90,gtefield=South"`
	South float64 `json:"south" validate:"gte=-90,lte=90"`
	East  float64 `json:"east" validate:"gte=-180,lte=180"`
	West  float64 `json:"west" validate:"gte=-180,lte=180"`
}

type DownloadRequest struct {
	Bounds *Bounds `json:"bounds" validate:"required"`
	// Zoom is the current view zoom, fractional values allowed.
	Zoom     *float64 `json:"zoom" validate:"required,gte=0,lte=22"`
	Template string   `json:"template" validate:"omitempty,startswith=http,contains={z},contains={x},contains={y}"`
}

type DownloadReport struct {
	Total     int  `json:"total"`
	Cached    int  `json:"cached"`
	Fetched   int  `json:"fetched"`
	Failed    int  `json:"failed"`
	Cancelled bool `json:"cancelled"`
	MinZoom   int  `json:"min_zoom"`
	MaxZoom   int  `json:"max_zoom"`
}

type JobResponse struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Progress   float64         `json:"progress"`
	Report     *DownloadReport `json:"report,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

type CacheStatsResponse struct {
	TotalSizeBytes int64 `json:"total_size_bytes"`
	QuotaBytes     int64 `json:"quota_bytes"`
}
