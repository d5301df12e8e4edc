package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/metrics"
)

var (
	ErrTooManyJobs = errors.New("too many download jobs running")
	ErrJobNotFound = errors.New("download job not found")
	ErrShutdown    = errors.New("download jobs are shut down")
)

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
)

// Job is a point-in-time snapshot of a download job.
type Job struct {
	ID         string
	Status     JobStatus
	Progress   float64
	Request    DownloadRequest
	Report     DownloadReport
	StartedAt  time.Time
	FinishedAt time.Time
}

type AreaDownloader interface {
	DownloadArea(ctx context.Context, req DownloadRequest, onProgress ProgressFunc) DownloadReport
}

type jobState struct {
	job    Job
	cancel context.CancelFunc
}

// DownloadJobs runs area downloads in the background and keeps their status for polling.
type DownloadJobs struct {
	downloader AreaDownloader
	maxRunning int
	history    int
	logger     logger.Logger

	mu      sync.Mutex
	jobs    map[string]*jobState
	order   []string
	running int
	closed  bool
	wg      sync.WaitGroup
}

func NewDownloadJobs(downloader AreaDownloader, cfg config.Download, l logger.Logger) *DownloadJobs {
	return &DownloadJobs{
		downloader: downloader,
		maxRunning: max(1, cfg.MaxConcurrentJobs),
		history:    max(0, cfg.JobHistory),
		logger:     l,
		jobs:       make(map[string]*jobState),
	}
}

func (d *DownloadJobs) Start(req DownloadRequest) (Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Job{}, ErrShutdown
	}
	if d.running >= d.maxRunning {
		return Job{}, ErrTooManyJobs
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctx = logger.WithLogger(ctx, d.logger)

	state := &jobState{
		job: Job{
			ID:        uuid.NewString(),
			Status:    JobRunning,
			Request:   req,
			StartedAt: time.Now(),
		},
		cancel: cancel,
	}
	d.jobs[state.job.ID] = state
	d.order = append(d.order, state.job.ID)
	d.running++
	metrics.DownloadJobsRunning.Inc()

	d.wg.Add(1)
	go d.run(ctx, state)

	d.logger.Info("download job started", "id", state.job.ID, "zoom", req.Zoom)
	return state.job, nil
}

func (d *DownloadJobs) run(ctx context.Context, state *jobState) {
	defer d.wg.Done()
	defer state.cancel()

	report := d.downloader.DownloadArea(ctx, state.job.Request, func(percent float64) {
		d.mu.Lock()
		state.job.Progress = percent
		d.mu.Unlock()
	})

	d.mu.Lock()
	defer d.mu.Unlock()

	state.job.Report = report
	state.job.FinishedAt = time.Now()
	if report.Cancelled {
		state.job.Status = JobCancelled
	} else {
		state.job.Status = JobCompleted
	}
	d.running--
	metrics.DownloadJobsRunning.Dec()
	d.trimHistory()

	d.logger.Info("download job finished", "id", state.job.ID, "status", state.job.Status)
}

// trimHistory drops the oldest finished jobs beyond the retention limit. Running jobs are
// always kept. Must be called with d.mu held.
func (d *DownloadJobs) trimHistory() {
	finished := len(d.order) - d.running
	if finished <= d.history {
		return
	}

	drop := finished - d.history
	kept := d.order[:0]
	for _, id := range d.order {
		if drop > 0 && d.jobs[id].job.Status != JobRunning {
			delete(d.jobs, id)
			drop--
			continue
		}
		kept = append(kept, id)
	}
	d.order = kept
}

func (d *DownloadJobs) Get(id string) (Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return state.job, nil
}

// List returns all retained jobs in start order.
func (d *DownloadJobs) List() []Job {
	d.mu.Lock()
	defer d.mu.Unlock()

	jobs := make([]Job, 0, len(d.order))
	for _, id := range d.order {
		jobs = append(jobs, d.jobs[id].job)
	}
	return jobs
}

// Cancel stops a running job. The job reaches the cancelled state once its current tile
// finishes. Cancelling a finished job is a no-op.
func (d *DownloadJobs) Cancel(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if state.job.Status == JobRunning {
		state.cancel()
	}
	return nil
}

// Shutdown cancels every running job and waits for them to stop or for ctx to expire.
// Start fails with ErrShutdown afterwards.
func (d *DownloadJobs) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	for _, state := range d.jobs {
		if state.job.Status == JobRunning {
			state.cancel()
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
