package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/tilecache/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/logger"
)

// blockingDownloader reports 50% and then waits for release or cancellation.
type blockingDownloader struct {
	release chan struct{}
}

func newBlockingDownloader() *blockingDownloader {
	return &blockingDownloader{release: make(chan struct{})}
}

func (d *blockingDownloader) DownloadArea(ctx context.Context, req DownloadRequest, onProgress ProgressFunc) DownloadReport {
	onProgress(50)
	select {
	case <-d.release:
		onProgress(100)
		return DownloadReport{Total: 2, Fetched: 2}
	case <-ctx.Done():
		return DownloadReport{Total: 2, Fetched: 1, Cancelled: true}
	}
}

func waitForJob(t *testing.T, jobs *DownloadJobs, id string, cond func(Job) bool) Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		job, err := jobs.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", id, err)
		}
		if cond(job) {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for job %s, last state %+v", id, job)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func finished(job Job) bool {
	return job.Status != JobRunning
}

func newTestJobs(d AreaDownloader, maxJobs, history int) *DownloadJobs {
	return NewDownloadJobs(d, config.Download{MaxConcurrentJobs: maxJobs, JobHistory: history}, logger.NewNop())
}

func TestDownloadJobs_Completes(t *testing.T) {
	d := newBlockingDownloader()
	jobs := newTestJobs(d, 1, 10)

	job, err := jobs.Start(DownloadRequest{Zoom: 12})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if job.ID == "" || job.Status != JobRunning {
		t.Fatalf("unexpected job %+v", job)
	}

	waitForJob(t, jobs, job.ID, func(j Job) bool { return j.Progress == 50 })
	close(d.release)

	done := waitForJob(t, jobs, job.ID, finished)
	if done.Status != JobCompleted {
		t.Errorf("expected completed, got %s", done.Status)
	}
	if done.Progress != 100 || done.Report.Fetched != 2 {
		t.Errorf("unexpected final state %+v", done)
	}
	if done.FinishedAt.IsZero() {
		t.Error("expected finish time")
	}
}

func TestDownloadJobs_TooManyJobs(t *testing.T) {
	d := newBlockingDownloader()
	jobs := newTestJobs(d, 1, 10)

	first, err := jobs.Start(DownloadRequest{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := jobs.Start(DownloadRequest{}); !errors.Is(err, ErrTooManyJobs) {
		t.Fatalf("expected ErrTooManyJobs, got %v", err)
	}

	close(d.release)
	waitForJob(t, jobs, first.ID, finished)

	if _, err := jobs.Start(DownloadRequest{}); err != nil {
		t.Fatalf("expected start after completion, got %v", err)
	}
}

func TestDownloadJobs_Cancel(t *testing.T) {
	d := newBlockingDownloader()
	jobs := newTestJobs(d, 1, 10)

	job, err := jobs.Start(DownloadRequest{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := jobs.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	done := waitForJob(t, jobs, job.ID, finished)
	if done.Status != JobCancelled || !done.Report.Cancelled {
		t.Errorf("expected cancelled job, got %+v", done)
	}

	// Cancelling a finished job is a no-op.
	if err := jobs.Cancel(job.ID); err != nil {
		t.Errorf("expected nil for finished job, got %v", err)
	}
}

func TestDownloadJobs_NotFound(t *testing.T) {
	jobs := newTestJobs(newBlockingDownloader(), 1, 10)

	if _, err := jobs.Get("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound from Get, got %v", err)
	}
	if err := jobs.Cancel("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound from Cancel, got %v", err)
	}
}

func TestDownloadJobs_History(t *testing.T) {
	d := newBlockingDownloader()
	close(d.release)
	jobs := newTestJobs(d, 1, 2)

	var ids []string
	for range 3 {
		job, err := jobs.Start(DownloadRequest{})
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		waitForJob(t, jobs, job.ID, finished)
		ids = append(ids, job.ID)
	}

	list := jobs.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 retained jobs, got %d", len(list))
	}
	if list[0].ID != ids[1] || list[1].ID != ids[2] {
		t.Errorf("expected the two newest jobs in start order, got %s, %s", list[0].ID, list[1].ID)
	}
	if _, err := jobs.Get(ids[0]); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected oldest job to be dropped, got %v", err)
	}
}

func TestDownloadJobs_Shutdown(t *testing.T) {
	d := newBlockingDownloader()
	jobs := newTestJobs(d, 2, 10)

	a, _ := jobs.Start(DownloadRequest{})
	b, _ := jobs.Start(DownloadRequest{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := jobs.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	for _, id := range []string{a.ID, b.ID} {
		job, err := jobs.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if job.Status != JobCancelled {
			t.Errorf("expected job %s cancelled, got %s", id, job.Status)
		}
	}

	if _, err := jobs.Start(DownloadRequest{}); !errors.Is(err, ErrShutdown) {
		t.Errorf("expected ErrShutdown, got %v", err)
	}
}
