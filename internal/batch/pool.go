package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docshot/pkg/capture"
	"docshot/pkg/logger"
	"docshot/pkg/ratelimit"
)

// Job represents a single capture request from a job file
type Job struct {
	Index      int
	URL        string
	OutputPath string
	Options    capture.Options
}

// Result represents the outcome of a capture job
type Result struct {
	Job      Job
	Capture  *capture.Result
	Skipped  bool
	Error    error
	Duration time.Duration
}

// Runner captures one job, usually in a fresh browser page
type Runner interface {
	Run(ctx context.Context, job Job) (*capture.Result, error)
}

// Tracker remembers finished captures across runs
type Tracker interface {
	IsCompleted(url, outputPath string) bool
	RecordCapture(url, outputPath string, width, height int) error
}

// WorkerPool runs capture jobs on a fixed number of workers
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	runner      Runner
	tracker     Tracker
	rateLimiter ratelimit.Limiter
	logger      logger.Logger
}

// NewWorkerPool creates a new capture worker pool. tracker and rateLimiter
// may be nil.
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	runner Runner,
	tracker Tracker,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		runner:      runner,
		tracker:     tracker,
		rateLimiter: rateLimiter,
		logger:      log,
	}
}

// Start initializes and starts all workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued jobs to finish and closes the result channel. It
// must be called once, after the last Submit.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("Worker pool stopped")
}

// Cancel aborts running captures and makes workers drop queued jobs
func (wp *WorkerPool) Cancel() {
	wp.cancel()
}

// Submit adds a new capture job to the queue
func (wp *WorkerPool) Submit(job Job) error {
	if wp.ctx.Err() != nil {
		return fmt.Errorf("worker pool is shutting down")
	}
	select {
	case wp.jobQueue <- job:
		wp.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"index": job.Index,
			"url":   job.URL,
		})
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Results returns the result channel for consuming capture results
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			wp.logger.DebugWithFields("Worker dropping job - context cancelled", map[string]interface{}{
				"worker_id": id,
				"index":     job.Index,
			})
			continue
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}

	if wp.tracker != nil && wp.tracker.IsCompleted(job.URL, job.OutputPath) {
		wp.logger.DebugWithFields("Capture already completed", map[string]interface{}{
			"worker_id": workerID,
			"url":       job.URL,
			"output":    job.OutputPath,
		})
		result.Skipped = true
		return result
	}

	if err := wp.rateLimiter.Wait(wp.ctx); err != nil {
		result.Error = fmt.Errorf("waiting for rate limit: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	res, err := wp.runner.Run(wp.ctx, job)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		wp.logger.ErrorWithFields("Worker failed to capture page", map[string]interface{}{
			"worker_id": workerID,
			"url":       job.URL,
			"error":     err.Error(),
			"duration":  result.Duration,
		})
		return result
	}
	result.Capture = res

	if wp.tracker != nil {
		if err := wp.tracker.RecordCapture(job.URL, job.OutputPath, res.Width, res.Height); err != nil {
			wp.logger.WithError(err).Warn("Failed to record capture in checkpoint")
		}
	}

	wp.logger.DebugWithFields("Worker completed job successfully", map[string]interface{}{
		"worker_id": workerID,
		"url":       job.URL,
		"output":    res.OutputPath,
		"duration":  result.Duration,
	})
	return result
}
