// Package queue runs generation jobs on a bounded worker pool.
package queue

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/zzn199216/hum2song-webui/internal/errors"
	"github.com/zzn199216/hum2song-webui/internal/logger"
	"github.com/zzn199216/hum2song-webui/internal/pipeline"
	"go.uber.org/zap"
)

// queueCapacity bounds the backlog; submits beyond it are rejected.
const queueCapacity = 100

// maxDefaultWorkers caps the worker pool when sizing from CPU count.
const maxDefaultWorkers = 8

// Processor is the work a queue worker performs for one job.
type Processor interface {
	Process(ctx context.Context, job pipeline.Job)
}

// Queue fans queued jobs out to a fixed pool of workers.
type Queue struct {
	processor Processor
	jobs      chan pipeline.Job
	workers   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// For testing: signals completed task ids
	jobCompleted chan string
}

// New builds a queue. workerCount <= 0 sizes the pool from the CPU
// count, capped at maxDefaultWorkers.
func New(processor Processor, workerCount int) *Queue {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
		if workerCount > maxDefaultWorkers {
			workerCount = maxDefaultWorkers
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		processor:    processor,
		jobs:         make(chan pipeline.Job, queueCapacity),
		workers:      workerCount,
		ctx:          ctx,
		cancel:       cancel,
		jobCompleted: make(chan string, queueCapacity),
	}
}

// Start launches the worker pool.
func (q *Queue) Start() {
	logger.Log.Info("Starting generation queue", zap.Int("workers", q.workers))

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop cancels in-flight work and waits for every worker to exit.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
	logger.Log.Info("Generation queue stopped")
}

// Submit enqueues a job without blocking. A full backlog returns
// QUEUE_FULL.
func (q *Queue) Submit(job pipeline.Job) error {
	select {
	case q.jobs <- job:
		logger.Log.Debug("Job queued",
			logger.WithTaskID(job.TaskID),
			zap.Int("backlog", len(q.jobs)),
		)
		return nil
	default:
		return errors.QueueFull()
	}
}

// Backlog reports how many jobs are waiting for a worker.
func (q *Queue) Backlog() int {
	return len(q.jobs)
}

// WaitForTask blocks until a worker finishes the task or the timeout
// elapses (for testing).
func (q *Queue) WaitForTask(taskID string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case doneID := <-q.jobCompleted:
			if doneID == taskID {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for task %s", taskID)
		case <-q.ctx.Done():
			return fmt.Errorf("queue stopped")
		}
	}
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	logger.Log.Info("Generation worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case job := <-q.jobs:
			q.processor.Process(q.ctx, job)
			q.signalCompletion(job.TaskID)

		case <-q.ctx.Done():
			logger.Log.Info("Generation worker shutting down", zap.Int("worker_id", workerID))
			return
		}
	}
}

func (q *Queue) signalCompletion(taskID string) {
	select {
	case q.jobCompleted <- taskID:
	default:
	}
}
