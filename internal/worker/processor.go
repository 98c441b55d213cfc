// Package worker contiene el procesador de difusiones pendientes.
package worker

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/adcondev/convo-daemon/internal/protocol"
	"github.com/adcondev/convo-daemon/internal/server"
	workererrors "github.com/adcondev/convo-daemon/internal/worker/errors"
)

// Config holds worker configuration
type Config struct {
	// JobTimeout bounds the participant lookup and sends of one job.
	JobTimeout time.Duration
}

// Broadcaster fans a message out to a conversation
type Broadcaster interface {
	BroadcastToConversation(ctx context.Context, conversationID string, msg protocol.BroadcastMessage, excludeUserID string) (server.BroadcastReport, error)
}

// Worker consumes broadcast jobs from the queue and runs the fan-out
type Worker struct {
	jobQueue    <-chan *server.BroadcastJob
	broadcaster Broadcaster
	config      Config
	stopChan    chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	stats       Statistics
}

// NewWorker creates a new broadcast worker
func NewWorker(jobQueue <-chan *server.BroadcastJob, broadcaster Broadcaster, config Config) *Worker {
	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Second
	}
	return &Worker{
		jobQueue:    jobQueue,
		broadcaster: broadcaster,
		config:      config,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the worker goroutine
func (w *Worker) Start() {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run()

	log.Println("[WORKER] ✅ Broadcast worker started and ready")
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	s := w.Stats()
	log.Printf("[WORKER] 🛑 Broadcast worker stopped (processed: %d, failed: %d)", s.JobsProcessed, s.JobsFailed)
}

// run is the main worker loop
func (w *Worker) run() {
	defer w.wg.Done()

	log.Println("[WORKER] 👂 Waiting for broadcast jobs...")

	for {
		select {
		case <-w.stopChan:
			log.Println("[WORKER] 📴 Received stop signal")
			w.drain()
			return

		case job, ok := <-w.jobQueue:
			if !ok {
				log.Println("[WORKER] 📴 Job channel closed, exiting")
				return
			}
			w.processJob(job)
		}
	}
}

// drain runs the jobs already accepted into the queue, each under JobTimeout
func (w *Worker) drain() {
	drained := 0
	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				log.Printf("[WORKER] 🧹 Drained %d buffered jobs (channel closed)", drained)
				return
			}
			w.processJob(job)
			drained++
		default:
			if drained > 0 {
				log.Printf("[WORKER] 🧹 Drained %d buffered jobs before stopping", drained)
			}
			return
		}
	}
}

// processJob handles a single broadcast job
func (w *Worker) processJob(job *server.BroadcastJob) {
	startTime := time.Now()

	report, err := w.execute(job)
	duration := time.Since(startTime)

	w.mu.Lock()
	w.stats.LastJobTime = time.Now()
	if err != nil {
		w.stats.JobsFailed++
		w.stats.LastError = workererrors.ExtractUserFriendlyError(err)
	} else {
		w.stats.JobsProcessed++
		w.stats.MessagesDelivered += int64(report.Delivered())
		w.stats.MessagesQueued += int64(report.Queued())
	}
	w.mu.Unlock()

	if err != nil {
		log.Printf("[WORKER] ❌ Job %s FAILED after %v: %v", job.ID, duration, err)
		return
	}
	log.Printf("[WORKER] ✅ Job %s completed in %v (delivered: %d, queued: %d)",
		job.ID, duration.Round(time.Millisecond), report.Delivered(), report.Queued())
}

func (w *Worker) execute(job *server.BroadcastJob) (report server.BroadcastReport, err error) {
	// Capturar panics y convertirlos en errores
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic recovered in broadcast: %v", r)
			log.Printf("[WORKER] 💥 Panic in job %s: %v\nStack: %s", job.ID, r, debug.Stack())
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.config.JobTimeout)
	defer cancel()

	return w.broadcaster.BroadcastToConversation(ctx, job.ConversationID, job.Message, job.ExcludeUserID)
}

// Stats returns current worker statistics
func (w *Worker) Stats() Statistics {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.stats
	s.IsRunning = w.isRunning
	return s
}

// Statistics holds worker runtime statistics
type Statistics struct {
	IsRunning         bool      `json:"is_running"`
	JobsProcessed     int64     `json:"jobs_processed"`
	JobsFailed        int64     `json:"jobs_failed"`
	MessagesDelivered int64     `json:"messages_delivered"`
	MessagesQueued    int64     `json:"messages_queued"`
	LastJobTime       time.Time `json:"last_job_time,omitempty"`
	LastError         string    `json:"last_error,omitempty"`
}
