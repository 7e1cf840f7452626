package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/offerscrape/models"
	"github.com/use-agent/offerscrape/webhook"
	"golang.org/x/sync/errgroup"
)

// Batch job states.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchPartial    = "partial"
	BatchFailed     = "failed"
)

// batchJob is a BatchJob guarded for concurrent workers and readers.
type batchJob struct {
	mu  sync.Mutex
	job models.BatchJob
}

func (b *batchJob) record(idx int, item *models.BatchItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.job.Results[idx] = item
	b.job.Completed++
}

func (b *batchJob) snapshot() models.BatchStatusResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	results := make([]*models.BatchItem, len(b.job.Results))
	copy(results, b.job.Results)
	return models.BatchStatusResponse{
		ID:        b.job.ID,
		Status:    b.job.Status,
		Completed: b.job.Completed,
		Total:     b.job.Total,
		Results:   results,
	}
}

// BatchStore holds in-flight and finished batch jobs. Jobs older than the
// retention are dropped by a sweep; Close stops it.
type BatchStore struct {
	jobs      sync.Map
	retention time.Duration
	stop      chan struct{}
	once      sync.Once
}

// NewBatchStore creates a store that keeps jobs for retention.
func NewBatchStore(retention time.Duration) *BatchStore {
	s := &BatchStore{retention: retention, stop: make(chan struct{})}
	go s.sweepLoop()
	return s
}

// Close stops the sweep.
func (s *BatchStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *BatchStore) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.sweep(now)
		case <-s.stop:
			return
		}
	}
}

func (s *BatchStore) sweep(now time.Time) {
	cutoff := now.Add(-s.retention).Unix()
	s.jobs.Range(func(key, value any) bool {
		if value.(*batchJob).job.CreatedAt < cutoff {
			s.jobs.Delete(key)
		}
		return true
	})
}

func (s *BatchStore) get(id string) (*batchJob, bool) {
	v, ok := s.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*batchJob), true
}

// PostBatch returns a handler for POST {prefix}/product/batch. It registers
// the job, fetches every product in the background and answers immediately.
func PostBatch(f ProductFetcher, store *BatchStore, notifier *webhook.Notifier, log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "product_ids must be 1-50 numeric ids", err))
			return
		}

		b := &batchJob{job: models.BatchJob{
			ID:        "batch-" + uuid.NewString(),
			Status:    BatchProcessing,
			Total:     len(req.ProductIDs),
			Results:   make([]*models.BatchItem, len(req.ProductIDs)),
			CreatedAt: time.Now().Unix(),
		}}
		store.jobs.Store(b.job.ID, b)

		go runBatch(context.WithoutCancel(c.Request.Context()), f, b, req, notifier, log)

		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     b.job.ID,
			Status: BatchProcessing,
			Total:  b.job.Total,
		})
	}
}

// GetBatch returns a handler for GET {prefix}/product/batch/:id.
func GetBatch(store *BatchStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, ok := store.get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Code: http.StatusNotFound, Message: "batch job not found"})
			return
		}
		c.JSON(http.StatusOK, b.snapshot())
	}
}

// runBatch fetches every product, at most one per session slot at a time,
// then settles the job status and fires the webhook.
func runBatch(ctx context.Context, f ProductFetcher, b *batchJob, req models.BatchRequest, notifier *webhook.Notifier, log *slog.Logger) {
	limit := f.Stats().MaxSessions
	if limit <= 0 {
		limit = 4
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range req.ProductIDs {
		g.Go(func() error {
			item := &models.BatchItem{ProductID: id}
			data, err := f.FetchProduct(ctx, id)
			if err != nil {
				item.Error = models.AsScrapeError(err).ToDetail()
			} else {
				item.Success = true
				item.Data = data
			}
			b.record(i, item)
			return nil
		})
	}
	_ = g.Wait()

	b.mu.Lock()
	failed := 0
	for _, r := range b.job.Results {
		if !r.Success {
			failed++
		}
	}
	switch {
	case failed == b.job.Total:
		b.job.Status = BatchFailed
	case failed > 0:
		b.job.Status = BatchPartial
	default:
		b.job.Status = BatchCompleted
	}
	b.mu.Unlock()

	snap := b.snapshot()
	log.Info("batch job finished",
		"id", snap.ID,
		"status", snap.Status,
		"failed", failed,
		"total", snap.Total,
	)

	if req.WebhookURL != "" && notifier != nil {
		notifier.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
			Type:      webhook.EventBatchCompleted,
			JobID:     snap.ID,
			Timestamp: time.Now().Unix(),
			Data:      snap,
		})
	}
}
