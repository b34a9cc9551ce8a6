// Package reconcile detects transcoding completion by inspecting the
// processed bucket. The transcoding job emits no callback, so this sweep is
// the single source of truth for when a video becomes COMPLETED.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vodworks/pipeline/internal/logger"
	"github.com/vodworks/pipeline/internal/metrics"
	"github.com/vodworks/pipeline/internal/storage"
	"github.com/vodworks/pipeline/pkg/models"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 5 * time.Minute

var tracer = otel.Tracer("vod-reconciler")

// Ledger is the subset of the video ledger the reconciler uses.
type Ledger interface {
	ListByStatus(ctx context.Context, status models.VideoStatus) ([]models.VideoRecord, error)
	UpdateStatus(ctx context.Context, videoID string, status models.VideoStatus) error
}

// ObjectLister lists keys under a processed-bucket prefix.
type ObjectLister interface {
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}

// Reconciler periodically sweeps in-flight ledger rows and flips them to
// COMPLETED once their playlists appear in the processed bucket.
type Reconciler struct {
	ledger   Ledger
	lister   ObjectLister
	bucket   string
	interval time.Duration
	log      *slog.Logger
}

// New creates a Reconciler.
func New(ledger Ledger, lister ObjectLister, processedBucket string, interval time.Duration, log *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		ledger:   ledger,
		lister:   lister,
		bucket:   processedBucket,
		interval: interval,
		log:      log,
	}
}

// Run ticks on the configured interval until the context is cancelled.
// A failed sweep never stops the loop; the next tick runs regardless.
func (r *Reconciler) Run(ctx context.Context) {
	logger.Info(ctx, r.log, "Starting status reconciliation loop",
		"interval", r.interval.String(), "bucket", r.bucket)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, r.log, "Status reconciliation loop shutting down")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep evaluates every PROCESSING record once. Records whose processed
// prefix contains at least one known playlist transition to COMPLETED;
// everything else is left for the next tick. Failures are isolated per
// record so one broken video cannot starve the rest.
func (r *Reconciler) Sweep(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "reconcile-sweep")
	defer span.End()

	start := time.Now()
	metrics.ReconcileSweeps.Inc()

	records, err := r.ledger.ListByStatus(ctx, models.StatusProcessing)
	if err != nil {
		span.RecordError(err)
		logger.Error(ctx, r.log, "Failed to list in-flight videos", "error", err)
		return
	}

	if len(records) == 0 {
		logger.Debug(ctx, r.log, "No videos in PROCESSING status")
		return
	}

	span.SetAttributes(attribute.Int("videos.in_flight", len(records)))
	logger.Info(ctx, r.log, "Reconciling in-flight videos", "count", len(records))

	completed := 0
	for _, record := range records {
		done, err := r.reconcileVideo(ctx, record)
		if err != nil {
			metrics.ReconcileErrors.Inc()
			logger.Error(ctx, r.log, "Failed to reconcile video",
				"error", err, "videoId", record.VideoID)
			continue
		}
		if done {
			completed++
		}
	}

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	logger.Info(ctx, r.log, "Reconciliation sweep complete",
		"inFlight", len(records), "completed", completed)
}

func (r *Reconciler) reconcileVideo(ctx context.Context, record models.VideoRecord) (bool, error) {
	ctx, span := tracer.Start(ctx, "reconcile-video")
	defer span.End()
	span.SetAttributes(attribute.String("video.id", record.VideoID))

	keys, err := r.lister.ListKeys(ctx, r.bucket, record.VideoID+"/")
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	renditions := storage.RenditionsFromKeys(record.VideoID, keys)
	if len(renditions) == 0 {
		// Job still running (or failed silently); try again next tick.
		return false, nil
	}

	if err := r.ledger.UpdateStatus(ctx, record.VideoID, models.StatusCompleted); err != nil {
		span.RecordError(err)
		return false, err
	}

	metrics.VideosCompleted.Inc()
	labels := make([]string, 0, len(renditions))
	for label := range renditions {
		labels = append(labels, label)
	}
	logger.Info(ctx, r.log, "Video transcoding completed",
		"videoId", record.VideoID, "renditions", labels)

	return true, nil
}
