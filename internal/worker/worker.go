// Package worker consumes upload notifications from the queue and dispatches
// transcoding jobs. It is the only writer of new ledger rows.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vodworks/pipeline/internal/launcher"
	"github.com/vodworks/pipeline/internal/logger"
	"github.com/vodworks/pipeline/internal/metrics"
	"github.com/vodworks/pipeline/pkg/models"
)

// Queue settings
const (
	MaxMessages        = 1
	WaitTimeSeconds    = 20
	VisibilityTimeout  = 900 // 15 minutes
	RetryBackoffPeriod = 5 * time.Second
)

var tracer = otel.Tracer("vod-worker")

// QueueClient is the subset of the SQS API the worker uses.
type QueueClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Ledger is the subset of the video ledger the worker uses.
type Ledger interface {
	Insert(ctx context.Context, userID, videoID string, status models.VideoStatus) (int64, error)
}

// Worker is the upload-notification consumer. It runs a single sequential
// receive/process/acknowledge loop; running multiple Worker instances against
// the same queue is safe because queue visibility is the only coordination.
type Worker struct {
	queue    QueueClient
	launcher launcher.Launcher
	ledger   Ledger
	dedup    Deduper
	queueURL string
	log      *slog.Logger
}

// New creates a Worker. dedup may be nil, in which case duplicate job
// launches on redelivery are not suppressed (the ledger upsert still keeps
// the record unique).
func New(queue QueueClient, l launcher.Launcher, ledger Ledger, dedup Deduper, queueURL string, log *slog.Logger) *Worker {
	return &Worker{
		queue:    queue,
		launcher: l,
		ledger:   ledger,
		dedup:    dedup,
		queueURL: queueURL,
		log:      log,
	}
}

// Run polls the queue until the context is cancelled. The long-poll receive
// is the only blocking point; cancellation is observed between receives.
func (w *Worker) Run(ctx context.Context) {
	logger.Info(ctx, w.log, "Starting upload-event worker", "queueURL", w.queueURL)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, w.log, "Upload-event worker shutting down")
			return
		default:
		}

		result, err := w.queue.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.queueURL),
			MaxNumberOfMessages: MaxMessages,
			WaitTimeSeconds:     WaitTimeSeconds,
			VisibilityTimeout:   VisibilityTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				continue // Shutting down
			}
			logger.Error(ctx, w.log, "Failed to receive messages", "error", err)
			time.Sleep(RetryBackoffPeriod)
			continue
		}

		for _, msg := range result.Messages {
			if w.HandleMessage(ctx, msg) {
				w.deleteMessage(ctx, msg)
			}
		}
	}
}

// HandleMessage processes one notification and reports whether the message
// should be acknowledged (deleted). Messages that fail to decode or contain a
// failed record are left on the queue for redelivery; the queue's own policy
// decides retry versus dead-letter.
func (w *Worker) HandleMessage(ctx context.Context, msg types.Message) bool {
	ctx, span := tracer.Start(ctx, "handle-notification")
	defer span.End()

	if msg.Body == nil {
		logger.Warn(ctx, w.log, "Notification has no body, leaving for redelivery",
			"messageId", aws.ToString(msg.MessageId))
		metrics.NotificationsProcessed.WithLabelValues("malformed").Inc()
		return false
	}

	var event models.UploadNotification
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		logger.Warn(ctx, w.log, "Failed to decode notification, leaving for redelivery",
			"error", err, "messageId", aws.ToString(msg.MessageId))
		metrics.NotificationsProcessed.WithLabelValues("malformed").Inc()
		return false
	}

	// Storage-service connectivity checks must not spawn jobs.
	if event.IsTestEvent() {
		logger.Info(ctx, w.log, "Discarding storage self-test event",
			"service", event.Service, "event", event.Event)
		metrics.NotificationsProcessed.WithLabelValues("test_event").Inc()
		return true
	}

	// A single notification may bundle several created objects. The message
	// is acknowledged only once every record has been handled; one failed
	// record keeps the whole message on the queue.
	ok := true
	for _, record := range event.Records {
		if err := w.handleRecord(ctx, record); err != nil {
			logger.Error(ctx, w.log, "Failed to process notification record",
				"error", err,
				"key", record.S3.Object.Key,
				"bucket", record.S3.Bucket.Name,
			)
			ok = false
		}
	}

	if ok {
		metrics.NotificationsProcessed.WithLabelValues("handled").Inc()
	} else {
		metrics.NotificationsProcessed.WithLabelValues("failed").Inc()
	}
	return ok
}

func (w *Worker) handleRecord(ctx context.Context, record models.NotificationRecord) error {
	ctx, span := tracer.Start(ctx, "handle-upload-record")
	defer span.End()

	key := record.S3.Object.Key
	userID, videoID, err := models.ParseObjectKey(key)
	if err != nil {
		return err
	}

	span.SetAttributes(
		attribute.String("video.id", videoID),
		attribute.String("video.user_id", userID),
		attribute.String("video.key", key),
	)
	logger.Info(ctx, w.log, "New video uploaded",
		"bucket", record.S3.Bucket.Name,
		"key", key,
		"userId", userID,
		"videoId", videoID,
	)

	// Redelivered notifications skip the launch; the ledger upsert below is
	// idempotent regardless, so dedup failures degrade to a redundant launch.
	seen := false
	if w.dedup != nil {
		var dedupErr error
		seen, dedupErr = w.dedup.Seen(ctx, key)
		if dedupErr != nil {
			logger.Warn(ctx, w.log, "Dedup check failed, assuming first delivery",
				"error", dedupErr, "key", key)
			seen = false
		}
	}

	if seen {
		logger.Info(ctx, w.log, "Duplicate delivery, skipping job launch", "key", key)
		metrics.JobsLaunched.WithLabelValues("deduplicated").Inc()
	} else if err := w.launcher.Launch(ctx, key); err != nil {
		// Swallowed: a failed launch must not block the queue. The record
		// stays PROCESSING forever, which is surfaced through logs and
		// metrics rather than by failing the message.
		span.RecordError(err)
		logger.Error(ctx, w.log, "Failed to launch transcoding job",
			"error", err, "key", key, "videoId", videoID)
		metrics.JobsLaunched.WithLabelValues("failed").Inc()
	} else {
		metrics.JobsLaunched.WithLabelValues("launched").Inc()
	}

	id, err := w.ledger.Insert(ctx, userID, videoID, models.StatusProcessing)
	if err != nil {
		metrics.LedgerInserts.WithLabelValues("failed").Inc()
		return err
	}
	metrics.LedgerInserts.WithLabelValues("ok").Inc()

	if id == 0 {
		logger.Info(ctx, w.log, "Video record already exists", "videoId", videoID)
	} else {
		logger.Info(ctx, w.log, "Video record created",
			"id", id, "videoId", videoID, "status", models.StatusProcessing)
	}

	return nil
}

func (w *Worker) deleteMessage(ctx context.Context, msg types.Message) {
	_, err := w.queue.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		logger.Error(ctx, w.log, "Failed to delete message",
			"error", err, "messageId", aws.ToString(msg.MessageId))
	}
}
