package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ingest"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/loader"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/motive"
)

type AnalysisRunner interface {
	RunTask(ctx context.Context, task motive.Task) error
}

type FileIngester interface {
	IngestFile(ctx context.Context, req ingest.FileRequest) (*ingest.Result, error)
}

type FileFetcher interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Handler executes the messages of every work queue.
type Handler struct {
	analysis AnalysisRunner
	ingester FileIngester
	files    FileFetcher
}

func NewHandler(analysis AnalysisRunner, ingester FileIngester, files FileFetcher) *Handler {
	return &Handler{analysis: analysis, ingester: ingester, files: files}
}

func (h *Handler) Process(ctx context.Context, queueName string, body []byte) error {
	switch queueName {
	case AnalysisQueue:
		return h.processAnalysis(ctx, body)
	case IngestQueue:
		return h.processIngest(ctx, body)
	}
	return fmt.Errorf("%w: unknown queue %q", ErrInvalidMessage, queueName)
}

func (h *Handler) processAnalysis(ctx context.Context, body []byte) error {
	task, err := motive.ParseTask(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	logger.Info("[Queue][Analysis] Running analysis", "run_id", task.RunID, "tenant", task.TenantID)
	return h.analysis.RunTask(ctx, task)
}

func (h *Handler) processIngest(ctx context.Context, body []byte) error {
	msg, err := ParseIngestMsg(body)
	if err != nil {
		return err
	}
	if h.files == nil {
		return errors.New("no object storage configured for ingest queue")
	}

	content, err := h.files.Get(ctx, msg.ObjectKey)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", msg.ObjectKey, err)
	}

	res, err := h.ingester.IngestFile(ctx, ingest.FileRequest{
		TenantID: msg.TenantID,
		KBType:   msg.KBType,
		Title:    msg.Title,
		Filename: msg.Filename,
		MimeType: msg.MimeType,
		Content:  content,
		PIIMode:  optionalPIIMode(msg.PIIMode),
	})
	if err != nil {
		return err
	}
	logger.Info(
		"[Queue][Ingest] File ingested",
		"tenant", msg.TenantID,
		"object_key", msg.ObjectKey,
		"source_id", res.Source.ID,
		"chunks", res.Chunks,
	)
	return nil
}

func optionalPIIMode(value string) loader.PIIMode {
	if value == "" {
		return ""
	}
	return loader.ParsePIIMode(value)
}

// IsPermanent reports errors that no retry can fix.
func IsPermanent(err error) bool {
	var validation *loader.ValidationError
	var service *ai.ServiceError
	if errors.As(err, &service) && !service.Retryable() {
		return true
	}
	return errors.Is(err, ErrInvalidMessage) ||
		errors.Is(err, motive.ErrRunFailed) ||
		errors.Is(err, common.ErrInvalidKBType) ||
		errors.Is(err, ingest.ErrEmptyText) ||
		errors.Is(err, loader.ErrUnsupportedMime) ||
		errors.As(err, &validation)
}

// RetryCount reads the redelivery counter of a message.
func RetryCount(headers amqp091.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleFailure routes a failed delivery to the retry queue, or to the
// dead-letter queue once MaxRetries is reached or the error is permanent.
// The original delivery is acked once the copy is published and requeued
// otherwise.
func HandleFailure(ctx context.Context, ch Publisher, msg amqp091.Delivery, queueName string, cause error) {
	retries := RetryCount(msg.Headers)

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	target := queueName + "_retry"
	if retries >= MaxRetries || IsPermanent(cause) {
		target = queueName + "_dlq"
		headers["x-error"] = cause.Error()
		logger.Warn("[Queue][Failure] Sending message to DLQ", "dlq", target, "retries", retries, "err", cause)
	} else {
		headers[retryHeader] = int32(retries + 1)
		logger.Info("[Queue][Failure] Scheduling retry", "retry_queue", target, "attempt", retries+1)
	}

	if err := PublishFIFO(ctx, ch, target, msg.Body, headers); err != nil {
		logger.Error("[Queue][Failure] Failed to publish", "queue", target, "err", err)
		if nackErr := msg.Nack(false, true); nackErr != nil {
			logger.Error("[Queue][Failure] Failed to nack message", "err", nackErr)
		}
		return
	}
	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue][Failure] Failed to ack message", "err", err)
	}
}
