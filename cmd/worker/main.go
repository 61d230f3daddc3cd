package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"docuchat-backend/internal/bootstrap"
	"docuchat-backend/internal/queue"
	"docuchat-backend/internal/shared/config"
	"docuchat-backend/internal/shared/metrics"
	"docuchat-backend/internal/shared/telemetry"
	"docuchat-backend/internal/workerproc"
)

const (
	defaultVisibilitySeconds  = 120
	defaultWorkerConcurrency  = 4
	defaultShutdownTimeoutSec = 30
	defaultMaxReceives        = 5
)

func main() {
	cfg := config.Load()
	telemetry.Configure("docuchat-worker", cfg.LogLevel)

	queueURL := strings.TrimSpace(cfg.Pipeline.RetryQueueURL)
	if queueURL == "" {
		fatal("DISPATCH_RETRY_QUEUE_URL is required", nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visibilitySeconds := envInt("WORKER_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	concurrency := envInt("WORKER_CONCURRENCY", defaultWorkerConcurrency)
	maxReceives := envInt("WORKER_MAX_RECEIVES", defaultMaxReceives)
	shutdownTimeout := time.Duration(envInt("WORKER_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	queueClient, err := queue.NewSQSClient(ctx, cfg.AWSRegion, queueURL)
	if err != nil {
		fatal("load aws config", err)
	}
	var sqsClient sqsAPI = queueClient.SQS()

	app, err := bootstrap.BuildWith(ctx, cfg, bootstrap.Options{Queue: queueClient})
	if err != nil {
		fatal("bootstrap build", err)
	}
	h := handler{client: sqsClient, queueURL: queueURL, svc: app.DocumentsService, maxReceives: maxReceives}

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{
		"queue":       queueURL,
		"concurrency": concurrency,
		"visibility":  visibilitySeconds,
	})

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Warn("worker.receive_failed", map[string]any{"error": err})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				h.handle(context.WithoutCancel(ctx), m)
			}(msg)
		}
	}

	telemetry.Info("worker.shutdown", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", map[string]any{"timeout": shutdownTimeout.String()})
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type handler struct {
	client      sqsAPI
	queueURL    string
	svc         workerproc.Redispatcher
	maxReceives int
}

func (h handler) handle(ctx context.Context, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)

	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, "", "")
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		var missing workerproc.ErrMissingDocument
		if errors.As(err, &missing) && missing.RequestID != "" {
			fields["request_id"] = missing.RequestID
		}
		telemetry.Error("worker.redispatch.invalid_message", fields)
		if h.delete(ctx, msg, "", "") {
			metrics.IncRedispatch("unrecoverable")
		}
		return
	}

	if h.maxReceives > 0 && receiveCount(msg) > h.maxReceives {
		telemetry.Error("worker.redispatch.gave_up", baseFields(msg, decoded.DocumentID, decoded.RequestID))
		if h.delete(ctx, msg, decoded.DocumentID, decoded.RequestID) {
			metrics.IncRedispatch("gave_up")
		}
		return
	}

	telemetry.Info("worker.redispatch.received", baseFields(msg, decoded.DocumentID, decoded.RequestID))

	if err := workerproc.HandleMessage(ctx, h.svc, decoded); err != nil {
		fields := baseFields(msg, decoded.DocumentID, decoded.RequestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.redispatch.failed", fields)
		return
	}

	if h.delete(ctx, msg, decoded.DocumentID, decoded.RequestID) {
		telemetry.Info("worker.redispatch.completed", baseFields(msg, decoded.DocumentID, decoded.RequestID))
	}
}

func (h handler) delete(ctx context.Context, msg sqstypes.Message, documentID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, documentID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.redispatch.delete_failed", fields)
		return false
	}
	if _, err := h.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(h.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, documentID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.redispatch.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, documentID, requestID string) map[string]any {
	fields := map[string]any{
		"document_id":    documentID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func fatal(msg string, err error) {
	fields := map[string]any{}
	if err != nil {
		fields["error"] = err
	}
	telemetry.Error("worker."+strings.ReplaceAll(msg, " ", "_"), fields)
	os.Exit(1)
}
