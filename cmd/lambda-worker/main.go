package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"docuchat-backend/internal/bootstrap"
	"docuchat-backend/internal/shared/config"
	"docuchat-backend/internal/shared/metrics"
	"docuchat-backend/internal/shared/telemetry"
	"docuchat-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	telemetry.Configure("docuchat-lambda-worker", cfg.LogLevel)
	built, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": initErr})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return processRecords(ctx, app.DocumentsService, event.Records), nil
}

// processRecords reports only retryable failures back to SQS; malformed
// messages are dropped.
func processRecords(ctx context.Context, svc workerproc.Redispatcher, records []events.SQSMessage) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range records {
		msg, _, err := workerproc.ParseMessage(record.Body)
		if err != nil {
			telemetry.Error("lambda.redispatch.invalid_message", map[string]any{
				"sqs_message_id": record.MessageId,
				"error":          err,
			})
			metrics.IncRedispatch("unrecoverable")
			continue
		}
		if err := workerproc.HandleMessage(ctx, svc, msg); err != nil {
			var perr workerproc.ErrProcess
			fields := map[string]any{"sqs_message_id": record.MessageId, "document_id": msg.DocumentID, "error": err}
			telemetry.Error("lambda.redispatch.failed", fields)
			if errors.As(err, &perr) {
				failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			}
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
