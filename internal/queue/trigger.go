// Package queue provides the SQS producer that dispatches catalog index jobs
// to the indexer worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"storepulse/internal/config"
	"storepulse/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// IndexTrigger publishes IndexJobMessage payloads to the index queue. The
// indexer worker consumes them; the job row referenced by JobID must already
// exist in pending state so a duplicate delivery finds it non-pending and
// drops out.
type IndexTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewIndexTrigger creates an IndexTrigger with the given SQS client and
// configuration. The queue URL comes from AWSConfig.
func NewIndexTrigger(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *IndexTrigger {
	return &IndexTrigger{
		client:   client,
		queueURL: awsCfg.IndexQueueURL,
		logger:   logger,
	}
}

// TriggerIndexJob enqueues a full-catalog index run for a tenant. The message
// carries only defaults; tuning knobs live on the job options set by the
// publisher of a custom message.
func (t *IndexTrigger) TriggerIndexJob(ctx context.Context, jobID, tenant, reason string) error {
	msg := types.IndexJobMessage{
		JobID:       jobID,
		Tenant:      tenant,
		RequestedAt: time.Now().UTC(),
		TraceID:     uuid.NewString(),
	}
	return t.SendIndexMessage(ctx, msg, reason)
}

// SendIndexMessage serializes an IndexJobMessage and dispatches it to the
// index queue. Callers that need restricted or tuned runs build the message
// themselves.
func (t *IndexTrigger) SendIndexMessage(ctx context.Context, msg types.IndexJobMessage, reason string) error {
	if msg.TraceID == "" {
		msg.TraceID = uuid.NewString()
	}
	if msg.RequestedAt.IsZero() {
		msg.RequestedAt = time.Now().UTC()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal IndexJobMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send IndexJobMessage to %s: %w", t.queueURL, err)
	}

	t.logger.InfoContext(ctx, "index job message sent",
		"queue_url", t.queueURL,
		"job_id", msg.JobID,
		"tenant", msg.Tenant,
		"trace_id", msg.TraceID,
		"product_ids", msg.ProductIDs,
		"reason", reason,
	)

	return nil
}
