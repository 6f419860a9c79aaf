package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"storepulse/internal/config"
	"storepulse/internal/types"
)

// --- Mock SQS Client ---

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

// --- Test Helpers ---

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/index-jobs"

func newTestTrigger(mock *mockSQSSender) *IndexTrigger {
	awsCfg := config.AWSConfig{IndexQueueURL: testQueueURL}
	return NewIndexTrigger(mock, awsCfg, slog.Default())
}

func decodeBody(t *testing.T, call *sqs.SendMessageInput) types.IndexJobMessage {
	t.Helper()
	var msg types.IndexJobMessage
	if err := json.Unmarshal([]byte(*call.MessageBody), &msg); err != nil {
		t.Fatalf("message body is not valid JSON: %v", err)
	}
	return msg
}

// --- Tests ---

func TestTriggerIndexJob_SendsFullCatalogMessage(t *testing.T) {
	mock := &mockSQSSender{}
	trigger := newTestTrigger(mock)

	err := trigger.TriggerIndexJob(context.Background(), "job_123", "shop-1.myshopify.com", "manual")
	if err != nil {
		t.Fatalf("TriggerIndexJob returned unexpected error: %v", err)
	}

	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(mock.calls))
	}
	call := mock.calls[0]
	if *call.QueueUrl != testQueueURL {
		t.Errorf("expected queue URL %q, got %q", testQueueURL, *call.QueueUrl)
	}

	msg := decodeBody(t, call)
	if msg.JobID != "job_123" || msg.Tenant != "shop-1.myshopify.com" {
		t.Errorf("unexpected message identity: %+v", msg)
	}
	if len(msg.ProductIDs) != 0 {
		t.Errorf("full catalog runs must not restrict products, got %v", msg.ProductIDs)
	}
	if msg.TraceID == "" {
		t.Error("expected a generated trace id")
	}
	if msg.RequestedAt.IsZero() {
		t.Error("expected requested_at stamped")
	}

	attr, ok := call.MessageAttributes["reason"]
	if !ok || *attr.StringValue != "manual" {
		t.Errorf("expected reason attribute 'manual', got %+v", call.MessageAttributes)
	}
}

func TestSendIndexMessage_PreservesCallerFields(t *testing.T) {
	mock := &mockSQSSender{}
	trigger := newTestTrigger(mock)

	requested := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	err := trigger.SendIndexMessage(context.Background(), types.IndexJobMessage{
		JobID:               "job_123",
		Tenant:              "shop-1.myshopify.com",
		UseAIEnrichment:     true,
		ConfidenceThreshold: 0.8,
		Concurrency:         2,
		ProductIDs:          []string{"gid://shopify/Product/7"},
		RequestedAt:         requested,
		TraceID:             "trace-1",
	}, "product_update_webhook")
	if err != nil {
		t.Fatalf("SendIndexMessage returned unexpected error: %v", err)
	}

	msg := decodeBody(t, mock.calls[0])
	if !msg.UseAIEnrichment || msg.ConfidenceThreshold != 0.8 || msg.Concurrency != 2 {
		t.Errorf("tuning fields must survive serialization: %+v", msg)
	}
	if len(msg.ProductIDs) != 1 || msg.ProductIDs[0] != "gid://shopify/Product/7" {
		t.Errorf("unexpected product restriction %v", msg.ProductIDs)
	}
	if msg.TraceID != "trace-1" {
		t.Errorf("caller trace id must be kept, got %q", msg.TraceID)
	}
	if !msg.RequestedAt.Equal(requested) {
		t.Errorf("caller timestamp must be kept, got %v", msg.RequestedAt)
	}
}

func TestSendIndexMessage_SQSFailure(t *testing.T) {
	mock := &mockSQSSender{err: errors.New("queue unavailable")}
	trigger := newTestTrigger(mock)

	err := trigger.TriggerIndexJob(context.Background(), "job_123", "shop-1.myshopify.com", "manual")
	if err == nil {
		t.Fatal("expected error when SQS send fails")
	}
}
