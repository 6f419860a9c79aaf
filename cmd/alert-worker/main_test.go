package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"storepulse/internal/config"
	"storepulse/internal/scheduler"
	"storepulse/internal/types"
)

type fakeQueueService struct {
	lastNow time.Time
}

func (f *fakeQueueService) ProcessQueuedAlerts(_ context.Context, now time.Time) (scheduler.Summary, error) {
	f.lastNow = now
	return scheduler.Summary{Claimed: 6}, nil
}

func (f *fakeQueueService) RecoverStuck(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func testHandler(queue *fakeQueueService) *Handler {
	return &Handler{
		Runner: &scheduler.JobRunner{Queue: queue},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestHandle_ProcessAlerts(t *testing.T) {
	queue := &fakeQueueService{}
	h := testHandler(queue)

	result, err := h.Handle(context.Background(), scheduler.JobPayload{Task: scheduler.TaskProcessAlerts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "6 items processed") {
		t.Errorf("result = %q, want item count included", result)
	}
	if queue.lastNow.IsZero() {
		t.Error("expected a reference time passed to the service")
	}
}

func TestHandle_ReferenceTimeOverride(t *testing.T) {
	queue := &fakeQueueService{}
	h := testHandler(queue)

	ref := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	_, err := h.Handle(context.Background(), scheduler.JobPayload{
		Task:          scheduler.TaskProcessAlerts,
		ReferenceTime: &ref,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !queue.lastNow.Equal(ref) {
		t.Errorf("reference time = %v, want %v", queue.lastNow, ref)
	}
}

func TestHandle_EmptyTask(t *testing.T) {
	h := testHandler(&fakeQueueService{})

	if _, err := h.Handle(context.Background(), scheduler.JobPayload{}); err == nil {
		t.Fatal("expected error for empty task")
	}
}

func TestBuildRegistry_LocalUsesStubs(t *testing.T) {
	cfg := &config.Config{Environment: "local"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := buildRegistry(cfg, &slogAdapter{logger: logger})
	for _, ch := range []types.ChannelType{
		types.ChannelEmail, types.ChannelSMS, types.ChannelCRM, types.ChannelWebhook,
	} {
		if _, err := registry.Get(ch); err != nil {
			t.Errorf("expected %s channel registered in local mode: %v", ch, err)
		}
	}
}

func TestBuildRegistry_SMSKillSwitch(t *testing.T) {
	cfg := &config.Config{Environment: "prod"}
	cfg.Feature.EnableSMS = false
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := buildRegistry(cfg, &slogAdapter{logger: logger})
	if _, err := registry.Get(types.ChannelSMS); err == nil {
		t.Error("SMS channel should be absent when the feature flag is off")
	}
	if _, err := registry.Get(types.ChannelEmail); err != nil {
		t.Errorf("email channel should always be registered: %v", err)
	}
}
