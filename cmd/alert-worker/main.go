// Package main is the entrypoint for the Alert Worker Lambda function.
//
// The Alert Worker acts as a job multiplexer. EventBridge rules send JSON
// payloads naming the TaskType, and the handler routes execution to the
// appropriate scheduler service. Consolidating the scheduled jobs into a
// single Lambda keeps cold starts and infrastructure sprawl down.
//
// Cold Start (main):
//  1. Load and validate configuration.
//  2. Initialize structured logger and database pool.
//  3. Initialize delivery providers and the channel registry.
//  4. Initialize the scheduler services and register the handler.
//
// Tasks:
//   - process_alerts: claim due queued alerts and dispatch them.
//   - recover_stuck:  return crashed "sending" claims to the queue.
//   - sweep_dlq:      move exhausted alerts to the dead letter set.
//   - archive_dead:   export and prune dead alerts past retention.
//   - idle_sessions:  alert on idle shopper sessions and auto-close them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"storepulse/internal/alerts/channel"
	"storepulse/internal/alerts/core"
	"storepulse/internal/config"
	"storepulse/internal/db"
	"storepulse/internal/external"
	"storepulse/internal/scheduler"
	"storepulse/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly but With returns
// *slog.Logger, not types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

// Handler holds the dependencies for the alert worker Lambda handler.
type Handler struct {
	Runner *scheduler.JobRunner
	Logger *slog.Logger
}

// Handle routes a JobPayload from EventBridge to the named scheduler service.
// The conditional row claims in the repositories make concurrent invocations
// safe, so no distributed lock is taken here.
func (h *Handler) Handle(ctx context.Context, payload scheduler.JobPayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	logger.InfoContext(ctx, "alert worker invoked",
		"task", string(payload.Task),
		"reference_time", now.Format(time.RFC3339),
	)

	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in job payload")
	}

	items, err := h.Runner.Run(ctx, payload.Task, now)
	if err != nil {
		logger.ErrorContext(ctx, "task execution failed",
			"task", string(payload.Task),
			"error", err,
			"items_before_error", items,
		)
		return "", fmt.Errorf("task %s failed: %w", payload.Task, err)
	}

	result := fmt.Sprintf("task %s complete: %d items processed", payload.Task, items)
	logger.InfoContext(ctx, result, "task", string(payload.Task), "items", items)
	return result, nil
}

// buildRegistry wires the delivery channels. Local environments get stub
// providers so the worker runs without vendor credentials.
func buildRegistry(cfg *config.Config, typedLogger types.Logger) *channel.Registry {
	if cfg.Environment == "local" {
		return channel.NewRegistry(
			channel.NewEmailChannel(&external.StubEmailProvider{Logger: typedLogger}, typedLogger),
			channel.NewSMSChannel(&external.StubSMSProvider{Logger: typedLogger}, typedLogger),
			channel.NewCRMChannel(&external.StubCRMProvider{Logger: typedLogger}, typedLogger),
			channel.NewWebhookChannel(cfg.Webhook, typedLogger),
		)
	}

	channels := []channel.AlertChannel{
		channel.NewEmailChannel(external.NewSendGridClient(external.SendGridClientConfig{
			APIKey:      cfg.Email.SendGridAPIKey,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			UserAgent:   cfg.Webhook.UserAgent,
			Logger:      typedLogger,
		}), typedLogger),
		channel.NewWebhookChannel(cfg.Webhook, typedLogger),
	}

	// SMS carries per-message cost; the kill switch drops the channel from
	// the registry entirely so a bad actor cannot drain the Twilio balance.
	if cfg.Feature.EnableSMS {
		channels = append(channels, channel.NewSMSChannel(external.NewTwilioClient(external.TwilioClientConfig{
			AccountSID: cfg.SMS.TwilioAccountSID,
			AuthToken:  cfg.SMS.TwilioAuthToken,
			FromNumber: cfg.SMS.FromNumber,
			UserAgent:  cfg.Webhook.UserAgent,
			Logger:     typedLogger,
		}), typedLogger))
	}

	if cfg.CRM.PodiumAPIKey.Unmask() != "" {
		channels = append(channels, channel.NewCRMChannel(external.NewPodiumClient(external.PodiumClientConfig{
			APIKey:    cfg.CRM.PodiumAPIKey,
			BaseURL:   cfg.CRM.PodiumBaseURL,
			UserAgent: cfg.Webhook.UserAgent,
			Logger:    typedLogger,
		}), typedLogger))
	}

	return channel.NewRegistry(channels...)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("alert worker initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to initialize database pool", "error", err)
		os.Exit(1)
	}

	alertRepo := db.NewAlertRepository(pool)
	settingsRepo := db.NewSettingsRepository(pool)
	sessionRepo := db.NewSessionRepository(pool)

	var metrics core.AlertMetrics = core.NoopAlertMetrics{}
	var archiver scheduler.DeadLetterArchiver
	if cfg.Environment != "local" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		metrics = core.NewCloudWatchAlertMetrics(
			cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, typedLogger)
		if cfg.AWS.ArchiveBucket != "" {
			archiver = scheduler.NewS3Archiver(s3.NewFromConfig(awsCfg, func(o *s3.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
					o.UsePathStyle = true
				}
			}), cfg.AWS.ArchiveBucket)
		}
	}

	processor := scheduler.NewAlertProcessor(scheduler.AlertProcessorConfig{
		DB:       alertRepo,
		Settings: settingsRepo,
		Registry: buildRegistry(cfg, typedLogger),
		Policy:   core.NewPolicyEngine(types.RealClock{}, typedLogger),
		RetryPolicy: core.RetryPolicy{
			MaxAttempts:   cfg.Alerts.MaxAttempts,
			BaseDelay:     cfg.Alerts.BackoffBase,
			MaxDelay:      cfg.Alerts.BackoffMax,
			BackoffFactor: cfg.Alerts.BackoffFactor,
		},
		Metrics:      metrics,
		Logger:       logger,
		BatchSize:    cfg.Alerts.BatchSize,
		ClaimTimeout: cfg.Alerts.ClaimTimeout,
	})

	handler := &Handler{
		Runner: &scheduler.JobRunner{
			Queue:             processor,
			DeadLetter:        scheduler.NewDLQProcessor(alertRepo, archiver, cfg.Alerts.MaxAttempts, logger),
			Idle:              scheduler.NewIdleSessionDetector(sessionRepo, alertRepo, settingsRepo, logger),
			IdleThreshold:     cfg.Alerts.IdleThreshold,
			DeadRetentionDays: cfg.Alerts.DeadRetentionDays,
		},
		Logger: logger,
	}

	logger.Info("alert worker initialized",
		"batch_size", cfg.Alerts.BatchSize,
		"max_attempts", cfg.Alerts.MaxAttempts,
		"idle_threshold", cfg.Alerts.IdleThreshold.String(),
		"archive_enabled", archiver != nil,
	)

	// Local mode: read a JobPayload from stdin instead of starting the
	// Lambda runtime. Usage:
	//   echo '{"task":"process_alerts"}' | APP_ENV=local go run ./cmd/alert-worker
	if cfg.Environment == "local" {
		payload, err := io.ReadAll(os.Stdin)
		if err != nil || len(payload) == 0 {
			logger.Error("no job payload received on stdin", "error", err)
			os.Exit(1)
		}
		var job scheduler.JobPayload
		if err := json.Unmarshal(payload, &job); err != nil {
			logger.Error("failed to parse stdin as job payload", "error", err)
			os.Exit(1)
		}
		result, err := handler.Handle(ctx, job)
		if err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stdout, result)
		return
	}

	lambda.Start(handler.Handle)
}
