// Package main is the entrypoint for the ops HTTP surface.
//
// The ops server exposes the internal operational endpoints: the cron entry
// point that drives the scheduler tasks, index job creation and inspection,
// and manual dead-alert retry. Every endpoint except the health check is
// authenticated with the ops API key.
//
// Routes:
//
//	GET  /healthz                    - liveness and database reachability
//	POST /internal/cron/alerts       - run one scheduler task synchronously
//	POST /internal/index/jobs        - create an index job and dispatch it
//	GET  /internal/index/jobs/{id}   - index job progress
//	POST /internal/alerts/{id}/retry - re-queue a dead alert
package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"storepulse/internal/alerts/channel"
	"storepulse/internal/alerts/core"
	"storepulse/internal/config"
	"storepulse/internal/db"
	"storepulse/internal/external"
	"storepulse/internal/queue"
	"storepulse/internal/scheduler"
	"storepulse/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
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

// IndexPublisher dispatches index job messages to the worker queue.
type IndexPublisher interface {
	SendIndexMessage(ctx context.Context, msg types.IndexJobMessage, reason string) error
}

// IndexJobStore creates and reads index job rows.
type IndexJobStore interface {
	Create(ctx context.Context, job *types.IndexJob) error
	Get(ctx context.Context, id string) (*types.IndexJob, error)
}

// AlertRetrier re-queues dead alerts.
type AlertRetrier interface {
	RetryDead(ctx context.Context, id string, at time.Time) error
}

// Pinger reports database reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ IndexJobStore  = (*db.IndexJobRepository)(nil)
	_ AlertRetrier   = (*db.AlertRepository)(nil)
	_ IndexPublisher = (*queue.IndexTrigger)(nil)
)

// Server bundles the ops surface dependencies and handlers.
type Server struct {
	runner    *scheduler.JobRunner
	jobs      IndexJobStore
	alerts    AlertRetrier
	publisher IndexPublisher
	pool      Pinger
	opsKey    types.SecretString
	build     config.BuildInfo
	logger    *slog.Logger
}

// Routes assembles the chi router with the shared middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)

	r.Route("/internal", func(r chi.Router) {
		r.Use(s.requireOpsKey)
		r.Post("/cron/alerts", s.handleRunCron)
		r.Post("/index/jobs", s.handleCreateIndexJob)
		r.Get("/index/jobs/{id}", s.handleGetIndexJob)
		r.Post("/alerts/{id}/retry", s.handleRetryAlert)
	})

	return r
}

// requestID assigns every request a correlation id, echoed in the response
// and propagated through the context for outbound trace headers.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}

// requireOpsKey authenticates the cron caller and operators. The comparison
// is constant-time.
func (s *Server) requireOpsKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get("X-Ops-Key")
		expected := s.opsKey.Unmask()
		if presented == "" ||
			subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			s.writeError(w, r, types.NewAppError(
				types.ErrCodeAuthInvalidKey, "invalid or missing ops key", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		s.logger.ErrorContext(r.Context(), "health check database ping failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded", "database": "unreachable",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.build.Version,
		"commit":  s.build.Commit,
	})
}

// handleRunCron executes one scheduler task synchronously. The external cron
// caller drives the whole pipeline through this endpoint in environments
// without EventBridge.
func (s *Server) handleRunCron(w http.ResponseWriter, r *http.Request) {
	var payload scheduler.JobPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField, "invalid job payload", err))
		return
	}
	if payload.Task == "" {
		s.writeError(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField, "task is required", nil))
		return
	}

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	items, err := s.runner.Run(r.Context(), payload.Task, now)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "cron task failed",
			"task", string(payload.Task), "error", err)
		s.writeError(w, r, types.NewAppError(
			types.ErrCodeInternalUnexpected, fmt.Sprintf("task %s failed", payload.Task), err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"task":  payload.Task,
		"items": items,
	})
}

// createIndexJobRequest is the POST /internal/index/jobs body.
type createIndexJobRequest struct {
	Tenant              string   `json:"tenant"`
	UseAIEnrichment     bool     `json:"use_ai_enrichment"`
	ConfidenceThreshold float64  `json:"confidence_threshold,omitempty"`
	Concurrency         int      `json:"concurrency,omitempty"`
	ProductIDs          []string `json:"product_ids,omitempty"`
}

func (s *Server) handleCreateIndexJob(w http.ResponseWriter, r *http.Request) {
	var req createIndexJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField, "invalid request body", err))
		return
	}
	if req.Tenant == "" {
		s.writeError(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField, "tenant is required", nil))
		return
	}

	job := &types.IndexJob{Tenant: req.Tenant}
	if err := s.jobs.Create(r.Context(), job); err != nil {
		s.writeError(w, r, err)
		return
	}

	msg := types.IndexJobMessage{
		JobID:               job.ID,
		Tenant:              req.Tenant,
		UseAIEnrichment:     req.UseAIEnrichment,
		ConfidenceThreshold: req.ConfidenceThreshold,
		Concurrency:         req.Concurrency,
		ProductIDs:          req.ProductIDs,
		TraceID:             types.GetRequestID(r.Context()),
	}
	if err := s.publisher.SendIndexMessage(r.Context(), msg, "ops_api"); err != nil {
		// The pending row stays; re-posting the job or a manual re-dispatch
		// picks it up.
		s.logger.ErrorContext(r.Context(), "failed to dispatch index job",
			"job_id", job.ID, "error", err)
		s.writeError(w, r, types.NewAppError(
			types.ErrCodeUpstreamUnavailable, "failed to dispatch index job", err))
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (s *Server) handleGetIndexJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRetryAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.alerts.RetryDead(r.Context(), id, time.Now().UTC()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"alert_id": id,
		"status":   types.AlertStatusQueued,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := types.ErrCodeInternalUnexpected
	message := "internal error"

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus()
		code = appErr.Code
		message = appErr.Message
	}

	if status >= 500 {
		s.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "status", status, "error", err)
	}

	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":       code,
			"message":    message,
			"request_id": types.GetRequestID(r.Context()),
		},
	})
}

// buildRegistry wires the delivery channels for the cron-driven processor.
// Local environments get stub providers.
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

	logger.Info("ops server initializing",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to initialize database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	alertRepo := db.NewAlertRepository(pool)
	settingsRepo := db.NewSettingsRepository(pool)
	sessionRepo := db.NewSessionRepository(pool)
	jobRepo := db.NewIndexJobRepository(pool)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	var metrics core.AlertMetrics = core.NoopAlertMetrics{}
	var archiver scheduler.DeadLetterArchiver
	if cfg.Environment != "local" {
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

	srv := &Server{
		runner: &scheduler.JobRunner{
			Queue:             processor,
			DeadLetter:        scheduler.NewDLQProcessor(alertRepo, archiver, cfg.Alerts.MaxAttempts, logger),
			Idle:              scheduler.NewIdleSessionDetector(sessionRepo, alertRepo, settingsRepo, logger),
			IdleThreshold:     cfg.Alerts.IdleThreshold,
			DeadRetentionDays: cfg.Alerts.DeadRetentionDays,
		},
		jobs:      jobRepo,
		alerts:    alertRepo,
		publisher: queue.NewIndexTrigger(sqsClient, cfg.AWS, logger),
		pool:      pool,
		opsKey:    cfg.Server.OpsAPIKey,
		build:     cfg.Build,
		logger:    logger,
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("ops server stopped")
}
