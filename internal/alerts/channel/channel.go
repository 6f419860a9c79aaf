// Package channel implements the merchant alert delivery channels (email,
// sms, webhook, crm). Each channel adapts a provider client to the common
// AlertChannel interface and classifies failures into a shared taxonomy so
// the scheduler can decide between retrying, giving up, and flagging
// misconfiguration.
package channel

import (
	"context"
	"errors"
	"fmt"

	"storepulse/internal/types"
)

// AlertChannel delivers a single alert through one transport.
type AlertChannel interface {
	// Type identifies which channel this implementation serves.
	Type() types.ChannelType

	// Send delivers the alert using the tenant's channel configuration.
	// Failures are returned as ConfigError, RejectedError, or TransientError
	// so callers can distinguish retryable from permanent outcomes.
	Send(ctx context.Context, cfg types.ChannelConfig, alert *types.Alert) (*types.DeliveryResult, error)
}

// ConfigError indicates the tenant's channel configuration is unusable
// (missing destination, bad credentials). Retrying cannot help until the
// merchant fixes their settings.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string { return "config: " + e.Reason }
func (e *ConfigError) Unwrap() error { return e.Err }

// RejectedError indicates the provider refused the message (invalid
// destination, policy violation). Retrying the same payload will fail again.
type RejectedError struct {
	Reason string
	Err    error
}

func (e *RejectedError) Error() string { return "rejected: " + e.Reason }
func (e *RejectedError) Unwrap() error { return e.Err }

// TransientError indicates a temporary failure (network error, provider
// 5xx, rate limiting). The alert should be retried with backoff.
type TransientError struct {
	Reason string
	Err    error
}

func (e *TransientError) Error() string { return "transient: " + e.Reason }
func (e *TransientError) Unwrap() error { return e.Err }

// Retryable reports whether a Send failure should consume a retry attempt
// with backoff. Only transient failures qualify.
func Retryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsConfigError reports whether a Send failure stems from tenant
// misconfiguration.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// classifyProviderError maps an error from the external provider layer into
// the channel taxonomy. AppError codes carry the classification: config_
// codes are merchant misconfiguration, upstream_rejected is a permanent
// provider refusal, everything else is transient.
func classifyProviderError(err error) error {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return &TransientError{Reason: err.Error(), Err: err}
	}

	switch {
	case appErr.Code.HTTPStatus() == 422:
		return &ConfigError{Reason: appErr.Message, Err: err}
	case appErr.Code == types.ErrCodeUpstreamRejected:
		return &RejectedError{Reason: appErr.Message, Err: err}
	case appErr.Code.HTTPStatus() == 400:
		return &RejectedError{Reason: appErr.Message, Err: err}
	default:
		return &TransientError{Reason: appErr.Message, Err: err}
	}
}

// configString extracts a required string field from channel config.
func configString(cfg types.ChannelConfig, key string) (string, error) {
	v, ok := cfg.Config[key].(string)
	if !ok || v == "" {
		return "", &ConfigError{Reason: fmt.Sprintf("missing %s in channel config", key)}
	}
	return v, nil
}

// optionalConfigString extracts an optional string field from channel config.
func optionalConfigString(cfg types.ChannelConfig, key string) string {
	v, _ := cfg.Config[key].(string)
	return v
}

// Registry holds the wired channel implementations keyed by type.
type Registry struct {
	channels map[types.ChannelType]AlertChannel
}

// NewRegistry builds a Registry from the provided channels.
func NewRegistry(channels ...AlertChannel) *Registry {
	m := make(map[types.ChannelType]AlertChannel, len(channels))
	for _, ch := range channels {
		m[ch.Type()] = ch
	}
	return &Registry{channels: m}
}

// Get returns the channel implementation for the given type, or an error
// when no implementation is registered.
func (r *Registry) Get(ct types.ChannelType) (AlertChannel, error) {
	ch, ok := r.channels[ct]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidChannel,
			fmt.Sprintf("no channel implementation registered for %q", ct),
			nil,
		)
	}
	return ch, nil
}
