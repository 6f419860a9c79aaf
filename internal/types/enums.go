package types

// AlertStatus represents the delivery lifecycle state of an alert.
// These values MUST match the CHECK constraint in the alerts table.
type AlertStatus string

const (
	AlertStatusQueued  AlertStatus = "queued"
	AlertStatusSending AlertStatus = "sending"
	AlertStatusSent    AlertStatus = "sent"
	AlertStatusFailed  AlertStatus = "failed"
	AlertStatusDead    AlertStatus = "dead"
)

// ChannelType identifies an alert delivery channel.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelSMS     ChannelType = "sms"
	ChannelWebhook ChannelType = "webhook"
	ChannelCRM     ChannelType = "crm"
)

// TriggerType identifies the shopper activity that produced an alert.
type TriggerType string

const (
	TriggerLeadCaptured   TriggerType = "lead_captured"
	TriggerHighIntent     TriggerType = "high_intent"
	TriggerAbandoned      TriggerType = "abandoned"
	TriggerPostConversion TriggerType = "post_conversion"
	TriggerChatEnd        TriggerType = "chat_end"
	TriggerIdleSession    TriggerType = "idle_session"
)

// IndexJobStatus represents the lifecycle state of a catalog index run.
type IndexJobStatus string

const (
	JobStatusPending   IndexJobStatus = "pending"
	JobStatusRunning   IndexJobStatus = "running"
	JobStatusCompleted IndexJobStatus = "completed"
	JobStatusFailed    IndexJobStatus = "failed"
)

// EndReason describes why a shopper session was closed.
type EndReason string

const (
	EndReasonIdleTimeout EndReason = "idle_timeout"
	EndReasonUserEnded   EndReason = "user_ended"
	EndReasonConverted   EndReason = "converted"
)

// EnrichmentMethod records how a product profile's attributes were derived.
type EnrichmentMethod string

const (
	EnrichmentNone      EnrichmentMethod = "none"
	EnrichmentHeuristic EnrichmentMethod = "heuristic"
	EnrichmentLLM       EnrichmentMethod = "llm"
)

// DigestMode controls whether alerts are delivered immediately or batched.
type DigestMode string

const (
	DigestOff    DigestMode = "off"
	DigestHourly DigestMode = "hourly"
	DigestDaily  DigestMode = "daily"
)

// Intent score thresholds for trigger classification.
// Logic: score >= HighIntentScore fires high_intent; an idle session with
// score >= AbandonedIntentScore fires abandoned; anything below
// LowQualityIntentScore is suppressed entirely.
const (
	HighIntentScore       = 70
	AbandonedIntentScore  = 40
	LowQualityIntentScore = 10
)

// DefaultTriggers is the trigger set applied when a tenant has no saved
// settings. Only lead capture alerts are on by default.
var DefaultTriggers = TriggerSet{
	TriggerLeadCaptured:   true,
	TriggerHighIntent:     false,
	TriggerAbandoned:      false,
	TriggerPostConversion: false,
	TriggerChatEnd:        false,
	TriggerIdleSession:    false,
}
