package channel

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"storepulse/internal/types"
)

// Well-known payload keys set by the alert producers. Anything else in the
// payload is rendered into the detail section verbatim.
const (
	payloadCustomerName = "customer_name"
	payloadSummary      = "summary"
	payloadIntentScore  = "intent_score"
	payloadEndReason    = "end_reason"
)

var triggerHeadlines = map[types.TriggerType]string{
	types.TriggerLeadCaptured:   "New lead captured",
	types.TriggerHighIntent:     "High-intent shopper active",
	types.TriggerAbandoned:      "Shopper left mid-conversation",
	types.TriggerPostConversion: "Post-purchase follow-up",
	types.TriggerChatEnd:        "Conversation ended",
	types.TriggerIdleSession:    "Shopper went idle",
}

// renderSubject builds the one-line subject for an alert.
func renderSubject(alert *types.Alert) string {
	headline, ok := triggerHeadlines[alert.TriggerType]
	if !ok {
		headline = "Store activity"
	}
	if name, _ := alert.Payload[payloadCustomerName].(string); name != "" {
		return fmt.Sprintf("%s: %s", headline, name)
	}
	return headline
}

// renderText builds the plain-text body for an alert: headline, summary,
// then the remaining payload details in stable order.
func renderText(alert *types.Alert) string {
	var b strings.Builder
	b.WriteString(renderSubject(alert))
	b.WriteString("\n")

	if summary, _ := alert.Payload[payloadSummary].(string); summary != "" {
		b.WriteString("\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}

	details := detailPairs(alert.Payload)
	if len(details) > 0 {
		b.WriteString("\n")
		for _, d := range details {
			fmt.Fprintf(&b, "%s: %v\n", d.label, d.value)
		}
	}

	return b.String()
}

// renderHTML builds a minimal HTML body mirroring the text rendering.
func renderHTML(alert *types.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(renderSubject(alert)))

	if summary, _ := alert.Payload[payloadSummary].(string); summary != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(summary))
	}

	details := detailPairs(alert.Payload)
	if len(details) > 0 {
		b.WriteString("<ul>")
		for _, d := range details {
			fmt.Fprintf(&b, "<li><strong>%s:</strong> %s</li>",
				html.EscapeString(d.label),
				html.EscapeString(fmt.Sprintf("%v", d.value)),
			)
		}
		b.WriteString("</ul>")
	}

	return b.String()
}

type detailPair struct {
	label string
	value any
}

// detailPairs returns payload entries other than the summary, sorted by key
// for deterministic rendering.
func detailPairs(payload types.AlertPayload) []detailPair {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k == payloadSummary {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]detailPair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, detailPair{label: humanizeKey(k), value: payload[k]})
	}
	return pairs
}

// humanizeKey turns snake_case payload keys into title-ish labels.
func humanizeKey(k string) string {
	parts := strings.Split(k, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
