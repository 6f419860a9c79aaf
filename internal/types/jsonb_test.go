package types

import (
	"testing"
)

func TestTriggerSet_ScanValue(t *testing.T) {
	ts := TriggerSet{TriggerLeadCaptured: true, TriggerHighIntent: false}

	v, err := ts.Value()
	if err != nil {
		t.Fatalf("Value returned error: %v", err)
	}

	var got TriggerSet
	if err := got.Scan(v); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if !got[TriggerLeadCaptured] {
		t.Errorf("lead_captured lost through round trip: %v", got)
	}
	if got[TriggerHighIntent] {
		t.Errorf("high_intent flipped to true: %v", got)
	}
}

func TestTriggerSet_ScanNil(t *testing.T) {
	got := TriggerSet{TriggerChatEnd: true}
	if err := got.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) returned error: %v", err)
	}
	if got != nil {
		t.Errorf("Scan(nil) should reset the map, got %v", got)
	}
}

func TestChannelMap_ScanString(t *testing.T) {
	// Some drivers hand JSONB back as string rather than []byte.
	raw := `{"email":{"enabled":true,"config":{"to":"ops@example.com"}}}`

	var got ChannelMap
	if err := got.Scan(raw); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	cfg, ok := got[ChannelEmail]
	if !ok || !cfg.Enabled {
		t.Fatalf("email channel not decoded: %v", got)
	}
	if cfg.Config["to"] != "ops@example.com" {
		t.Errorf("config lost through scan: %v", cfg.Config)
	}
}

func TestChannelMap_ScanUnsupportedType(t *testing.T) {
	var got ChannelMap
	if err := got.Scan(42); err == nil {
		t.Errorf("Scan(int) should return an error")
	}
}

func TestQuietHours_ScanValue(t *testing.T) {
	qh := QuietHours{Start: "22:00", End: "07:00", Timezone: "America/Chicago"}

	v, err := qh.Value()
	if err != nil {
		t.Fatalf("Value returned error: %v", err)
	}

	var got QuietHours
	if err := got.Scan(v); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if got != qh {
		t.Errorf("round trip = %+v, want %+v", got, qh)
	}
}

func TestAlertPayload_ValueNil(t *testing.T) {
	var p AlertPayload
	v, err := p.Value()
	if err != nil {
		t.Fatalf("Value returned error: %v", err)
	}
	if v != nil {
		t.Errorf("nil payload should produce SQL NULL, got %v", v)
	}
}
