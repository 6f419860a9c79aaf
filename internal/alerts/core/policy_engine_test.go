package core

import (
	"context"
	"testing"
	"time"

	"storepulse/internal/types"
)

// mockClock implements types.Clock for deterministic testing.
type mockClock struct {
	now time.Time
}

func (c *mockClock) Now() time.Time { return c.now }

// mockLogger implements types.Logger as a no-op for tests.
type mockLogger struct{}

func (l *mockLogger) Info(msg string, args ...any)  {}
func (l *mockLogger) Error(msg string, args ...any) {}
func (l *mockLogger) Warn(msg string, args ...any)  {}
func (l *mockLogger) With(args ...any) types.Logger { return l }

func newTestPolicyEngine(now time.Time) *PolicyEngineImpl {
	return NewPolicyEngine(&mockClock{now: now}, &mockLogger{})
}

func testAlert() *types.Alert {
	return &types.Alert{
		ID:          "alr_123",
		TenantID:    "shop-1",
		Channel:     types.ChannelEmail,
		TriggerType: types.TriggerLeadCaptured,
	}
}

func TestPolicyEngine_NoQuietHoursDeliversImmediately(t *testing.T) {
	engine := newTestPolicyEngine(time.Date(2026, 2, 3, 3, 0, 0, 0, time.UTC))

	result, err := engine.Evaluate(context.Background(), testAlert(), &types.AlertSettings{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision != PolicyDeliverImmediately {
		t.Errorf("expected deliver immediately, got %s", result.Decision)
	}
}

func TestPolicyEngine_OvernightQuietHoursDefers(t *testing.T) {
	// 3 AM Denver time, quiet window 22:00-07:00.
	denver, _ := time.LoadLocation("America/Denver")
	now := time.Date(2026, 2, 3, 3, 0, 0, 0, denver).UTC()

	engine := newTestPolicyEngine(now)
	settings := &types.AlertSettings{
		QuietHours: &types.QuietHours{Start: "22:00", End: "07:00", Timezone: "America/Denver"},
	}

	result, err := engine.Evaluate(context.Background(), testAlert(), settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision != PolicyDefer {
		t.Fatalf("expected defer, got %s", result.Decision)
	}
	if result.ResumeAt == nil {
		t.Fatal("expected ResumeAt to be set")
	}

	wantResume := time.Date(2026, 2, 3, 7, 0, 0, 0, denver).UTC()
	if !result.ResumeAt.Equal(wantResume) {
		t.Errorf("expected resume at %v, got %v", wantResume, result.ResumeAt)
	}
}

func TestPolicyEngine_BeforeMidnightResumesTomorrow(t *testing.T) {
	denver, _ := time.LoadLocation("America/Denver")
	now := time.Date(2026, 2, 3, 23, 15, 0, 0, denver).UTC()

	engine := newTestPolicyEngine(now)
	settings := &types.AlertSettings{
		QuietHours: &types.QuietHours{Start: "22:00", End: "07:00", Timezone: "America/Denver"},
	}

	result, err := engine.Evaluate(context.Background(), testAlert(), settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision != PolicyDefer {
		t.Fatalf("expected defer, got %s", result.Decision)
	}

	wantResume := time.Date(2026, 2, 4, 7, 0, 0, 0, denver).UTC()
	if !result.ResumeAt.Equal(wantResume) {
		t.Errorf("expected resume at %v, got %v", wantResume, result.ResumeAt)
	}
}

func TestPolicyEngine_OutsideQuietHoursDelivers(t *testing.T) {
	denver, _ := time.LoadLocation("America/Denver")
	now := time.Date(2026, 2, 3, 12, 0, 0, 0, denver).UTC()

	engine := newTestPolicyEngine(now)
	settings := &types.AlertSettings{
		QuietHours: &types.QuietHours{Start: "22:00", End: "07:00", Timezone: "America/Denver"},
	}

	result, err := engine.Evaluate(context.Background(), testAlert(), settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision != PolicyDeliverImmediately {
		t.Errorf("expected deliver immediately, got %s", result.Decision)
	}
}

func TestPolicyEngine_SameDayWindow(t *testing.T) {
	engine := newTestPolicyEngine(time.Date(2026, 2, 3, 13, 30, 0, 0, time.UTC))
	settings := &types.AlertSettings{
		QuietHours: &types.QuietHours{Start: "13:00", End: "15:00", Timezone: "UTC"},
	}

	result, err := engine.Evaluate(context.Background(), testAlert(), settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision != PolicyDefer {
		t.Fatalf("expected defer, got %s", result.Decision)
	}

	wantResume := time.Date(2026, 2, 3, 15, 0, 0, 0, time.UTC)
	if !result.ResumeAt.Equal(wantResume) {
		t.Errorf("expected resume at %v, got %v", wantResume, result.ResumeAt)
	}
}

func TestPolicyEngine_InvalidTimezoneFailsOpen(t *testing.T) {
	engine := newTestPolicyEngine(time.Date(2026, 2, 3, 3, 0, 0, 0, time.UTC))
	settings := &types.AlertSettings{
		QuietHours: &types.QuietHours{Start: "22:00", End: "07:00", Timezone: "Mars/Olympus_Mons"},
	}

	result, err := engine.Evaluate(context.Background(), testAlert(), settings)
	if err != nil {
		t.Fatalf("fail-open should not surface an error, got: %v", err)
	}
	if result.Decision != PolicyDeliverImmediately {
		t.Errorf("malformed config must fail open, got %s", result.Decision)
	}
}

func TestPolicyEngine_InvalidTimeFormatFailsOpen(t *testing.T) {
	engine := newTestPolicyEngine(time.Date(2026, 2, 3, 3, 0, 0, 0, time.UTC))
	settings := &types.AlertSettings{
		QuietHours: &types.QuietHours{Start: "10pm", End: "07:00", Timezone: "UTC"},
	}

	result, err := engine.Evaluate(context.Background(), testAlert(), settings)
	if err != nil {
		t.Fatalf("fail-open should not surface an error, got: %v", err)
	}
	if result.Decision != PolicyDeliverImmediately {
		t.Errorf("malformed config must fail open, got %s", result.Decision)
	}
}

func TestPolicyEngine_HourlyDigestDefersToWindowEnd(t *testing.T) {
	now := time.Date(2026, 2, 3, 14, 20, 0, 0, time.UTC)
	engine := newTestPolicyEngine(now)

	alert := testAlert()
	alert.CreatedAt = time.Date(2026, 2, 3, 14, 5, 0, 0, time.UTC)
	settings := &types.AlertSettings{Digest: types.DigestHourly}

	result, err := engine.Evaluate(context.Background(), alert, settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision != PolicyDefer {
		t.Fatalf("expected defer, got %s", result.Decision)
	}

	wantResume := time.Date(2026, 2, 3, 15, 0, 0, 0, time.UTC)
	if result.ResumeAt == nil || !result.ResumeAt.Equal(wantResume) {
		t.Errorf("expected resume at %v, got %v", wantResume, result.ResumeAt)
	}
}

func TestPolicyEngine_HourlyDigestReleasesAfterBoundary(t *testing.T) {
	// The alert was deferred out of the 14:00 window; by 15:00 it has waited
	// a full cycle and must go out rather than roll into the next window.
	now := time.Date(2026, 2, 3, 15, 0, 0, 0, time.UTC)
	engine := newTestPolicyEngine(now)

	alert := testAlert()
	alert.CreatedAt = time.Date(2026, 2, 3, 14, 5, 0, 0, time.UTC)
	settings := &types.AlertSettings{Digest: types.DigestHourly}

	result, err := engine.Evaluate(context.Background(), alert, settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision != PolicyDeliverImmediately {
		t.Errorf("expected delivery after the window closed, got %s", result.Decision)
	}
}

func TestPolicyEngine_DailyDigestAnchoredInTenantTimezone(t *testing.T) {
	denver, _ := time.LoadLocation("America/Denver")
	// 6 AM Denver: the current daily window opened yesterday at 08:00 local.
	now := time.Date(2026, 2, 3, 6, 0, 0, 0, denver).UTC()
	engine := newTestPolicyEngine(now)

	alert := testAlert()
	alert.CreatedAt = time.Date(2026, 2, 2, 20, 0, 0, 0, denver).UTC()
	settings := &types.AlertSettings{
		Digest:     types.DigestDaily,
		QuietHours: &types.QuietHours{Start: "22:00", End: "02:00", Timezone: "America/Denver"},
	}

	result, err := engine.Evaluate(context.Background(), alert, settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision != PolicyDefer {
		t.Fatalf("expected defer, got %s", result.Decision)
	}

	wantResume := time.Date(2026, 2, 3, 8, 0, 0, 0, denver).UTC()
	if result.ResumeAt == nil || !result.ResumeAt.Equal(wantResume) {
		t.Errorf("expected resume at %v, got %v", wantResume, result.ResumeAt)
	}
}

func TestPolicyEngine_QuietHoursWinOverDigest(t *testing.T) {
	denver, _ := time.LoadLocation("America/Denver")
	now := time.Date(2026, 2, 3, 3, 0, 0, 0, denver).UTC()
	engine := newTestPolicyEngine(now)

	alert := testAlert()
	alert.CreatedAt = now
	settings := &types.AlertSettings{
		Digest:     types.DigestHourly,
		QuietHours: &types.QuietHours{Start: "22:00", End: "07:00", Timezone: "America/Denver"},
	}

	result, err := engine.Evaluate(context.Background(), alert, settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision != PolicyDefer {
		t.Fatalf("expected defer, got %s", result.Decision)
	}

	// Quiet hours are evaluated first, so the resume time is the quiet
	// window end, not the top of the next hour.
	wantResume := time.Date(2026, 2, 3, 7, 0, 0, 0, denver).UTC()
	if result.ResumeAt == nil || !result.ResumeAt.Equal(wantResume) {
		t.Errorf("expected resume at %v, got %v", wantResume, result.ResumeAt)
	}
}

func TestPolicyEngine_DigestOffDelivers(t *testing.T) {
	now := time.Date(2026, 2, 3, 14, 20, 0, 0, time.UTC)
	engine := newTestPolicyEngine(now)

	alert := testAlert()
	alert.CreatedAt = now
	settings := &types.AlertSettings{Digest: types.DigestOff}

	result, err := engine.Evaluate(context.Background(), alert, settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Decision != PolicyDeliverImmediately {
		t.Errorf("expected deliver immediately, got %s", result.Decision)
	}
}

func TestPolicyEngine_DigestInvalidTimezoneFailsOpen(t *testing.T) {
	now := time.Date(2026, 2, 3, 14, 20, 0, 0, time.UTC)
	engine := newTestPolicyEngine(now)

	alert := testAlert()
	alert.CreatedAt = now
	settings := &types.AlertSettings{
		Digest:     types.DigestHourly,
		QuietHours: &types.QuietHours{Timezone: "Mars/Olympus_Mons"},
	}

	if result := engine.evaluateDigest(alert, settings); result != nil {
		t.Errorf("malformed timezone must fail open, got %+v", result)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
		hour    int
		minute  int
	}{
		{"00:00", false, 0, 0},
		{"23:59", false, 23, 59},
		{"07:30", false, 7, 30},
		{"24:00", true, 0, 0},
		{"12:60", true, 0, 0},
		{"noon", true, 0, 0},
		{"", true, 0, 0},
	}

	for _, tt := range tests {
		got, err := parseTimeOfDay(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseTimeOfDay(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseTimeOfDay(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got.hour != tt.hour || got.minute != tt.minute {
			t.Errorf("parseTimeOfDay(%q) = %d:%d, want %d:%d", tt.input, got.hour, got.minute, tt.hour, tt.minute)
		}
	}
}
