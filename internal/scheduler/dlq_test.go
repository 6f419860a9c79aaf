package scheduler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"storepulse/internal/types"
)

// ============================================================
// Mock: DeadLetterDB
// ============================================================

type mockDeadLetterDB struct {
	movedCount int64
	moveErr    error

	deadAlerts []*types.Alert
	listErr    error

	deletedIDs []string
	deleteErr  error
}

func (m *mockDeadLetterDB) MoveExhaustedToDead(_ context.Context, _ int, _ time.Time) (int64, error) {
	if m.moveErr != nil {
		return 0, m.moveErr
	}
	return m.movedCount, nil
}

func (m *mockDeadLetterDB) ListDeadBefore(_ context.Context, _ time.Time, _ int) ([]*types.Alert, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.deadAlerts, nil
}

func (m *mockDeadLetterDB) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deletedIDs = append(m.deletedIDs, ids...)
	return int64(len(ids)), nil
}

// mockArchiver records uploads.
type mockArchiver struct {
	keys []string
	data [][]byte
	err  error
}

func (m *mockArchiver) UploadArchive(_ context.Context, key string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.keys = append(m.keys, key)
	m.data = append(m.data, data)
	return nil
}

// ============================================================

func deadAlert(id string) *types.Alert {
	return &types.Alert{
		ID:       id,
		TenantID: "shop-1",
		Channel:  types.ChannelEmail,
		Status:   types.AlertStatusDead,
		Attempts: 3,
	}
}

func TestProcessDLQ(t *testing.T) {
	db := &mockDeadLetterDB{movedCount: 7}
	p := NewDLQProcessor(db, nil, 3, testLogger())

	moved, err := p.ProcessDLQ(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved != 7 {
		t.Errorf("expected 7 moved, got %d", moved)
	}
}

func TestProcessDLQ_Error(t *testing.T) {
	db := &mockDeadLetterDB{moveErr: errors.New("db down")}
	p := NewDLQProcessor(db, nil, 3, testLogger())

	if _, err := p.ProcessDLQ(context.Background(), time.Now().UTC()); err == nil {
		t.Fatal("expected error")
	}
}

func TestArchiveDeadAlerts_ExportsAndDeletes(t *testing.T) {
	now := time.Date(2026, 8, 1, 4, 0, 0, 0, time.UTC)
	db := &mockDeadLetterDB{deadAlerts: []*types.Alert{deadAlert("alr_1"), deadAlert("alr_2")}}
	archiver := &mockArchiver{}
	p := NewDLQProcessor(db, archiver, 3, testLogger())

	archived, err := p.ArchiveDeadAlerts(context.Background(), now, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if archived != 2 {
		t.Errorf("expected 2 archived, got %d", archived)
	}

	if len(archiver.keys) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(archiver.keys))
	}
	if !strings.HasPrefix(archiver.keys[0], "alerts/dead/2026/08/batch_") ||
		!strings.HasSuffix(archiver.keys[0], ".jsonl.gz") {
		t.Errorf("unexpected archive key %q", archiver.keys[0])
	}

	// The export must round-trip as gzipped JSONL.
	gz, err := gzip.NewReader(bytes.NewReader(archiver.data[0]))
	if err != nil {
		t.Fatalf("archive is not valid gzip: %v", err)
	}
	var ids []string
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		var a types.Alert
		if err := json.Unmarshal(scanner.Bytes(), &a); err != nil {
			t.Fatalf("archive line is not valid JSON: %v", err)
		}
		ids = append(ids, a.ID)
	}
	if len(ids) != 2 || ids[0] != "alr_1" || ids[1] != "alr_2" {
		t.Errorf("unexpected archived ids %v", ids)
	}

	if len(db.deletedIDs) != 2 {
		t.Errorf("expected archived rows deleted, got %v", db.deletedIDs)
	}
}

func TestArchiveDeadAlerts_NothingEligible(t *testing.T) {
	db := &mockDeadLetterDB{}
	archiver := &mockArchiver{}
	p := NewDLQProcessor(db, archiver, 3, testLogger())

	archived, err := p.ArchiveDeadAlerts(context.Background(), time.Now().UTC(), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if archived != 0 || len(archiver.keys) != 0 {
		t.Errorf("expected no-op, got archived=%d uploads=%d", archived, len(archiver.keys))
	}
}

func TestArchiveDeadAlerts_NoArchiverLeavesRows(t *testing.T) {
	db := &mockDeadLetterDB{deadAlerts: []*types.Alert{deadAlert("alr_1")}}
	p := NewDLQProcessor(db, nil, 3, testLogger())

	archived, err := p.ArchiveDeadAlerts(context.Background(), time.Now().UTC(), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if archived != 0 {
		t.Errorf("expected 0 archived without an archiver, got %d", archived)
	}
	if len(db.deletedIDs) != 0 {
		t.Errorf("rows must not be deleted without an archive, got %v", db.deletedIDs)
	}
}

func TestArchiveDeadAlerts_UploadFailureKeepsRows(t *testing.T) {
	db := &mockDeadLetterDB{deadAlerts: []*types.Alert{deadAlert("alr_1")}}
	archiver := &mockArchiver{err: errors.New("bucket gone")}
	p := NewDLQProcessor(db, archiver, 3, testLogger())

	if _, err := p.ArchiveDeadAlerts(context.Background(), time.Now().UTC(), 30); err == nil {
		t.Fatal("expected error")
	}
	if len(db.deletedIDs) != 0 {
		t.Errorf("rows must survive a failed upload, got deletions %v", db.deletedIDs)
	}
}
