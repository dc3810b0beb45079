package hana

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
)

// fakeDB records executed statements and serves canned query results keyed
// by a substring of the statement.
type fakeDB struct {
	execs   []string
	queries []string
	results map[string][][]string
	execErr error
}

func (f *fakeDB) Query(ctx context.Context, stmt string) ([][]string, error) {
	f.queries = append(f.queries, stmt)
	for key, rows := range f.results {
		if strings.Contains(stmt, key) {
			return rows, nil
		}
	}
	return nil, nil
}

func (f *fakeDB) Exec(ctx context.Context, stmt string) error {
	f.execs = append(f.execs, stmt)
	return f.execErr
}

func TestLabelFormat(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 26, 53, 500, time.UTC)
	label := Label(start)

	want := "SNAPSHOT-14/03/2026 09:26:53"
	if label != want {
		t.Errorf("label mismatch: got %q, want %q", label, want)
	}

	// Sub-second components must not leak into the label
	if Label(start.Add(300*time.Millisecond)) != label {
		t.Error("label should have second granularity")
	}
}

func TestProtocol_Prepare(t *testing.T) {
	db := &fakeDB{results: map[string][][]string{
		"M_BACKUP_CATALOG": {{"1591737488102", "SNAPSHOT-14/03/2026 09:26:53"}},
	}}
	p := NewProtocol(db)

	h, err := p.Prepare(context.Background(), "SNAPSHOT-14/03/2026 09:26:53")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}

	if h.BackupID != 1591737488102 {
		t.Errorf("wrong backup id: got %d", h.BackupID)
	}
	if h.State != StatePrepared {
		t.Errorf("expected prepared state, got %s", h.State)
	}

	if len(db.execs) != 1 || !strings.Contains(db.execs[0], "CREATE SNAPSHOT COMMENT 'SNAPSHOT-14/03/2026 09:26:53'") {
		t.Errorf("unexpected prepare statement: %v", db.execs)
	}
	if !strings.Contains(db.queries[0], "STATE_NAME = 'prepared'") {
		t.Errorf("catalog lookup must filter on prepared state: %s", db.queries[0])
	}
}

func TestProtocol_PrepareNoCatalogEntry(t *testing.T) {
	p := NewProtocol(&fakeDB{})

	_, err := p.Prepare(context.Background(), "SNAPSHOT-x")
	if err == nil {
		t.Fatal("expected error when catalog has no matching entry")
	}
	if !errors.IsKind(err, errors.KindParse) {
		t.Errorf("expected parse kind, got %v", err)
	}
}

func TestProtocol_ConfirmTransitionsHandle(t *testing.T) {
	db := &fakeDB{}
	p := NewProtocol(db)
	h := &Handle{BackupID: 42, Label: "SNAPSHOT-x", State: StatePrepared}

	if err := p.Confirm(context.Background(), h, "vol-suffix-abc"); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if h.State != StateConfirmed {
		t.Errorf("expected confirmed, got %s", h.State)
	}
	if !strings.Contains(db.execs[0], "CLOSE SNAPSHOT BACKUP_ID 42 SUCCESSFUL") {
		t.Errorf("unexpected confirm statement: %s", db.execs[0])
	}
}

func TestProtocol_AbandonTransitionsHandle(t *testing.T) {
	db := &fakeDB{}
	p := NewProtocol(db)
	h := &Handle{BackupID: 42, Label: "SNAPSHOT-x", State: StatePrepared}

	if err := p.Abandon(context.Background(), h, ""); err != nil {
		t.Fatalf("abandon failed: %v", err)
	}
	if h.State != StateAbandoned {
		t.Errorf("expected abandoned, got %s", h.State)
	}
	if !strings.Contains(db.execs[0], "UNSUCCESSFUL 'no_value'") {
		t.Errorf("empty reason should fall back to no_value: %s", db.execs[0])
	}
}

func TestProtocol_TerminalStateIsSticky(t *testing.T) {
	db := &fakeDB{}
	p := NewProtocol(db)

	tests := []struct {
		name  string
		state HandleState
	}{
		{"confirmed handle", StateConfirmed},
		{"abandoned handle", StateAbandoned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Handle{BackupID: 7, State: tt.state}

			if err := p.Confirm(context.Background(), h, "x"); !errors.IsKind(err, errors.KindState) {
				t.Errorf("confirm on %s handle: expected state error, got %v", tt.state, err)
			}
			if err := p.Abandon(context.Background(), h, "x"); !errors.IsKind(err, errors.KindState) {
				t.Errorf("abandon on %s handle: expected state error, got %v", tt.state, err)
			}
			if h.State != tt.state {
				t.Errorf("terminal state must not change: got %s", h.State)
			}
		})
	}
}
