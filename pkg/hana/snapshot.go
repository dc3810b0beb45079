package hana

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
)

// HandleState tracks the lifecycle of a database snapshot marker.
type HandleState string

const (
	StatePrepared  HandleState = "prepared"
	StateConfirmed HandleState = "confirmed"
	StateAbandoned HandleState = "abandoned"
)

// Handle identifies a prepared database snapshot marker. A Handle must
// reach StateConfirmed or StateAbandoned before the run that created it
// ends; StatePrepared is never terminal.
type Handle struct {
	BackupID int64
	Label    string
	State    HandleState
}

// Terminal reports whether the handle reached a final state.
func (h *Handle) Terminal() bool {
	return h.State == StateConfirmed || h.State == StateAbandoned
}

// Label derives the snapshot correlation comment from the run start time.
// Second granularity: two runs started within the same second collide, the
// caller is expected to run at most one snapshot per (host, database) pair.
func Label(start time.Time) string {
	return "SNAPSHOT-" + start.Format("02/01/2006 15:04:05")
}

// Protocol prepares, confirms, or abandons database snapshot markers.
type Protocol struct {
	db Database
}

// NewProtocol wires the protocol to a Database, typically the system
// database on an MDC installation.
func NewProtocol(db Database) *Protocol {
	return &Protocol{db: db}
}

// Prepare creates a snapshot marker tagged with label, then looks up the
// backup identifier the engine assigned to it from the backup catalog.
func (p *Protocol) Prepare(ctx context.Context, label string) (*Handle, error) {
	slog.Info("hana_snapshot_prepare", "label", label)

	create := fmt.Sprintf("BACKUP DATA FOR FULL SYSTEM CREATE SNAPSHOT COMMENT '%s'", label)
	if err := p.db.Exec(ctx, create); err != nil {
		return nil, errors.Wrap(err, "snapshot prepare statement failed")
	}

	lookup := fmt.Sprintf("SELECT BACKUP_ID, COMMENT FROM M_BACKUP_CATALOG WHERE ENTRY_TYPE_NAME = 'data snapshot' AND STATE_NAME = 'prepared' AND COMMENT = '%s'", label)
	rows, err := p.db.Query(ctx, lookup)
	if err != nil {
		return nil, errors.Wrap(err, "backup catalog lookup failed")
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.Newf(errors.KindParse, "no prepared catalog entry matches label %q", label)
	}

	id, err := strconv.ParseInt(rows[0][0], 10, 64)
	if err != nil {
		return nil, errors.Newf(errors.KindParse, "backup id %q is not numeric", rows[0][0])
	}

	slog.Info("hana_snapshot_prepared", "label", label, "backup_id", id)
	return &Handle{BackupID: id, Label: label, State: StatePrepared}, nil
}

// Confirm closes the marker as successful, recording the external snapshot
// correlation value against the catalog entry.
func (p *Protocol) Confirm(ctx context.Context, h *Handle, externalID string) error {
	if h.Terminal() {
		return errors.Newf(errors.KindState, "handle %d already %s", h.BackupID, h.State)
	}

	stmt := fmt.Sprintf("BACKUP DATA FOR FULL SYSTEM CLOSE SNAPSHOT BACKUP_ID %d SUCCESSFUL 'FlashArray Snapshot ID :%s'", h.BackupID, externalID)
	if err := p.db.Exec(ctx, stmt); err != nil {
		return errors.Wrap(err, "snapshot confirm statement failed")
	}

	h.State = StateConfirmed
	slog.Info("hana_snapshot_confirmed", "backup_id", h.BackupID, "external_id", externalID)
	return nil
}

// Abandon closes the marker as unsuccessful. It is the compensating action
// for a prepared marker whose array snapshot did not succeed.
func (p *Protocol) Abandon(ctx context.Context, h *Handle, reason string) error {
	if h.Terminal() {
		return errors.Newf(errors.KindState, "handle %d already %s", h.BackupID, h.State)
	}
	if reason == "" {
		reason = "no_value"
	}

	stmt := fmt.Sprintf("BACKUP DATA FOR FULL SYSTEM CLOSE SNAPSHOT BACKUP_ID %d UNSUCCESSFUL '%s'", h.BackupID, reason)
	if err := p.db.Exec(ctx, stmt); err != nil {
		return errors.Wrap(err, "snapshot abandon statement failed")
	}

	h.State = StateAbandoned
	slog.Info("hana_snapshot_abandoned", "backup_id", h.BackupID, "reason", reason)
	return nil
}
