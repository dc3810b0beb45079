package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
	"github.com/purestorage-openconnect/hanasnap/pkg/flasharray"
	"github.com/purestorage-openconnect/hanasnap/pkg/hana"
)

// stageResolveVolume discovers the data volume and resolves its storage
// serial number.
func (m *Machine) stageResolveVolume(ctx context.Context, req *Request, resp *Response) error {
	vols, err := hana.DiscoverVolumes(ctx, m.db, hana.RoleData)
	if err != nil {
		return errors.Wrap(err, "data volume discovery failed")
	}
	if len(vols) == 0 {
		return errors.New(errors.KindParse, "no data volume discovered")
	}

	// Single-volume mode: the first data volume is the one backing the
	// database persistence.
	vol := vols[0]
	host := m.hostname(vol.Host)
	if vol.Host == "" {
		host = req.Host
	}

	serial, err := m.resolver.Resolve(ctx, host, vol.Path)
	if err != nil {
		return errors.Wrap(err, "volume resolution failed")
	}

	resp.Volumes = []VolumeState{{
		Host:   host,
		Path:   vol.Path,
		Role:   vol.Role,
		Serial: serial,
	}}
	return nil
}

// stagePrepareDB creates the database snapshot marker.
func (m *Machine) stagePrepareDB(ctx context.Context, req *Request, resp *Response) error {
	h, err := m.protocol.Prepare(ctx, req.Label)
	if err != nil {
		return errors.Wrap(err, "snapshot prepare failed")
	}

	resp.BackupID = h.BackupID
	resp.Label = h.Label
	resp.HandleState = string(h.State)
	return nil
}

// stageFreeze suspends writes on the data volume filesystem.
func (m *Machine) stageFreeze(ctx context.Context, req *Request, resp *Response) error {
	if len(resp.Volumes) == 0 {
		return errors.New(errors.KindState, "no resolved volume to freeze")
	}

	vol := &resp.Volumes[0]
	if err := m.freezer.Freeze(ctx, vol.Host, vol.Path); err != nil {
		return errors.Wrap(err, "freeze failed")
	}
	vol.Frozen = true
	return nil
}

// stageArraySnapshot triggers the array snapshot. It never fails the
// machine: any failure is recorded in the response so Unfreeze and
// Finalize always run.
func (m *Machine) stageArraySnapshot(ctx context.Context, req *Request, resp *Response) error {
	vol := &resp.Volumes[0]
	suffix := snapshotSuffix(req.SuffixPrefix, vol.Host, vol.Path, resp.BackupID)

	av, err := flasharray.FindVolumeBySerial(ctx, m.array, vol.Serial)
	if err != nil {
		slog.Error("array_volume_lookup_failed", "serial", vol.Serial, "error", err)
		resp.ArrayFailure = err.Error()
		return nil
	}
	vol.ArrayVolume = av.Name

	snap, err := m.array.CreateVolumeSnapshot(ctx, av.Name, suffix)
	if err != nil {
		slog.Error("array_snapshot_failed", "volume", av.Name, "error", err)
		resp.ArrayFailure = err.Error()
		return nil
	}
	if snap == nil {
		slog.Error("array_snapshot_no_identifier", "volume", av.Name)
		resp.ArrayFailure = "array returned no snapshot identifier"
		return nil
	}

	resp.SnapshotName = snap.Name
	resp.SnapshotSerial = snap.Serial
	slog.Info("array_snapshot_created", "name", snap.Name, "serial", snap.Serial)
	return nil
}

// stageUnfreeze thaws every mount recorded as frozen, independent of the
// array outcome. Thaw failures are recorded, not propagated, so the marker
// still reaches a terminal state downstream.
func (m *Machine) stageUnfreeze(ctx context.Context, req *Request, resp *Response) error {
	for i := range resp.Volumes {
		vol := &resp.Volumes[i]
		if !vol.Frozen {
			continue
		}
		if err := m.freezer.Thaw(ctx, vol.Host, vol.Path); err != nil {
			slog.Error("thaw_failed", "host", vol.Host, "mount", vol.Path, "error", err)
			resp.ThawFailure = err.Error()
			continue
		}
		vol.Frozen = false
	}
	return nil
}

// stageFinalize drives the marker to its terminal state: Confirmed when
// the array produced a snapshot, Abandoned otherwise. It then settles the
// run outcome from the recorded failures.
func (m *Machine) stageFinalize(ctx context.Context, req *Request, resp *Response) error {
	h := &hana.Handle{BackupID: resp.BackupID, Label: resp.Label, State: hana.HandleState(resp.HandleState)}

	if h.State == hana.StatePrepared {
		if resp.SnapshotName != "" {
			external := fmt.Sprintf("%s (%s)", resp.SnapshotName, resp.SnapshotSerial)
			if err := m.protocol.Confirm(ctx, h, external); err != nil {
				return errors.Wrap(err, "snapshot confirm failed")
			}
		} else {
			if err := m.protocol.Abandon(ctx, h, resp.ArrayFailure); err != nil {
				return errors.Wrap(err, "snapshot abandon failed")
			}
		}
		resp.HandleState = string(h.State)
	}

	if resp.ArrayFailure != "" {
		resp.Status = StatusFailed
		resp.ErrorMessage = resp.ArrayFailure
		return errors.Newf(errors.KindSnapshotCreation, "array snapshot failed: %s", resp.ArrayFailure)
	}
	if resp.ThawFailure != "" {
		resp.Status = StatusFailed
		resp.ErrorMessage = resp.ThawFailure
		return fmt.Errorf("thaw failed: %s", resp.ThawFailure)
	}

	resp.Status = StatusSucceeded
	slog.Info("fsm_complete", "database", req.Database, "snapshot", resp.SnapshotName, "handle_state", resp.HandleState)
	return nil
}

// snapshotSuffix names a volume snapshot after its host, mount, and the
// database backup identifier.
func snapshotSuffix(prefix, host, mount string, backupID int64) string {
	return fmt.Sprintf("%s-%s-%s-%d", prefix, host, strings.ReplaceAll(mount, "/", ""), backupID)
}
