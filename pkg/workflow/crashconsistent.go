package workflow

import (
	"context"
	"log/slog"

	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
	"github.com/purestorage-openconnect/hanasnap/pkg/flasharray"
	"github.com/purestorage-openconnect/hanasnap/pkg/hana"
	"github.com/purestorage-openconnect/hanasnap/pkg/protection"
)

// stageResolveAll discovers every data and log volume of the system and
// resolves each one's storage serial number.
func (m *Machine) stageResolveAll(ctx context.Context, req *Request, resp *Response) error {
	var discovered []hana.PersistenceVolume
	for _, role := range []string{hana.RoleData, hana.RoleLog} {
		vols, err := hana.DiscoverVolumes(ctx, m.db, role)
		if err != nil {
			return errors.Wrap(err, role+" volume discovery failed")
		}
		discovered = append(discovered, vols...)
	}
	if len(discovered) == 0 {
		return errors.New(errors.KindParse, "no persistence volumes discovered")
	}

	resp.Volumes = make([]VolumeState, 0, len(discovered))
	for _, vol := range discovered {
		host := m.hostname(vol.Host)
		if vol.Host == "" {
			host = req.Host
		}
		serial, err := m.resolver.Resolve(ctx, host, vol.Path)
		if err != nil {
			return errors.Wrap(err, "volume resolution failed")
		}
		resp.Volumes = append(resp.Volumes, VolumeState{
			Host:   host,
			Path:   vol.Path,
			Role:   vol.Role,
			Serial: serial,
		})
	}
	return nil
}

// stageEnsureGroup converges the protection group: maps each resolved
// serial to its array volume, creates the group when absent, and adds the
// missing members. Idempotent across re-runs.
func (m *Machine) stageEnsureGroup(ctx context.Context, req *Request, resp *Response) error {
	name := protection.GroupName(req.GroupPrefix, req.Database)

	members := make([]string, 0, len(resp.Volumes))
	for i := range resp.Volumes {
		vol := &resp.Volumes[i]
		av, err := flasharray.FindVolumeBySerial(ctx, m.array, vol.Serial)
		if err != nil {
			return errors.Wrap(err, "array volume lookup failed")
		}
		vol.ArrayVolume = av.Name
		members = append(members, av.Name)
	}

	if _, err := m.pgroups.EnsureGroup(ctx, name); err != nil {
		return errors.Wrap(err, "protection group ensure failed")
	}

	report, err := m.pgroups.EnsureMembers(ctx, name, members)
	if err != nil {
		return errors.Wrap(err, "protection group membership failed")
	}

	resp.GroupName = name
	slog.Info("pgroup_converged", "group", name, "added", len(report.Added), "skipped", len(report.Skipped))
	return nil
}

// stageFreezeAll suspends writes on every member volume. Each successful
// freeze is recorded before the next is attempted: a mid-loop failure
// aborts the machine, and compensation thaws exactly the mounts that were
// actually frozen.
func (m *Machine) stageFreezeAll(ctx context.Context, req *Request, resp *Response) error {
	for i := range resp.Volumes {
		vol := &resp.Volumes[i]
		if err := m.freezer.Freeze(ctx, vol.Host, vol.Path); err != nil {
			return errors.Wrap(err, "freeze failed for "+vol.Path)
		}
		vol.Frozen = true
	}
	return nil
}

// stageGroupSnapshot triggers the grouped array snapshot. Like the
// single-volume variant it never fails the machine, so UnfreezeAll always
// runs.
func (m *Machine) stageGroupSnapshot(ctx context.Context, req *Request, resp *Response) error {
	snap, err := m.array.CreateProtectionGroupSnapshot(ctx, resp.GroupName, req.SnapshotSuffix)
	if err != nil {
		slog.Error("pgroup_snapshot_failed", "group", resp.GroupName, "error", err)
		resp.ArrayFailure = err.Error()
		return nil
	}
	if snap == nil {
		slog.Error("pgroup_snapshot_no_identifier", "group", resp.GroupName)
		resp.ArrayFailure = "array returned no snapshot identifier"
		return nil
	}

	resp.SnapshotName = snap.Name
	resp.SnapshotSerial = snap.Serial
	slog.Info("pgroup_snapshot_created", "name", snap.Name, "group", resp.GroupName)
	return nil
}

// stageComplete settles the crash-consistent run outcome from the
// recorded failures.
func (m *Machine) stageComplete(ctx context.Context, req *Request, resp *Response) error {
	if resp.ArrayFailure != "" {
		resp.Status = StatusFailed
		resp.ErrorMessage = resp.ArrayFailure
		return errors.Newf(errors.KindSnapshotCreation, "group snapshot failed: %s", resp.ArrayFailure)
	}
	if resp.ThawFailure != "" {
		resp.Status = StatusFailed
		resp.ErrorMessage = resp.ThawFailure
		return errors.Newf(errors.KindConnectivity, "thaw failed: %s", resp.ThawFailure)
	}

	resp.Status = StatusSucceeded
	slog.Info("fsm_complete", "database", req.Database, "snapshot", resp.SnapshotName, "group", resp.GroupName)
	return nil
}
