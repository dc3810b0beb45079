// Package protection keeps array-side protection groups converged with the
// volume set a database spans. All operations are idempotent so a re-run
// against partially completed state is safe.
package protection

import (
	"context"
	"log/slog"

	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
	"github.com/purestorage-openconnect/hanasnap/pkg/flasharray"
)

// GroupName derives the protection group name for a database.
func GroupName(prefix, database string) string {
	return prefix + "-" + database + "-CrashConsistency"
}

// MembershipReport records what EnsureMembers actually changed.
type MembershipReport struct {
	Added   []string
	Skipped []string
}

// Manager ensures groups and their membership exist on the array.
type Manager struct {
	array flasharray.Array
}

// NewManager wires the manager to an array.
func NewManager(array flasharray.Array) *Manager {
	return &Manager{array: array}
}

// EnsureGroup returns the named group, creating it when absent. The
// array's not-found response is the expected absent case, not an error.
func (m *Manager) EnsureGroup(ctx context.Context, name string) (*flasharray.ProtectionGroup, error) {
	pg, err := m.array.GetProtectionGroup(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "group lookup failed")
	}
	if pg != nil {
		slog.Info("pgroup_exists", "name", name)
		return pg, nil
	}

	pg, err = m.array.CreateProtectionGroup(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "group creation failed")
	}

	slog.Info("pgroup_created", "name", name)
	return pg, nil
}

// EnsureMembers adds each volume to the group unless it is already a
// member. Re-adding an existing member is a no-op, never an error.
func (m *Manager) EnsureMembers(ctx context.Context, group string, volumes []string) (*MembershipReport, error) {
	report := &MembershipReport{}

	for _, vol := range volumes {
		groups, err := m.array.ListVolumeProtectionGroups(ctx, vol)
		if err != nil {
			return nil, errors.Wrap(err, "membership lookup failed")
		}

		if contains(groups, group) {
			slog.Info("pgroup_member_exists", "group", group, "volume", vol)
			report.Skipped = append(report.Skipped, vol)
			continue
		}

		if err := m.array.AddVolume(ctx, group, vol); err != nil {
			return nil, errors.Wrap(err, "membership add failed")
		}
		slog.Info("pgroup_member_added", "group", group, "volume", vol)
		report.Added = append(report.Added, vol)
	}

	return report, nil
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
