package protection

import (
	"context"
	"testing"

	"github.com/purestorage-openconnect/hanasnap/pkg/flasharray"
)

// fakeArray keeps protection group state in memory and counts mutating
// calls.
type fakeArray struct {
	groups     map[string][]string
	createCnt  int
	addCnt     int
	lookupMiss bool
}

func newFakeArray() *fakeArray {
	return &fakeArray{groups: map[string][]string{}}
}

func (f *fakeArray) ListVolumes(ctx context.Context) ([]flasharray.Volume, error) {
	return nil, nil
}

func (f *fakeArray) CreateVolumeSnapshot(ctx context.Context, volume, suffix string) (*flasharray.Snapshot, error) {
	return nil, nil
}

func (f *fakeArray) GetProtectionGroup(ctx context.Context, name string) (*flasharray.ProtectionGroup, error) {
	vols, ok := f.groups[name]
	if !ok {
		return nil, nil
	}
	return &flasharray.ProtectionGroup{Name: name, Volumes: vols}, nil
}

func (f *fakeArray) CreateProtectionGroup(ctx context.Context, name string) (*flasharray.ProtectionGroup, error) {
	f.createCnt++
	f.groups[name] = nil
	return &flasharray.ProtectionGroup{Name: name}, nil
}

func (f *fakeArray) CreateProtectionGroupSnapshot(ctx context.Context, name, suffix string) (*flasharray.Snapshot, error) {
	return &flasharray.Snapshot{Name: name + "." + suffix, Source: name}, nil
}

func (f *fakeArray) ListVolumeProtectionGroups(ctx context.Context, volume string) ([]string, error) {
	var names []string
	for name, vols := range f.groups {
		for _, v := range vols {
			if v == volume {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func (f *fakeArray) AddVolume(ctx context.Context, group, volume string) error {
	f.addCnt++
	f.groups[group] = append(f.groups[group], volume)
	return nil
}

func TestGroupName(t *testing.T) {
	got := GroupName("SAPHANA", "HN1")
	if got != "SAPHANA-HN1-CrashConsistency" {
		t.Errorf("got %q", got)
	}
}

func TestEnsureGroupCreatesWhenAbsent(t *testing.T) {
	array := newFakeArray()
	mgr := NewManager(array)

	pg, err := mgr.EnsureGroup(context.Background(), "SAPHANA-HN1-CrashConsistency")
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if pg.Name != "SAPHANA-HN1-CrashConsistency" {
		t.Errorf("unexpected group: %+v", pg)
	}
	if array.createCnt != 1 {
		t.Errorf("expected 1 create call, got %d", array.createCnt)
	}

	// Second ensure finds the existing group
	if _, err := mgr.EnsureGroup(context.Background(), "SAPHANA-HN1-CrashConsistency"); err != nil {
		t.Fatalf("re-ensure failed: %v", err)
	}
	if array.createCnt != 1 {
		t.Errorf("re-ensure must not create again, got %d creates", array.createCnt)
	}
}

func TestEnsureMembersIdempotent(t *testing.T) {
	array := newFakeArray()
	mgr := NewManager(array)
	group := "SAPHANA-HN1-CrashConsistency"
	vols := []string{"HN1-data", "HN1-log"}

	if _, err := mgr.EnsureGroup(context.Background(), group); err != nil {
		t.Fatalf("ensure group failed: %v", err)
	}

	first, err := mgr.EnsureMembers(context.Background(), group, vols)
	if err != nil {
		t.Fatalf("first ensure failed: %v", err)
	}
	if len(first.Added) != 2 || len(first.Skipped) != 0 {
		t.Errorf("first run should add both: %+v", first)
	}

	second, err := mgr.EnsureMembers(context.Background(), group, vols)
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if len(second.Added) != 0 || len(second.Skipped) != 2 {
		t.Errorf("second run should skip both: %+v", second)
	}

	if array.addCnt != 2 {
		t.Errorf("expected exactly 2 add calls total, got %d", array.addCnt)
	}
	if len(array.groups[group]) != 2 {
		t.Errorf("final membership set changed: %v", array.groups[group])
	}
}

func TestEnsureMembersPartialState(t *testing.T) {
	array := newFakeArray()
	mgr := NewManager(array)
	group := "SAPHANA-HN1-CrashConsistency"

	// A previous run added only the data volume before failing
	array.groups[group] = []string{"HN1-data"}

	report, err := mgr.EnsureMembers(context.Background(), group, []string{"HN1-data", "HN1-log"})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if len(report.Added) != 1 || report.Added[0] != "HN1-log" {
		t.Errorf("only the missing volume should be added: %+v", report)
	}
	if array.addCnt != 1 {
		t.Errorf("expected 1 add call, got %d", array.addCnt)
	}
}
