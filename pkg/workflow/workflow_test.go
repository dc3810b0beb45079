package workflow

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/purestorage-openconnect/hanasnap/pkg/flasharray"
	"github.com/purestorage-openconnect/hanasnap/pkg/hana"
	"github.com/purestorage-openconnect/hanasnap/pkg/protection"
)

// fakeHANA serves canned query results keyed by a statement substring and
// records executed statements.
type fakeHANA struct {
	results map[string][][]string
	execs   []string
}

func (f *fakeHANA) Query(ctx context.Context, stmt string) ([][]string, error) {
	for key, rows := range f.results {
		if strings.Contains(stmt, key) {
			return rows, nil
		}
	}
	return nil, nil
}

func (f *fakeHANA) Exec(ctx context.Context, stmt string) error {
	f.execs = append(f.execs, stmt)
	return nil
}

type fakeResolver struct {
	serials map[string]string
}

func (f *fakeResolver) Resolve(ctx context.Context, host, mount string) (string, error) {
	s, ok := f.serials[mount]
	if !ok {
		return "", fmt.Errorf("no serial for %s", mount)
	}
	return s, nil
}

type fakeFreezer struct {
	frozen   []string
	thawed   []string
	failPath string
}

func (f *fakeFreezer) Freeze(ctx context.Context, host, mount string) error {
	if mount == f.failPath {
		return fmt.Errorf("freeze refused for %s", mount)
	}
	f.frozen = append(f.frozen, mount)
	return nil
}

func (f *fakeFreezer) Thaw(ctx context.Context, host, mount string) error {
	f.thawed = append(f.thawed, mount)
	return nil
}

// fakeArray serves volumes and snapshots and keeps protection group state.
type fakeArray struct {
	volumes    []flasharray.Volume
	groups     map[string][]string
	snapFail   bool
	snapAbsent bool
	addCnt     int
	createCnt  int
	snapCnt    int
}

func newFakeArray(vols ...flasharray.Volume) *fakeArray {
	return &fakeArray{volumes: vols, groups: map[string][]string{}}
}

func (f *fakeArray) ListVolumes(ctx context.Context) ([]flasharray.Volume, error) {
	return f.volumes, nil
}

func (f *fakeArray) CreateVolumeSnapshot(ctx context.Context, volume, suffix string) (*flasharray.Snapshot, error) {
	f.snapCnt++
	if f.snapFail {
		return nil, fmt.Errorf("array rejected snapshot")
	}
	if f.snapAbsent {
		return nil, nil
	}
	return &flasharray.Snapshot{Name: volume + "." + suffix, Serial: "SNAP1", Source: volume}, nil
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
	f.snapCnt++
	if f.snapAbsent {
		return nil, nil
	}
	return &flasharray.Snapshot{Name: name + "." + suffix, Serial: "PGSNAP1", Source: name}, nil
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

func newTestMachine(db *fakeHANA, array *fakeArray, freezer *fakeFreezer, serials map[string]string) *Machine {
	return NewMachine(
		db,
		hana.NewProtocol(db),
		&fakeResolver{serials: serials},
		freezer,
		array,
		protection.NewManager(array),
	)
}

// runChain executes stages in registration order, mirroring the FSM
// transition sequence, and applies the same compensation a failing stage
// triggers in the real machine.
func runChain(t *testing.T, m *Machine, req *Request, resp *Response, stages []stageFunc) error {
	t.Helper()
	for _, stage := range stages {
		if err := stage(context.Background(), req, resp); err != nil {
			m.compensate(context.Background(), resp)
			return err
		}
	}
	return nil
}

func (m *Machine) appChain() []stageFunc {
	return []stageFunc{
		m.stageResolveVolume, m.stagePrepareDB, m.stageFreeze,
		m.stageArraySnapshot, m.stageUnfreeze, m.stageFinalize,
	}
}

func (m *Machine) crashChain() []stageFunc {
	return []stageFunc{
		m.stageResolveAll, m.stageEnsureGroup, m.stageFreezeAll,
		m.stageGroupSnapshot, m.stageUnfreeze, m.stageComplete,
	}
}

func appTestDB() *fakeHANA {
	return &fakeHANA{results: map[string][][]string{
		"basepath_datavolumes": {{"shn2", "1", "/hana/data/SH1/mnt00001", "WWID", "w"}},
		"M_BACKUP_CATALOG":     {{"4242", "SNAPSHOT-x"}},
	}}
}

// Scenario: application-consistent mode, array snapshot succeeds.
func TestAppConsistent_ArraySuccess(t *testing.T) {
	db := appTestDB()
	array := newFakeArray(flasharray.Volume{Name: "SH1-data", Serial: "abc123"})
	freezer := &fakeFreezer{}
	m := newTestMachine(db, array, freezer, map[string]string{"/hana/data/SH1/mnt00001": "abc123"})

	req := &Request{Host: "shn2", Database: "SH1", Label: "SNAPSHOT-x", SuffixPrefix: "SAPHANA"}
	resp := &Response{}

	if err := runChain(t, m, req, resp, m.appChain()); err != nil {
		t.Fatalf("chain failed: %v", err)
	}

	if resp.HandleState != string(hana.StateConfirmed) {
		t.Errorf("handle should be confirmed, got %s", resp.HandleState)
	}
	if resp.SnapshotName == "" {
		t.Error("expected a storage snapshot")
	}
	if resp.Status != StatusSucceeded {
		t.Errorf("expected succeeded, got %s", resp.Status)
	}

	// Freeze/thaw pairing
	if len(freezer.frozen) != 1 || len(freezer.thawed) != 1 || freezer.frozen[0] != freezer.thawed[0] {
		t.Errorf("freeze/thaw not paired: frozen=%v thawed=%v", freezer.frozen, freezer.thawed)
	}

	// Confirm statement was issued
	if !containsSubstring(db.execs, "SUCCESSFUL") {
		t.Errorf("confirm statement missing: %v", db.execs)
	}
}

// Scenario: application-consistent mode, array returns no snapshot
// identifier.
func TestAppConsistent_ArrayReturnsNoIdentifier(t *testing.T) {
	db := appTestDB()
	array := newFakeArray(flasharray.Volume{Name: "SH1-data", Serial: "abc123"})
	array.snapAbsent = true
	freezer := &fakeFreezer{}
	m := newTestMachine(db, array, freezer, map[string]string{"/hana/data/SH1/mnt00001": "abc123"})

	req := &Request{Host: "shn2", Database: "SH1", Label: "SNAPSHOT-x", SuffixPrefix: "SAPHANA"}
	resp := &Response{}

	err := runChain(t, m, req, resp, m.appChain())
	if err == nil {
		t.Fatal("run should fail when the array returns no identifier")
	}

	if resp.HandleState != string(hana.StateAbandoned) {
		t.Errorf("handle should be abandoned, got %s", resp.HandleState)
	}
	if resp.SnapshotName != "" {
		t.Errorf("no storage snapshot expected, got %s", resp.SnapshotName)
	}
	if !containsSubstring(db.execs, "UNSUCCESSFUL") {
		t.Errorf("abandon statement missing: %v", db.execs)
	}

	// Thaw still ran before the abandon decision
	if len(freezer.thawed) != 1 {
		t.Errorf("thaw must run despite array failure: %v", freezer.thawed)
	}
}

// The thaw must also run when the array call errors outright.
func TestAppConsistent_ThawRunsOnArrayError(t *testing.T) {
	db := appTestDB()
	array := newFakeArray(flasharray.Volume{Name: "SH1-data", Serial: "abc123"})
	array.snapFail = true
	freezer := &fakeFreezer{}
	m := newTestMachine(db, array, freezer, map[string]string{"/hana/data/SH1/mnt00001": "abc123"})

	req := &Request{Host: "shn2", Database: "SH1", Label: "SNAPSHOT-x", SuffixPrefix: "SAPHANA"}
	resp := &Response{}

	if err := runChain(t, m, req, resp, m.appChain()); err == nil {
		t.Fatal("run should fail")
	}
	if len(freezer.frozen) != 1 || len(freezer.thawed) != 1 {
		t.Errorf("freeze/thaw not paired on failure: frozen=%v thawed=%v", freezer.frozen, freezer.thawed)
	}
	if resp.HandleState != string(hana.StateAbandoned) {
		t.Errorf("handle must not stay prepared, got %s", resp.HandleState)
	}
}

// A prepared marker is abandoned when freezing fails before the array is
// ever reached.
func TestAppConsistent_FreezeFailureAbandonsMarker(t *testing.T) {
	db := appTestDB()
	array := newFakeArray(flasharray.Volume{Name: "SH1-data", Serial: "abc123"})
	freezer := &fakeFreezer{failPath: "/hana/data/SH1/mnt00001"}
	m := newTestMachine(db, array, freezer, map[string]string{"/hana/data/SH1/mnt00001": "abc123"})

	req := &Request{Host: "shn2", Database: "SH1", Label: "SNAPSHOT-x", SuffixPrefix: "SAPHANA"}
	resp := &Response{}

	if err := runChain(t, m, req, resp, m.appChain()); err == nil {
		t.Fatal("run should fail")
	}
	if resp.HandleState != string(hana.StateAbandoned) {
		t.Errorf("marker must be abandoned on freeze failure, got %s", resp.HandleState)
	}
	if array.snapCnt != 0 {
		t.Error("array must not be called after freeze failure")
	}
}

func crashTestDB() *fakeHANA {
	return &fakeHANA{results: map[string][][]string{
		"basepath_datavolumes": {{"shn2", "1", "/hana/data/HN1/mnt00001", "WWID", "w"}},
		"basepath_logvolumes":  {{"shn2", "2", "/hana/log/HN1/mnt00001", "WWID", "w"}},
	}}
}

func crashSerials() map[string]string {
	return map[string]string{
		"/hana/data/HN1/mnt00001": "abc123",
		"/hana/log/HN1/mnt00001":  "def456",
	}
}

// Scenario: crash-consistent mode with two volumes and an absent group.
func TestCrashConsistent_GroupCreatedAndSnapshotted(t *testing.T) {
	db := crashTestDB()
	array := newFakeArray(
		flasharray.Volume{Name: "HN1-data", Serial: "abc123"},
		flasharray.Volume{Name: "HN1-log", Serial: "def456"},
	)
	freezer := &fakeFreezer{}
	m := newTestMachine(db, array, freezer, crashSerials())

	req := &Request{Host: "shn2", Database: "HN1", GroupPrefix: "SAPHANA", SnapshotSuffix: "SAPHANA-20260314-092653"}
	resp := &Response{}

	if err := runChain(t, m, req, resp, m.crashChain()); err != nil {
		t.Fatalf("chain failed: %v", err)
	}

	if resp.GroupName != "SAPHANA-HN1-CrashConsistency" {
		t.Errorf("unexpected group name %q", resp.GroupName)
	}
	if array.createCnt != 1 {
		t.Errorf("group should be created once, got %d", array.createCnt)
	}
	if array.addCnt != 2 {
		t.Errorf("both volumes should be added exactly once, got %d adds", array.addCnt)
	}
	if !strings.Contains(resp.SnapshotName, "SAPHANA-HN1-CrashConsistency") {
		t.Errorf("snapshot must reference the group name: %q", resp.SnapshotName)
	}
	if resp.Status != StatusSucceeded {
		t.Errorf("expected succeeded, got %s", resp.Status)
	}

	// No database marker exists in this mode
	if len(db.execs) != 0 {
		t.Errorf("crash-consistent mode must not touch the backup catalog: %v", db.execs)
	}

	// Every volume frozen and thawed
	if len(freezer.frozen) != 2 || len(freezer.thawed) != 2 {
		t.Errorf("freeze/thaw not paired: frozen=%v thawed=%v", freezer.frozen, freezer.thawed)
	}
}

// Scenario: re-run against a group where both volumes are already members.
func TestCrashConsistent_RerunIsIdempotent(t *testing.T) {
	db := crashTestDB()
	array := newFakeArray(
		flasharray.Volume{Name: "HN1-data", Serial: "abc123"},
		flasharray.Volume{Name: "HN1-log", Serial: "def456"},
	)
	array.groups["SAPHANA-HN1-CrashConsistency"] = []string{"HN1-data", "HN1-log"}
	freezer := &fakeFreezer{}
	m := newTestMachine(db, array, freezer, crashSerials())

	req := &Request{Host: "shn2", Database: "HN1", GroupPrefix: "SAPHANA", SnapshotSuffix: "SAPHANA-20260314-093000"}
	resp := &Response{}

	if err := runChain(t, m, req, resp, m.crashChain()); err != nil {
		t.Fatalf("chain failed: %v", err)
	}

	if array.addCnt != 0 {
		t.Errorf("re-run must issue no membership adds, got %d", array.addCnt)
	}
	if array.createCnt != 0 {
		t.Errorf("re-run must not recreate the group, got %d", array.createCnt)
	}
	if resp.SnapshotName == "" {
		t.Error("snapshot should still be created on re-run")
	}
}

// A mid-loop freeze failure thaws exactly the mounts that were frozen.
func TestCrashConsistent_PartialFreezeFailure(t *testing.T) {
	db := crashTestDB()
	array := newFakeArray(
		flasharray.Volume{Name: "HN1-data", Serial: "abc123"},
		flasharray.Volume{Name: "HN1-log", Serial: "def456"},
	)
	freezer := &fakeFreezer{failPath: "/hana/log/HN1/mnt00001"}
	m := newTestMachine(db, array, freezer, crashSerials())

	req := &Request{Host: "shn2", Database: "HN1", GroupPrefix: "SAPHANA", SnapshotSuffix: "s"}
	resp := &Response{}

	if err := runChain(t, m, req, resp, m.crashChain()); err == nil {
		t.Fatal("run should fail")
	}

	if len(freezer.frozen) != 1 || freezer.frozen[0] != "/hana/data/HN1/mnt00001" {
		t.Fatalf("unexpected frozen set: %v", freezer.frozen)
	}
	if len(freezer.thawed) != 1 || freezer.thawed[0] != "/hana/data/HN1/mnt00001" {
		t.Errorf("compensation must thaw exactly the frozen mounts: %v", freezer.thawed)
	}
	if array.snapCnt != 0 {
		t.Error("no snapshot must be attempted after a failed freeze")
	}
}

func TestSnapshotSuffix(t *testing.T) {
	got := snapshotSuffix("SAPHANA", "shn2.puredoes.local", "/hana/data/SH1/mnt00001", 4242)
	want := "SAPHANA-shn2.puredoes.local-hanadataSH1mnt00001-4242"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func containsSubstring(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
