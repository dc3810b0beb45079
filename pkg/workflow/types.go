package workflow

// Request is the FSM input. Immutable once accepted.
type Request struct {
	// Host is the HANA host the request targets, fully qualified.
	Host     string
	Database string

	// Label is the database snapshot correlation label, derived from the
	// request start time at second granularity.
	Label string

	// SnapshotSuffix names grouped snapshots in crash-consistent mode,
	// derived from the request start time.
	SnapshotSuffix string

	SuffixPrefix string
	GroupPrefix  string
}

// VolumeState is one persistence volume as the run progresses: discovered,
// then serial-resolved, then frozen and thawed.
type VolumeState struct {
	Host        string
	Path        string
	Role        string
	Serial      string
	ArrayVolume string
	Frozen      bool
}

// Response is the FSM output, accumulated across transitions.
type Response struct {
	Volumes []VolumeState

	// From Prepare
	BackupID    int64
	Label       string
	HandleState string

	// From ArraySnapshot / GroupSnapshot
	SnapshotName   string
	SnapshotSerial string
	GroupName      string

	// Recorded failures that must not short-circuit the chain: the array
	// stage and the thaw stage always hand control to the next state.
	ArrayFailure string
	ThawFailure  string

	// From Finalize / Complete
	Status       string
	ErrorMessage string

	// LastStage is the most recent state that completed successfully.
	LastStage string
}

// State names
const (
	StateIdle = "idle"

	// Application-consistent chain
	StateResolveVolume = "resolve_volume"
	StatePrepareDB     = "prepare_db"
	StateFreeze        = "freeze"
	StateArraySnapshot = "array_snapshot"
	StateUnfreeze      = "unfreeze"
	StateFinalize      = "finalize"

	// Crash-consistent chain
	StateResolveAll    = "resolve_all"
	StateEnsureGroup   = "ensure_group"
	StateFreezeAll     = "freeze_all"
	StateGroupSnapshot = "group_snapshot"
	StateUnfreezeAll   = "unfreeze_all"
	StateComplete      = "complete"

	StateFailed = "failed"
)

// Run outcome values
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)
