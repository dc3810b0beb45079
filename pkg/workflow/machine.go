// Package workflow implements the snapshot orchestration state machines.
// Two chains exist: application-consistent (single volume, with a database
// snapshot marker) and crash-consistent (all volumes, grouped array
// snapshot, no marker). Both run on the superfly/fsm library.
package workflow

import (
	"context"
	"log/slog"

	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
	"github.com/purestorage-openconnect/hanasnap/pkg/flasharray"
	"github.com/purestorage-openconnect/hanasnap/pkg/hana"
	"github.com/purestorage-openconnect/hanasnap/pkg/protection"
	"github.com/superfly/fsm"
)

// Resolver maps a mount path on a host to a storage serial number.
type Resolver interface {
	Resolve(ctx context.Context, host, mount string) (string, error)
}

// Freezer freezes and thaws remote filesystems.
type Freezer interface {
	Freeze(ctx context.Context, host, mount string) error
	Thaw(ctx context.Context, host, mount string) error
}

// Machine holds dependencies for FSM transitions
type Machine struct {
	db       hana.Database
	protocol *hana.Protocol
	resolver Resolver
	freezer  Freezer
	array    flasharray.Array
	pgroups  *protection.Manager

	// QualifyHost maps a bare catalog hostname to the name used for SSH.
	// Optional; identity when nil.
	QualifyHost func(host string) string
}

func (m *Machine) hostname(host string) string {
	if m.QualifyHost == nil {
		return host
	}
	return m.QualifyHost(host)
}

// NewMachine creates a new FSM machine with dependencies
func NewMachine(
	db hana.Database,
	protocol *hana.Protocol,
	resolver Resolver,
	freezer Freezer,
	array flasharray.Array,
	pgroups *protection.Manager,
) *Machine {
	return &Machine{
		db:       db,
		protocol: protocol,
		resolver: resolver,
		freezer:  freezer,
		array:    array,
		pgroups:  pgroups,
	}
}

// RegisterApplicationConsistent registers the application-consistent chain.
// ArraySnapshot follows Freeze immediately and Unfreeze follows the array
// call, before the confirm/abandon decision, to keep the freeze window
// minimal.
func (m *Machine) RegisterApplicationConsistent(ctx context.Context, manager *fsm.Manager) (fsm.Start[Request, Response], fsm.Resume, error) {
	start, resume, err := fsm.Register[Request, Response](manager, "app-consistent-snapshot").
		Start(StateResolveVolume, m.handle(StateResolveVolume, m.stageResolveVolume)).
		To(StatePrepareDB, m.handle(StatePrepareDB, m.stagePrepareDB)).
		To(StateFreeze, m.handle(StateFreeze, m.stageFreeze)).
		To(StateArraySnapshot, m.handle(StateArraySnapshot, m.stageArraySnapshot)).
		To(StateUnfreeze, m.handle(StateUnfreeze, m.stageUnfreeze)).
		To(StateFinalize, m.handle(StateFinalize, m.stageFinalize)).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}
	return start, resume, nil
}

// RegisterCrashConsistent registers the crash-consistent chain. There is no
// database marker; consistency comes from freezing every member volume
// before the single grouped snapshot call.
func (m *Machine) RegisterCrashConsistent(ctx context.Context, manager *fsm.Manager) (fsm.Start[Request, Response], fsm.Resume, error) {
	start, resume, err := fsm.Register[Request, Response](manager, "crash-consistent-snapshot").
		Start(StateResolveAll, m.handle(StateResolveAll, m.stageResolveAll)).
		To(StateEnsureGroup, m.handle(StateEnsureGroup, m.stageEnsureGroup)).
		To(StateFreezeAll, m.handle(StateFreezeAll, m.stageFreezeAll)).
		To(StateGroupSnapshot, m.handle(StateGroupSnapshot, m.stageGroupSnapshot)).
		To(StateUnfreezeAll, m.handle(StateUnfreezeAll, m.stageUnfreeze)).
		To(StateComplete, m.handle(StateComplete, m.stageComplete)).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}
	return start, resume, nil
}

type stageFunc func(ctx context.Context, req *Request, resp *Response) error

// handle adapts a stage to the fsm handler shape. A failing stage triggers
// compensation (thaw whatever is frozen, abandon a prepared marker) and
// aborts the machine with the last completed stage attached. No automatic
// retry happens at any stage.
func (m *Machine) handle(name string, stage stageFunc) func(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
	return func(ctx context.Context, req *fsm.Request[Request, Response]) (*fsm.Response[Response], error) {
		resp := req.W.Msg
		if resp == nil {
			resp = &Response{LastStage: StateIdle}
		}
		if resp.LastStage == "" {
			resp.LastStage = StateIdle
		}

		slog.Info("fsm_state", "state", name, "database", req.Msg.Database)

		if err := stage(ctx, req.Msg, resp); err != nil {
			last := resp.LastStage
			m.compensate(ctx, resp)
			resp.Status = StatusFailed
			resp.ErrorMessage = err.Error()
			return nil, fsm.Abort(&errors.OrchestrationError{LastCompletedStage: last, Err: err})
		}

		resp.LastStage = name
		return fsm.NewResponse(resp), nil
	}
}

// compensate undoes externally visible side effects after a failed stage:
// every mount recorded as frozen is thawed, and a prepared marker is
// abandoned. Both checks are driven by the accumulated response, so
// compensation is safe to invoke from any stage.
func (m *Machine) compensate(ctx context.Context, resp *Response) {
	for i := range resp.Volumes {
		vol := &resp.Volumes[i]
		if !vol.Frozen {
			continue
		}
		if err := m.freezer.Thaw(ctx, vol.Host, vol.Path); err != nil {
			slog.Error("compensation_thaw_failed", "host", vol.Host, "mount", vol.Path, "error", err)
			continue
		}
		vol.Frozen = false
	}

	if resp.BackupID != 0 && resp.HandleState == string(hana.StatePrepared) {
		h := &hana.Handle{BackupID: resp.BackupID, Label: resp.Label, State: hana.StatePrepared}
		if err := m.protocol.Abandon(ctx, h, "no_value"); err != nil {
			slog.Error("compensation_abandon_failed", "backup_id", resp.BackupID, "error", err)
		} else {
			resp.HandleState = string(hana.StateAbandoned)
		}
	}
}
