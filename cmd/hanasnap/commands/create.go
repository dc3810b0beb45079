package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/purestorage-openconnect/hanasnap/internal/config"
	"github.com/purestorage-openconnect/hanasnap/pkg/db"
	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
	"github.com/purestorage-openconnect/hanasnap/pkg/flasharray"
	"github.com/purestorage-openconnect/hanasnap/pkg/hana"
	"github.com/purestorage-openconnect/hanasnap/pkg/protection"
	"github.com/purestorage-openconnect/hanasnap/pkg/remote"
	"github.com/purestorage-openconnect/hanasnap/pkg/workflow"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var crashConsistent bool

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a storage snapshot of the HANA persistence",
	RunE:  runCreate,
}

func init() {
	createCmd.Flags().BoolVar(&crashConsistent, "crash-consistent", false,
		"Take a crash-consistent snapshot of all volumes instead of an application-consistent one")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := fillPasswords(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	if err := ensureDirectories(cfg.CatalogPath, cfg.FSMDBPath); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.CatalogPath)
	if err != nil {
		return errors.Wrap(err, "catalog init failed")
	}
	defer repo.Close()

	// Tenant connection for topology discovery
	tenant, err := hana.NewClient(cfg.Host, cfg.InstanceNumber, cfg.PortSuffix, cfg.DatabaseUser, cfg.DatabasePass)
	if err != nil {
		return errors.Wrap(err, "HANA client failed")
	}
	defer tenant.Close()

	// On an MDC system backup statements go to the system database on the
	// master nameserver host.
	stmtDB := hana.Database(tenant)
	host := cfg.Host
	multidb, err := hana.IsMultiDB(ctx, tenant)
	if err != nil {
		return errors.Wrap(err, "system type detection failed")
	}
	if multidb {
		ns, err := hana.NameserverHost(ctx, tenant)
		if err != nil {
			return errors.Wrap(err, "nameserver lookup failed")
		}
		host = cfg.QualifiedHost(ns)

		sys, err := hana.NewClient(host, cfg.InstanceNumber, hana.SystemDBPortSuffix, cfg.DatabaseUser, cfg.DatabasePass)
		if err != nil {
			return errors.Wrap(err, "system database client failed")
		}
		defer sys.Close()
		stmtDB = sys
	}

	runner := remote.NewRunner(&remote.SSHDialer{
		User:     cfg.OSUser,
		Password: cfg.OSPass,
		Timeout:  time.Duration(cfg.SSHTimeoutSeconds) * time.Second,
	})

	array, err := flasharray.NewClient(ctx, cfg.ArrayEndpoint, cfg.ArrayUser, cfg.ArrayPass, cfg.ArrayInsecure)
	if err != nil {
		return errors.Wrap(err, "array client failed")
	}
	defer array.Close(ctx)

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := workflow.NewMachine(stmtDB, hana.NewProtocol(stmtDB), runner, runner, array, protection.NewManager(array))
	machine.QualifyHost = cfg.QualifiedHost

	mode := db.ModeApplicationConsistent
	var start fsm.Start[workflow.Request, workflow.Response]
	if crashConsistent {
		mode = db.ModeCrashConsistent
		start, _, err = machine.RegisterCrashConsistent(ctx, manager)
	} else {
		start, _, err = machine.RegisterApplicationConsistent(ctx, manager)
	}
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	now := time.Now()
	req := &workflow.Request{
		Host:           host,
		Database:       cfg.Database,
		Label:          hana.Label(now),
		SnapshotSuffix: cfg.SuffixPrefix + "-" + now.Format("20060102-150405"),
		SuffixPrefix:   cfg.SuffixPrefix,
		GroupPrefix:    cfg.GroupPrefix,
	}
	resp := &workflow.Response{}

	run := &db.Run{
		Host:     host,
		Database: cfg.Database,
		Mode:     mode,
		Label:    req.Label,
		Status:   db.StatusRunning,
	}
	if err := repo.Create(run); err != nil {
		return errors.Wrap(err, "catalog record failed")
	}

	runKey := fmt.Sprintf("%s-%s-%d", cfg.Database, mode, now.Unix())
	version, err := start(ctx, runKey, fsm.NewRequest(req, resp))
	if err != nil {
		finishRun(repo, run, resp)
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm started", "version", version, "mode", mode)

	waitErr := manager.Wait(ctx, version)
	finishRun(repo, run, resp)
	if waitErr != nil {
		return errors.Wrap(waitErr, "snapshot run failed")
	}

	slog.Info("snapshot run completed",
		"status", resp.Status,
		"snapshot", resp.SnapshotName,
		"backup_id", resp.BackupID,
		"handle_state", resp.HandleState,
	)
	return nil
}

// finishRun records the outcome in the catalog. Best effort: a catalog
// write failure must not mask the run result.
func finishRun(repo *db.Repository, run *db.Run, resp *workflow.Response) {
	run.BackupID = resp.BackupID
	run.SnapshotName = resp.SnapshotName
	run.ErrorMessage = resp.ErrorMessage
	run.Status = db.StatusFailed
	if resp.Status == workflow.StatusSucceeded {
		run.Status = db.StatusSucceeded
	}
	if err := repo.Update(run); err != nil {
		slog.Error("catalog_update_failed", "run_id", run.ID, "error", err)
	}
}
