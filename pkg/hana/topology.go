package hana

import (
	"context"
	"log/slog"
	"strings"

	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
)

// Volume roles as they appear in global.ini persistence settings.
const (
	RoleData = "data"
	RoleLog  = "log"
)

// PersistenceVolume is one database storage location discovered from the
// HANA catalog. Serial stays empty until resolved against the array.
type PersistenceVolume struct {
	Host   string
	Path   string
	Role   string
	Serial string
}

const stmtSystemType = `SELECT VALUE FROM M_INIFILE_CONTENTS WHERE FILE_NAME = 'global.ini' AND SECTION = 'multidb' AND KEY = 'mode'`

const stmtNameserverHost = `SELECT HOST FROM SYS.M_SERVICES WHERE DETAIL = 'master' AND SERVICE_NAME = 'nameserver'`

// Attached storages filtered down to real persistence paths. The subselect
// excludes templated values such as $(DIR_GLOBAL) that never name a mount.
const (
	stmtAttachedStoragesPrefix = `SELECT HOST, STORAGE_ID, PATH, KEY, VALUE FROM SYS.M_ATTACHED_STORAGES WHERE KEY = 'WWID' AND PATH LIKE (SELECT CONCAT(VALUE,'%') FROM M_INIFILE_CONTENTS WHERE FILE_NAME = 'global.ini' AND SECTION = 'persistence' AND KEY = 'basepath_`
	stmtAttachedStoragesSuffix = `' AND VALUE NOT LIKE '$%')`
)

// IsMultiDB reports whether the instance is a multi-tenant (MDC) system.
func IsMultiDB(ctx context.Context, db Database) (bool, error) {
	rows, err := db.Query(ctx, stmtSystemType)
	if err != nil {
		return false, errors.Wrap(err, "system type lookup failed")
	}
	for _, row := range rows {
		if len(row) > 0 && strings.Contains(row[0], "multidb") {
			return true, nil
		}
	}
	return false, nil
}

// NameserverHost returns the host running the master nameserver. On a
// scale-out system catalog statements must be issued there.
func NameserverHost(ctx context.Context, db Database) (string, error) {
	rows, err := db.Query(ctx, stmtNameserverHost)
	if err != nil {
		return "", errors.Wrap(err, "nameserver lookup failed")
	}
	if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] == "" {
		return "", errors.New(errors.KindParse, "no master nameserver in M_SERVICES")
	}
	return rows[0][0], nil
}

// DiscoverVolumes lists persistence volumes of the given role (data or log)
// across all hosts of the system.
func DiscoverVolumes(ctx context.Context, db Database, role string) ([]PersistenceVolume, error) {
	key := "datavolumes"
	if role == RoleLog {
		key = "logvolumes"
	}
	stmt := stmtAttachedStoragesPrefix + key + stmtAttachedStoragesSuffix

	rows, err := db.Query(ctx, stmt)
	if err != nil {
		return nil, errors.Wrap(err, "attached storage lookup failed")
	}

	var vols []PersistenceVolume
	for _, row := range rows {
		if len(row) < 3 || row[0] == "" || row[2] == "" {
			continue
		}
		vols = append(vols, PersistenceVolume{Host: row[0], Path: row[2], Role: role})
	}

	slog.Info("hana_volumes_discovered", "role", role, "count", len(vols))
	return vols, nil
}
