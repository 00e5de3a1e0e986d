package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"lockstep.rts/internal/persistence/indexdb"
	"lockstep.rts/internal/persistence/snapshot"
	"lockstep.rts/internal/sim/catalogs"
	"lockstep.rts/internal/sim/tuning"
	"lockstep.rts/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	Close() error
	Dropped() uint64
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

func openRuntimeIndex(matchDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("RTS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(matchDir, "index", "match.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported RTS_INDEX_BACKEND: %s", backend)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
