package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "lockstep.rts/internal/persistence/log"
	"lockstep.rts/internal/persistence/snapshot"
	"lockstep.rts/internal/sim/catalogs"
	"lockstep.rts/internal/sim/lockstep"
	"lockstep.rts/internal/sim/tuning"
	"lockstep.rts/internal/sim/world"
)

func main() {
	var (
		matchDir   = flag.String("match", "", "match directory containing events/ and snapshots/")
		snapPath   = flag.String("snapshot", "", "path to .snap.zst to start from (default: scenario start)")
		useLatest  = flag.Bool("latest_snapshot", false, "start from the latest snapshot in <match>/snapshots")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *matchDir == "" {
		fmt.Fprintln(os.Stderr, "missing -match")
		os.Exit(2)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	eng := world.New(tune, cats)

	start, err := eng.NewMatch()
	if err != nil {
		fmt.Fprintln(os.Stderr, "new match:", err)
		os.Exit(1)
	}
	sess := lockstep.New(eng, start, lockstep.Config{})

	sp := strings.TrimSpace(*snapPath)
	if sp == "" && *useLatest {
		if sp, err = snapshot.Latest(filepath.Join(*matchDir, "snapshots")); err != nil {
			fmt.Fprintln(os.Stderr, "latest snapshot:", err)
			os.Exit(1)
		}
	}
	if sp != "" {
		snap, err := snapshot.ReadSnapshot(sp)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		if err := sess.Restore(snap); err != nil {
			fmt.Fprintln(os.Stderr, "restore snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d match=%s tick=%d players=%d units=%d buildings=%d\n",
			snap.Header.Version, snap.Header.MatchID, snap.Header.Tick,
			len(snap.State.Players), len(snap.State.Units), len(snap.State.Buildings))
	}

	files, err := persistlog.TickLogFiles(*matchDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list tick logs:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick log files found in", filepath.Join(*matchDir, "events"))
		os.Exit(1)
	}

	startTick := sess.Tick()
	checked, err := replay(sess, files, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from tick=%d to tick=%d) status=%s\n",
		checked, startTick, sess.Tick(), sess.State().Status)
}

var errStop = errors.New("stop")

// replay feeds every logged batch after the session's tick into the session
// and compares digests for ticks >= verifyFrom. toTick 0 means no limit.
func replay(sess *lockstep.Session, files []string, verifyFrom, toTick uint64) (uint64, error) {
	var checked uint64
	for _, path := range files {
		err := persistlog.ReadTickLog(path, func(entry world.TickLogEntry) error {
			if entry.Tick <= sess.Tick() {
				return nil
			}
			if toTick != 0 && entry.Tick > toTick {
				return errStop
			}
			got, err := sess.Apply(entry.Tick, entry.Commands)
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if entry.Tick >= verifyFrom {
				checked++
				if got != entry.Digest {
					return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", entry.Tick, got, entry.Digest)
				}
			}
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return checked, err
		}
	}
	return checked, nil
}
