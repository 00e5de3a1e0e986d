package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	persistlog "lockstep.rts/internal/persistence/log"
	"lockstep.rts/internal/persistence/snapshot"
	"lockstep.rts/internal/protocol"
	"lockstep.rts/internal/sim/lockstep"
	"lockstep.rts/internal/sim/world"
)

var errTickGap = errors.New("tick log gap")

// resumeMatch rebuilds an interrupted match from its directory: the state
// after the last logged tick (fast-forwarded from snapPath when given) and
// every logged batch, which the relay replays to late joiners. A match
// directory without logs yields the scenario start. Every replayed tick is
// checked against its logged digest.
func resumeMatch(eng *world.Engine, matchDir, snapPath string, logger *log.Logger) (*world.State, []protocol.TickMsg, error) {
	start, err := eng.NewMatch()
	if err != nil {
		return nil, nil, err
	}
	sess := lockstep.New(eng, start, lockstep.Config{})

	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, nil, fmt.Errorf("read snapshot: %w", err)
		}
		if err := sess.Restore(snap); err != nil {
			return nil, nil, err
		}
		logger.Printf("snapshot %s tick=%d", filepath.Base(snapPath), snap.Header.Tick)
	}

	files, err := persistlog.TickLogFiles(matchDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("list tick logs: %w", err)
	}

	var history []protocol.TickMsg
	for _, path := range files {
		err := persistlog.ReadTickLog(path, func(e world.TickLogEntry) error {
			if e.Tick != uint64(len(history))+1 {
				return fmt.Errorf("%w: %s: tick %d after %d", errTickGap, filepath.Base(path), e.Tick, len(history))
			}
			history = append(history, protocol.TickMsg{
				Type:            protocol.TypeTick,
				ProtocolVersion: protocol.Version,
				Tick:            e.Tick,
				Commands:        e.Commands,
			})
			if e.Tick <= sess.Tick() {
				return nil
			}
			got, err := sess.Apply(e.Tick, e.Commands)
			if err != nil {
				return err
			}
			if got != e.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", e.Tick, got, e.Digest)
			}
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}
	if sess.Tick() != uint64(len(history)) {
		return nil, nil, fmt.Errorf("snapshot at tick %d is ahead of the tick log (%d ticks)", sess.Tick(), len(history))
	}
	return sess.State(), history, nil
}
