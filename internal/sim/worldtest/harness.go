package worldtest

import (
	"path/filepath"
	"testing"

	"lockstep.rts/internal/bot"
	"lockstep.rts/internal/persistence/snapshot"
	"lockstep.rts/internal/protocol"
	"lockstep.rts/internal/sim/catalogs"
	"lockstep.rts/internal/sim/lockstep"
	"lockstep.rts/internal/sim/tuning"
	world "lockstep.rts/internal/sim/world"
)

// Harness is a small black-box test helper for driving a match via exported APIs:
// - Step() applies one tick batch through a lockstep session
// - AddBot() seats a rule engine whose decisions join the batch every ThinkEvery ticks
// - WriteSnapshot/NewHarnessFromSnapshot round-trip through real snapshot files
//
// It intentionally avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T    *testing.T
	Eng  *world.Engine
	Sess *lockstep.Session

	ThinkEvery uint64

	bots []seat
}

type seat struct {
	player string
	brain  *bot.Engine
}

func NewHarness(t *testing.T, configDir string) *Harness {
	t.Helper()
	eng := loadEngine(t, configDir)
	s0, err := eng.NewMatch()
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	return &Harness{T: t, Eng: eng, Sess: lockstep.New(eng, s0, lockstep.Config{MatchID: "test"}), ThinkEvery: 10}
}

// NewHarnessFromSnapshot restores a match from a snapshot file. Bots are not
// carried over.
func NewHarnessFromSnapshot(t *testing.T, configDir, path string) *Harness {
	t.Helper()
	h := NewHarness(t, configDir)
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if err := h.Sess.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	return h
}

func loadEngine(t *testing.T, configDir string) *world.Engine {
	t.Helper()
	cats, err := catalogs.Load(configDir)
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tune, err := tuning.Load(filepath.Join(configDir, "tuning.yaml"))
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	return world.New(tune, cats)
}

func (h *Harness) AddBot(player string, attackAt int) {
	h.T.Helper()
	brain, err := bot.NewEngine(h.Eng, bot.DefaultRules(attackAt), nil)
	if err != nil {
		h.T.Fatalf("bot.NewEngine: %v", err)
	}
	h.bots = append(h.bots, seat{player: player, brain: brain})
}

func (h *Harness) State() *world.State { return h.Sess.State() }

// Step applies the next tick with cmds followed by any bot decisions taken
// on the current state, and returns the new digest.
func (h *Harness) Step(cmds ...protocol.Command) string {
	h.T.Helper()
	st := h.Sess.State()
	batch := append([]protocol.Command(nil), cmds...)
	if len(h.bots) > 0 && h.ThinkEvery > 0 && st.Tick%h.ThinkEvery == 0 {
		for _, b := range h.bots {
			batch = append(batch, b.brain.Decide(st, b.player)...)
		}
	}
	d, err := h.Sess.Apply(st.Tick+1, batch)
	if err != nil {
		h.T.Fatalf("Apply: %v", err)
	}
	return d
}

func (h *Harness) StepFor(n int) string {
	h.T.Helper()
	d := h.Sess.Digest()
	for i := 0; i < n; i++ {
		d = h.Step()
	}
	return d
}

// WriteSnapshot writes the current state under dir and returns the path.
func (h *Harness) WriteSnapshot(dir string) string {
	h.T.Helper()
	snap := h.Sess.Snapshot()
	path := filepath.Join(dir, snapshot.FileName(snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		h.T.Fatalf("WriteSnapshot: %v", err)
	}
	return path
}

// Owned counts the player's buildings of type t in any status.
func (h *Harness) Owned(player, t string) int {
	n := 0
	for _, b := range h.State().Buildings {
		if b.Owner == player && b.Type == t {
			n++
		}
	}
	return n
}
