// Package lockstep keeps one participant's copy of a match in step with the
// relay: every TICK batch is applied exactly once, in tick order.
package lockstep

import (
	"errors"
	"fmt"
	"sync"

	"lockstep.rts/internal/persistence/snapshot"
	"lockstep.rts/internal/protocol"
	"lockstep.rts/internal/sim/world"
)

var (
	ErrTickOutOfOrder   = errors.New("lockstep: tick out of order")
	ErrSnapshotMismatch = errors.New("lockstep: snapshot does not match rules")
)

type Config struct {
	MatchID string
	// SnapshotEveryTicks <= 0 disables snapshots.
	SnapshotEveryTicks int

	TickLogger world.TickLogger
	Snapshots  chan<- snapshot.SnapshotV1
}

// Session owns the current state. States handed out by State are never
// mutated afterwards since Engine.Step works on a copy.
type Session struct {
	eng *world.Engine
	cfg Config

	mu     sync.Mutex
	state  *world.State
	digest string
}

func New(eng *world.Engine, initial *world.State, cfg Config) *Session {
	return &Session{
		eng:    eng,
		cfg:    cfg,
		state:  initial,
		digest: world.Digest(initial),
	}
}

// Apply steps the match to tick with the given ordered batch and returns the
// digest of the resulting state. tick must be exactly one past the current tick.
func (s *Session) Apply(tick uint64, cmds []protocol.Command) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if want := s.state.Tick + 1; tick != want {
		return "", fmt.Errorf("%w: got %d, want %d", ErrTickOutOfOrder, tick, want)
	}
	next := s.eng.Step(s.state, cmds, tick)
	s.state = next
	s.digest = world.Digest(next)

	if s.cfg.TickLogger != nil {
		_ = s.cfg.TickLogger.WriteTick(world.TickLogEntry{Tick: tick, Commands: cmds, Digest: s.digest})
	}
	if every := s.cfg.SnapshotEveryTicks; every > 0 && s.cfg.Snapshots != nil && tick%uint64(every) == 0 {
		snap := s.snapshotLocked()
		select {
		case s.cfg.Snapshots <- snap:
		default:
		}
	}
	return s.digest, nil
}

// ApplyTick applies a relay TICK message.
func (s *Session) ApplyTick(msg protocol.TickMsg) (string, error) {
	return s.Apply(msg.Tick, msg.Commands)
}

func (s *Session) State() *world.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Tick
}

func (s *Session) Digest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digest
}

// Snapshot captures the current state with the digests of the rules in force.
func (s *Session) Snapshot() snapshot.SnapshotV1 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() snapshot.SnapshotV1 {
	snap := snapshot.New(s.cfg.MatchID, s.state)
	snap.Header.UnitsDigest = s.eng.Catalogs().Units.Digest
	snap.Header.BuildingsDigest = s.eng.Catalogs().Buildings.Digest
	snap.Header.TuningDigest = s.eng.Tuning().Digest()
	return snap
}

// Restore replaces the current state with a snapshot. Snapshots recorded
// under different catalogs or tuning are refused.
func (s *Session) Restore(snap snapshot.SnapshotV1) error {
	if snap.State == nil {
		return fmt.Errorf("lockstep: restore: nil state")
	}
	h := snap.Header
	cats := s.eng.Catalogs()
	switch {
	case h.UnitsDigest != "" && h.UnitsDigest != cats.Units.Digest:
		return fmt.Errorf("%w: units catalog", ErrSnapshotMismatch)
	case h.BuildingsDigest != "" && h.BuildingsDigest != cats.Buildings.Digest:
		return fmt.Errorf("%w: buildings catalog", ErrSnapshotMismatch)
	case h.TuningDigest != "" && h.TuningDigest != s.eng.Tuning().Digest():
		return fmt.Errorf("%w: tuning", ErrSnapshotMismatch)
	}
	d := world.Digest(snap.State)
	if h.Digest != "" && h.Digest != d {
		return fmt.Errorf("%w: state digest", ErrSnapshotMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = snap.State
	s.digest = d
	return nil
}
