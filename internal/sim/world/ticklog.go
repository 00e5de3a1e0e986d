package world

import "lockstep.rts/internal/protocol"

// TickLogger receives one entry per applied tick. Implemented in
// internal/persistence/*.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// TickLogEntry is what replay needs to reproduce a tick: the ordered batch
// and the digest of the resulting state.
type TickLogEntry struct {
	Tick     uint64             `json:"tick"`
	Commands []protocol.Command `json:"commands,omitempty"`
	Digest   string             `json:"digest"`
}
