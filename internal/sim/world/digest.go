package world

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"lukechampine.com/blake3"
)

// Encode is the canonical binary form of a state: msgpack with the JSON
// field names, Selection left out. Digests and snapshots are built on it.
func Encode(s *State) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetSortMapKeys(true)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Decode(b []byte) (*State, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	var s State
	if err := dec.Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Digest is the blake3-256 hex of Encode(s). Peers compare digests to detect
// divergence. State holds only plain data, so an encode failure is a bug and
// panics.
func Digest(s *State) string {
	b, err := Encode(s)
	if err != nil {
		panic(fmt.Sprintf("world: encode state at tick %d: %v", s.Tick, err))
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
