package ids

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	PrefixUnit     = 'U'
	PrefixBuilding = 'B'
)

// Entity formats a deterministic entity id from the tick that created it and
// the creation sequence within that tick.
func Entity(prefix byte, tick uint64, seq uint32) string {
	return fmt.Sprintf("%c%d.%d", prefix, tick, seq)
}

func ParseEntity(id string) (prefix byte, tick uint64, seq uint32, ok bool) {
	if len(id) < 4 {
		return 0, 0, 0, false
	}
	prefix = id[0]
	parts := strings.SplitN(id[1:], ".", 2)
	if len(parts) != 2 {
		return 0, 0, 0, false
	}
	t, err1 := strconv.ParseUint(parts[0], 10, 64)
	s, err2 := strconv.ParseUint(parts[1], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, 0, false
	}
	return prefix, t, uint32(s), true
}

// Allocator hands out ids for one tick. It is created fresh for every step
// from the tick number, so two peers stepping the same tick agree on every id.
type Allocator struct {
	tick uint64
	seq  uint32
}

func NewAllocator(tick uint64) *Allocator { return &Allocator{tick: tick} }

func (a *Allocator) Next(prefix byte) string {
	a.seq++
	return Entity(prefix, a.tick, a.seq)
}

func (a *Allocator) Tick() uint64 { return a.tick }
