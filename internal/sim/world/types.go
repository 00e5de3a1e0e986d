package world

import (
	"lockstep.rts/internal/sim/world/logic/mathx"
)

type Vec2 = mathx.Vec2

type MatchStatus string

const (
	StatusPlaying MatchStatus = "PLAYING"
	StatusVictory MatchStatus = "VICTORY"
	StatusDefeat  MatchStatus = "DEFEAT"
)

type UnitStatus string

const (
	UnitIdle          UnitStatus = "IDLE"
	UnitMoving        UnitStatus = "MOVING"
	UnitAttacking     UnitStatus = "ATTACKING"
	UnitMovingToBuild UnitStatus = "MOVING_TO_BUILD"
	UnitConstructing  UnitStatus = "CONSTRUCTING"
)

type BuildingStatus string

const (
	BuildingConstructing BuildingStatus = "CONSTRUCTING"
	BuildingReady        BuildingStatus = "READY"
)

type EntityKind string

const (
	KindUnit     EntityKind = "UNIT"
	KindBuilding EntityKind = "BUILDING"
)

const EffectTracer = "TRACER"

// State is the whole simulated match. Every participant holds an identical
// copy and advances it with Engine.Step.
type State struct {
	Tick   uint64      `json:"tick"`
	Status MatchStatus `json:"status"`
	// Designated is the player VICTORY and DEFEAT are expressed for. It is
	// part of the shared state so all peers agree on it.
	Designated string `json:"designated"`
	Winner     string `json:"winner,omitempty"`

	Players   []*Player   `json:"players"`
	Units     []*Unit     `json:"units"`
	Buildings []*Building `json:"buildings"`
	Effects   []Effect    `json:"effects"`

	// Selection belongs to the local UI. It is never encoded for digests or snapshots.
	Selection []string `json:"selection,omitempty" msgpack:"-"`
}

type Player struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Money      int    `json:"money"`
	Power      int    `json:"power"`
	IncomeRate int    `json:"income_rate"`
}

// UnitStats is copied from the catalog when the unit spawns.
type UnitStats struct {
	Speed       float64 `json:"speed"`
	Damage      float64 `json:"damage"`
	Range       float64 `json:"range"`
	MaxHealth   float64 `json:"max_health"`
	Cost        int     `json:"cost"`
	BuildTime   int     `json:"build_time"`
	Builder     bool    `json:"builder,omitempty"`
	TracerColor string  `json:"tracer_color,omitempty"`
}

type Unit struct {
	ID        string     `json:"id"`
	Owner     string     `json:"owner"`
	Type      string     `json:"type"`
	Pos       Vec2       `json:"pos"`
	Health    float64    `json:"health"`
	MaxHealth float64    `json:"max_health"`
	Stats     UnitStats  `json:"stats"`
	Status    UnitStatus `json:"status"`
	Path      *Path      `json:"path,omitempty"`
	Target    *EntityRef `json:"target,omitempty"`
	// GraceTicks counts down after spawning; building push-out skips the unit
	// until it reaches zero.
	GraceTicks int `json:"grace_ticks,omitempty"`
}

// Path is the route a moving unit follows. Cursor only ever increases.
type Path struct {
	Dest      Vec2   `json:"dest"`
	Waypoints []Vec2 `json:"waypoints"`
	Cursor    int    `json:"cursor"`
}

func (p *Path) Current() Vec2 { return p.Waypoints[p.Cursor] }

func (p *Path) Last() bool { return p.Cursor >= len(p.Waypoints)-1 }

type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

type Building struct {
	ID        string         `json:"id"`
	Owner     string         `json:"owner"`
	Type      string         `json:"type"`
	Pos       Vec2           `json:"pos"` // top-left corner of the footprint
	Health    float64        `json:"health"`
	MaxHealth float64        `json:"max_health"`
	Status    BuildingStatus `json:"status"`
	Progress  int            `json:"progress"`
	BuildTime int            `json:"build_time"`
	Queue     []QueueItem    `json:"queue,omitempty"`
	Rally     Vec2           `json:"rally"`
}

type QueueItem struct {
	UnitType string `json:"unit_type"`
	Progress int    `json:"progress"`
	Total    int    `json:"total"`
}

type Effect struct {
	Kind      string `json:"kind"`
	From      Vec2   `json:"from"`
	To        Vec2   `json:"to"`
	ColorHint string `json:"color_hint"`
}

// Unit state transitions. Status decides which of Path and Target may be set:
//
//	IDLE             neither
//	MOVING           Path
//	MOVING_TO_BUILD  Path and Target
//	CONSTRUCTING     Target
//	ATTACKING        Target

func (u *Unit) IsMoving() bool { return u.Path != nil }

func (u *Unit) setIdle() {
	u.Status = UnitIdle
	u.Path = nil
	u.Target = nil
}

func (u *Unit) setMoving(p *Path) {
	u.Status = UnitMoving
	u.Path = p
	u.Target = nil
}

func (u *Unit) setAttacking(ref EntityRef) {
	u.Status = UnitAttacking
	u.Path = nil
	u.Target = &ref
}

func (u *Unit) setMovingToBuild(ref EntityRef, p *Path) {
	u.Status = UnitMovingToBuild
	u.Path = p
	u.Target = &ref
}

func (u *Unit) setConstructing() {
	u.Status = UnitConstructing
	u.Path = nil
}

// stop halts a moving unit without changing what it is doing otherwise.
func (u *Unit) stop() {
	u.Path = nil
	if u.Status == UnitMoving {
		u.Status = UnitIdle
	}
}

func (s *State) Player(id string) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *State) Unit(id string) *Unit {
	for _, u := range s.Units {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (s *State) Building(id string) *Building {
	for _, b := range s.Buildings {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// Assets counts the units and buildings a player owns.
func (s *State) Assets(player string) int {
	n := 0
	for _, u := range s.Units {
		if u.Owner == player {
			n++
		}
	}
	for _, b := range s.Buildings {
		if b.Owner == player {
			n++
		}
	}
	return n
}

// Clone returns a deep copy. Effects and Selection are copied too; Step
// clears the effects of its copy.
func (s *State) Clone() *State {
	out := &State{
		Tick:       s.Tick,
		Status:     s.Status,
		Designated: s.Designated,
		Winner:     s.Winner,
		Players:    make([]*Player, len(s.Players)),
		Units:      make([]*Unit, len(s.Units)),
		Buildings:  make([]*Building, len(s.Buildings)),
		Effects:    append([]Effect(nil), s.Effects...),
		Selection:  append([]string(nil), s.Selection...),
	}
	for i, p := range s.Players {
		cp := *p
		out.Players[i] = &cp
	}
	for i, u := range s.Units {
		out.Units[i] = u.clone()
	}
	for i, b := range s.Buildings {
		cp := *b
		cp.Queue = append([]QueueItem(nil), b.Queue...)
		out.Buildings[i] = &cp
	}
	return out
}

func (u *Unit) clone() *Unit {
	cp := *u
	if u.Path != nil {
		p := *u.Path
		p.Waypoints = append([]Vec2(nil), u.Path.Waypoints...)
		cp.Path = &p
	}
	if u.Target != nil {
		t := *u.Target
		cp.Target = &t
	}
	return &cp
}
