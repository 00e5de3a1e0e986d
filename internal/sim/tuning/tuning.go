package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`

	Map      MapTuning      `yaml:"map" json:"map"`
	Path     PathTuning     `yaml:"pathfinding" json:"pathfinding"`
	Units    UnitTuning     `yaml:"units" json:"units"`
	Build    BuildTuning    `yaml:"buildings" json:"buildings"`
	Combat   CombatTuning   `yaml:"combat" json:"combat"`
	Economy  EconomyTuning  `yaml:"economy" json:"economy"`
	Victory  VictoryTuning  `yaml:"victory" json:"victory"`
	Relay    RelayTuning    `yaml:"relay" json:"relay"`
	Scenario ScenarioTuning `yaml:"scenario" json:"scenario"`
}

type MapTuning struct {
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

type PathTuning struct {
	CellSize      float64 `yaml:"cell_size" json:"cell_size"`
	Padding       float64 `yaml:"padding" json:"padding"`
	SightStep     float64 `yaml:"sight_step" json:"sight_step"`
	MaxIterations int     `yaml:"max_iterations" json:"max_iterations"`
}

type UnitTuning struct {
	Radius           float64 `yaml:"radius" json:"radius"`
	ArrivalTolerance float64 `yaml:"arrival_tolerance" json:"arrival_tolerance"`
	SpawnOffset      float64 `yaml:"spawn_offset" json:"spawn_offset"`
	SpawnGraceTicks  int     `yaml:"spawn_grace_ticks" json:"spawn_grace_ticks"`
}

type BuildTuning struct {
	Size               float64    `yaml:"size" json:"size"`
	PlacementMargin    float64    `yaml:"placement_margin" json:"placement_margin"`
	StartHealth        float64    `yaml:"start_health" json:"start_health"`
	EjectMargin        float64    `yaml:"eject_margin" json:"eject_margin"`
	RallyOffset        [2]float64 `yaml:"rally_offset" json:"rally_offset"`
	SellRefundPermille int        `yaml:"sell_refund_permille" json:"sell_refund_permille"`
}

type CombatTuning struct {
	DamageDivisor    float64 `yaml:"damage_divisor" json:"damage_divisor"`
	TracerEveryTicks int     `yaml:"tracer_every_ticks" json:"tracer_every_ticks"`
}

type EconomyTuning struct {
	IncomeEveryTicks int `yaml:"income_every_ticks" json:"income_every_ticks"`
}

type VictoryTuning struct {
	GraceTicks int `yaml:"grace_ticks" json:"grace_ticks"`
}

type RelayTuning struct {
	CommandsPerSecond float64 `yaml:"commands_per_second" json:"commands_per_second"`
	CommandBurst      int     `yaml:"command_burst" json:"command_burst"`
	OutboundQueue     int     `yaml:"outbound_queue" json:"outbound_queue"`
}

type ScenarioTuning struct {
	Designated    string           `yaml:"designated" json:"designated"`
	StartingMoney int              `yaml:"starting_money" json:"starting_money"`
	HQBuilding    string           `yaml:"hq_building" json:"hq_building"`
	StartingUnits []string         `yaml:"starting_units" json:"starting_units"`
	Players       []ScenarioPlayer `yaml:"players" json:"players"`
}

type ScenarioPlayer struct {
	ID    string     `yaml:"id" json:"id"`
	Name  string     `yaml:"name" json:"name"`
	Base  [2]float64 `yaml:"base" json:"base"`
	Money int        `yaml:"money,omitempty" json:"money,omitempty"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         10,
		SnapshotEveryTicks: 600,
		Map:                MapTuning{Width: 1280, Height: 720},
		Path:               PathTuning{CellSize: 25, Padding: 2, SightStep: 10, MaxIterations: 600},
		Units:              UnitTuning{Radius: 10, ArrivalTolerance: 5, SpawnOffset: 10, SpawnGraceTicks: 10},
		Build: BuildTuning{
			Size:               50,
			PlacementMargin:    2,
			StartHealth:        10,
			EjectMargin:        15,
			RallyOffset:        [2]float64{25, 80},
			SellRefundPermille: 500,
		},
		Combat:  CombatTuning{DamageDivisor: 10, TracerEveryTicks: 5},
		Economy: EconomyTuning{IncomeEveryTicks: 20},
		Victory: VictoryTuning{GraceTicks: 100},
		Relay:   RelayTuning{CommandsPerSecond: 20, CommandBurst: 40, OutboundQueue: 256},
		Scenario: ScenarioTuning{
			Designated:    "self",
			StartingMoney: 5000,
			HQBuilding:    "command_center",
			StartingUnits: []string{"builder"},
			Players: []ScenarioPlayer{
				{ID: "self", Name: "Player 1", Base: [2]float64{100, 100}},
				{ID: "enemy", Name: "Player 2", Base: [2]float64{1000, 500}},
			},
		},
	}
}

// Load reads a tuning file on top of Defaults(); keys missing from the file
// keep their default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be positive")
	}
	if t.Path.CellSize <= 0 || t.Path.SightStep <= 0 || t.Path.MaxIterations <= 0 {
		return fmt.Errorf("pathfinding: cell_size, sight_step and max_iterations must be positive")
	}
	if t.Build.Size <= 0 {
		return fmt.Errorf("buildings.size must be positive")
	}
	if t.Combat.DamageDivisor <= 0 {
		return fmt.Errorf("combat.damage_divisor must be positive")
	}
	if len(t.Scenario.Players) == 0 {
		return fmt.Errorf("scenario.players is empty")
	}
	seen := map[string]bool{}
	for _, p := range t.Scenario.Players {
		if p.ID == "" {
			return fmt.Errorf("scenario: player with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("scenario: duplicate player id %q", p.ID)
		}
		seen[p.ID] = true
	}
	if t.Scenario.Designated != "" && !seen[t.Scenario.Designated] {
		return fmt.Errorf("scenario: designated player %q is not listed", t.Scenario.Designated)
	}
	return nil
}

// Digest is a sha256 over the canonical JSON form; peers compare it at join time.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
