package protocol

// Command kinds.
const (
	CmdPlaceBuilding  = "PLACE_BUILDING"
	CmdMoveUnits      = "MOVE_UNITS"
	CmdBuildUnit      = "BUILD_UNIT"
	CmdSetRallyPoint  = "SET_RALLY_POINT"
	CmdCancelBuilding = "CANCEL_BUILDING"
	CmdSellBuilding   = "SELL_BUILDING"
)

// Target kinds.
const (
	TargetUnit     = "UNIT"
	TargetBuilding = "BUILDING"
)

// Command is one player intent. Every participant applies the same ordered
// list of commands for a tick; the relay overwrites PlayerID with the
// sender's seat.
type Command struct {
	Type     string         `json:"type" jsonschema:"enum=PLACE_BUILDING,enum=MOVE_UNITS,enum=BUILD_UNIT,enum=SET_RALLY_POINT,enum=CANCEL_BUILDING,enum=SELL_BUILDING"`
	PlayerID string         `json:"player_id"`
	Payload  CommandPayload `json:"payload"`
}

// CommandPayload is the union of all command payloads. Unused fields stay
// at their zero value and are omitted on the wire.
type CommandPayload struct {
	BuildingType string     `json:"building_type,omitempty"`
	UnitType     string     `json:"unit_type,omitempty"`
	BuildingID   string     `json:"building_id,omitempty"`
	UnitIDs      []string   `json:"unit_ids,omitempty"`
	X            float64    `json:"x,omitempty"`
	Y            float64    `json:"y,omitempty"`
	Target       *TargetRef `json:"target,omitempty"`
}

type TargetRef struct {
	Kind string `json:"kind" jsonschema:"enum=UNIT,enum=BUILDING"`
	ID   string `json:"id"`
}

func PlaceBuilding(player, buildingType string, x, y float64) Command {
	return Command{Type: CmdPlaceBuilding, PlayerID: player, Payload: CommandPayload{BuildingType: buildingType, X: x, Y: y}}
}

func MoveUnits(player string, unitIDs []string, x, y float64) Command {
	return Command{Type: CmdMoveUnits, PlayerID: player, Payload: CommandPayload{UnitIDs: unitIDs, X: x, Y: y}}
}

// MoveUnitsTo targets an entity instead of a point. Depending on the
// target's owner and state the units attack it, help build it or walk to it.
func MoveUnitsTo(player string, unitIDs []string, kind, id string) Command {
	return Command{Type: CmdMoveUnits, PlayerID: player, Payload: CommandPayload{UnitIDs: unitIDs, Target: &TargetRef{Kind: kind, ID: id}}}
}

func BuildUnit(player, buildingID, unitType string) Command {
	return Command{Type: CmdBuildUnit, PlayerID: player, Payload: CommandPayload{BuildingID: buildingID, UnitType: unitType}}
}

func SetRallyPoint(player, buildingID string, x, y float64) Command {
	return Command{Type: CmdSetRallyPoint, PlayerID: player, Payload: CommandPayload{BuildingID: buildingID, X: x, Y: y}}
}

func CancelBuilding(player, buildingID string) Command {
	return Command{Type: CmdCancelBuilding, PlayerID: player, Payload: CommandPayload{BuildingID: buildingID}}
}

func SellBuilding(player, buildingID string) Command {
	return Command{Type: CmdSellBuilding, PlayerID: player, Payload: CommandPayload{BuildingID: buildingID}}
}
