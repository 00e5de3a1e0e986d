package protocol

// HELLO (client -> relay)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
	// PreferredSeat asks for a specific scenario player id; the relay falls
	// back to the first free seat.
	PreferredSeat  string          `json:"preferred_seat,omitempty"`
	CatalogDigests *CatalogDigests `json:"catalog_digests,omitempty"`
}

// WELCOME (relay -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	PlayerID        string         `json:"player_id"`
	Players         []string       `json:"players"`
	TickRateHz      int            `json:"tick_rate_hz"`
	CurrentTick     uint64         `json:"current_tick"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CatalogDigests struct {
	Units     string `json:"units"`
	Buildings string `json:"buildings"`
	Tuning    string `json:"tuning"`
}

// COMMAND (client -> relay)
type CommandMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Command         Command `json:"command"`
}

// TICK (relay -> clients): the ordered batch every participant applies for Tick.
type TickMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Tick            uint64    `json:"tick"`
	Commands        []Command `json:"commands"`
}

// ERROR (relay -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
