package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type Catalogs struct {
	Units     UnitCatalog
	Buildings BuildingCatalog
}

type UnitCatalog struct {
	Order  []string
	Defs   map[string]UnitDef
	Digest string
}

type UnitDef struct {
	ID          string  `json:"id"`
	Speed       float64 `json:"speed"`
	Damage      float64 `json:"damage"`
	Range       float64 `json:"range"`
	MaxHealth   float64 `json:"max_health"`
	Cost        int     `json:"cost"`
	BuildTime   int     `json:"build_time"`
	Builder     bool    `json:"builder,omitempty"`
	TracerColor string  `json:"tracer_color,omitempty"`
}

type BuildingCatalog struct {
	Order  []string
	Defs   map[string]BuildingDef
	Digest string
}

type BuildingDef struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Cost      int      `json:"cost"`
	MaxHealth float64  `json:"max_health"`
	Power     int      `json:"power"`
	Income    int      `json:"income,omitempty"`
	BuildTime int      `json:"build_time"`
	Produces  []string `json:"produces,omitempty"`
}

func (d BuildingDef) CanProduce(unitType string) bool {
	for _, p := range d.Produces {
		if p == unitType {
			return true
		}
	}
	return false
}

func (d BuildingDef) IsProduction() bool { return len(d.Produces) > 0 }

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadUnits(filepath.Join(configDir, "units.json"), &c.Units); err != nil {
		return nil, err
	}
	if err := loadBuildings(filepath.Join(configDir, "buildings.json"), &c.Buildings); err != nil {
		return nil, err
	}
	for _, id := range c.Buildings.Order {
		for _, p := range c.Buildings.Defs[id].Produces {
			if _, ok := c.Units.Defs[p]; !ok {
				return nil, fmt.Errorf("buildings.json: %s produces unknown unit %q", id, p)
			}
		}
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadUnits(path string, out *UnitCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []UnitDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("units.json: %w", err)
	}
	out.Defs = map[string]UnitDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("units.json: empty id")
		}
		if d.MaxHealth <= 0 {
			return fmt.Errorf("units.json: %s: max_health must be positive", d.ID)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("units.json: duplicate id %q", d.ID)
		}
		out.Defs[d.ID] = d
	}
	out.Order = sortedKeys(out.Defs)
	return nil
}

func loadBuildings(path string, out *BuildingCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []BuildingDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("buildings.json: %w", err)
	}
	out.Defs = map[string]BuildingDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("buildings.json: empty id")
		}
		if d.MaxHealth <= 0 {
			return fmt.Errorf("buildings.json: %s: max_health must be positive", d.ID)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("buildings.json: duplicate id %q", d.ID)
		}
		out.Defs[d.ID] = d
	}
	out.Order = sortedKeys(out.Defs)
	return nil
}

func sortedKeys[T any](m map[string]T) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
