package guardian

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type CatalogEntry struct {
	Name   string `json:"name"`
	Rarity Rarity `json:"rarity"`
	Slot   Slot   `json:"slot"`
}

type Catalog []CatalogEntry

func DefaultCatalog() Catalog {
	return Catalog{
		{"Rusty Helmet", RarityCommon, SlotHead},
		{"Leather Cap", RarityCommon, SlotHead},
		{"Wool Tunic", RarityCommon, SlotBody},
		{"Cloth Robe", RarityCommon, SlotBody},
		{"Wooden Sword", RarityCommon, SlotWeapon},
		{"Training Staff", RarityCommon, SlotWeapon},
		{"Baby Slime", RarityCommon, SlotPet},
		{"Tiny Moth", RarityCommon, SlotPet},

		{"Iron Crown", RarityRare, SlotHead},
		{"Mystic Hood", RarityRare, SlotHead},
		{"Chain Mail", RarityRare, SlotBody},
		{"Enchanted Vest", RarityRare, SlotBody},
		{"Steel Blade", RarityRare, SlotWeapon},
		{"Crystal Wand", RarityRare, SlotWeapon},
		{"Fire Fox", RarityRare, SlotPet},
		{"Ice Sprite", RarityRare, SlotPet},

		{"Dragon Helm", RarityEpic, SlotHead},
		{"Phoenix Crown", RarityEpic, SlotHead},
		{"Void Armor", RarityEpic, SlotBody},
		{"Celestial Robe", RarityEpic, SlotBody},
		{"Thunder Axe", RarityEpic, SlotWeapon},
		{"Shadow Dagger", RarityEpic, SlotWeapon},
		{"Storm Drake", RarityEpic, SlotPet},
		{"Moon Owl", RarityEpic, SlotPet},

		{"Crown of Ages", RarityLegendary, SlotHead},
		{"Astral Plate", RarityLegendary, SlotBody},
		{"Blade of Infinity", RarityLegendary, SlotWeapon},
		{"Cosmic Dragon", RarityLegendary, SlotPet},
	}
}

func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: no entries", ErrInvalidCatalog)
	}
	seen := make(map[string]struct{}, len(c))
	for i, e := range c {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return fmt.Errorf("%w: entry %d has no name", ErrInvalidCatalog, i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidCatalog, name)
		}
		seen[name] = struct{}{}
		if !e.Rarity.valid() {
			return fmt.Errorf("%w: %q has unknown rarity %q", ErrInvalidCatalog, name, e.Rarity)
		}
		if !e.Slot.valid() {
			return fmt.Errorf("%w: %q has unknown slot %q", ErrInvalidCatalog, name, e.Slot)
		}
	}
	return nil
}

// LoadCatalog reads a JSON array of {name, rarity, slot}. An empty path
// returns the built-in catalog.
func LoadCatalog(path string) (Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var out Catalog
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	for i := range out {
		out[i].Name = strings.TrimSpace(out[i].Name)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
