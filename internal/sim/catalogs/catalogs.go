package catalogs

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"lukechampine.com/blake3"
)

// Catalogs holds the read-only resource, structure and recipe definitions.
// They are loaded once at startup and never mutated by the simulation.
type Catalogs struct {
	Resources  ResourceCatalog
	Structures StructureCatalog
	Recipes    RecipeCatalog
}

type ResourceCatalog struct {
	Palette []string
	ByID    map[string]ResourceDef
	Digest  string
}

type ResourceDef struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

type StructureCatalog struct {
	ByID   map[string]StructureDef
	Digest string
}

type StructureDef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Walkable bool   `json:"walkable"`

	Recipes       []string `json:"recipes,omitempty"`
	DefaultRecipe string   `json:"default_recipe,omitempty"`

	PowerProduction  int  `json:"power_production_kw,omitempty"`
	PowerConsumption int  `json:"power_consumption_kw,omitempty"`
	PowerNode        bool `json:"power_node,omitempty"`

	// OutputCapacity caps every output slot; 0 means unbounded.
	OutputCapacity int      `json:"output_capacity,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

// PowerCapable reports whether the structure joins a power grid.
func (d StructureDef) PowerCapable() bool {
	return d.PowerNode || d.PowerProduction > 0 || d.PowerConsumption > 0
}

// RequiresPower reports whether production is gated on the powered flag.
func (d StructureDef) RequiresPower() bool { return d.PowerConsumption > 0 }

func (d StructureDef) AllowsRecipe(recipeID string) bool {
	for _, r := range d.Recipes {
		if r == recipeID {
			return true
		}
	}
	return false
}

type RecipeCatalog struct {
	ByID   map[string]RecipeDef
	Digest string
}

type RecipeDef struct {
	RecipeID  string      `json:"recipe_id"`
	Name      string      `json:"name,omitempty"`
	Inputs    []ItemCount `json:"inputs"`
	Outputs   []ItemCount `json:"outputs"`
	TimeTicks int         `json:"time_ticks"`
	Tags      []string    `json:"tags,omitempty"`
}

type ItemCount struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// InputCount returns how many units of item one cycle consumes (0 if the recipe has no such slot).
func (r RecipeDef) InputCount(item string) int {
	n := 0
	for _, in := range r.Inputs {
		if in.Item == item {
			n += in.Count
		}
	}
	return n
}

// OutputItems returns the distinct output resource ids in sorted order.
func (r RecipeDef) OutputItems() []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(r.Outputs))
	for _, o := range r.Outputs {
		if o.Item == "" || seen[o.Item] {
			continue
		}
		seen[o.Item] = true
		out = append(out, o.Item)
	}
	sort.Strings(out)
	return out
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadResources(filepath.Join(configDir, "resources.json"), &c.Resources); err != nil {
		return nil, err
	}
	if err := loadRecipes(filepath.Join(configDir, "recipes.json"), &c.Recipes); err != nil {
		return nil, err
	}
	if err := loadStructures(filepath.Join(configDir, "structures.json"), &c.Structures); err != nil {
		return nil, err
	}
	if err := c.crossCheck(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FromDefs builds catalogs from in-memory definitions (used by tests and tools).
func FromDefs(resources []ResourceDef, structures []StructureDef, recipes []RecipeDef) (*Catalogs, error) {
	var c Catalogs
	raw, _ := json.Marshal(resources)
	if err := indexResources(raw, resources, &c.Resources); err != nil {
		return nil, err
	}
	raw, _ = json.Marshal(recipes)
	if err := indexRecipes(raw, recipes, &c.Recipes); err != nil {
		return nil, err
	}
	raw, _ = json.Marshal(structures)
	if err := indexStructures(raw, structures, &c.Structures); err != nil {
		return nil, err
	}
	if err := c.crossCheck(); err != nil {
		return nil, err
	}
	return &c, nil
}

// DigestBytes is the hex blake3-256 of b.
func DigestBytes(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadResources(path string, out *ResourceCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validateRaw("resources", raw); err != nil {
		return fmt.Errorf("resources.json: %w", err)
	}
	var defs []ResourceDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("resources.json: %w", err)
	}
	return indexResources(raw, defs, out)
}

func indexResources(raw []byte, defs []ResourceDef, out *ResourceCatalog) error {
	out.Digest = DigestBytes(raw)
	out.ByID = map[string]ResourceDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("resources: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("resources: duplicate id %q", d.ID)
		}
		out.ByID[d.ID] = d
	}
	ids := make([]string, 0, len(out.ByID))
	for id := range out.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	return nil
}

func loadRecipes(path string, out *RecipeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validateRaw("recipes", raw); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}
	var defs []RecipeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}
	return indexRecipes(raw, defs, out)
}

func indexRecipes(raw []byte, defs []RecipeDef, out *RecipeCatalog) error {
	out.Digest = DigestBytes(raw)
	out.ByID = map[string]RecipeDef{}
	for _, r := range defs {
		if r.RecipeID == "" {
			return fmt.Errorf("recipes: empty recipe_id")
		}
		if r.TimeTicks < 0 {
			return fmt.Errorf("recipes: %s: negative time_ticks", r.RecipeID)
		}
		if _, dup := out.ByID[r.RecipeID]; dup {
			return fmt.Errorf("recipes: duplicate recipe_id %q", r.RecipeID)
		}
		out.ByID[r.RecipeID] = r
	}
	return nil
}

func loadStructures(path string, out *StructureCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validateRaw("structures", raw); err != nil {
		return fmt.Errorf("structures.json: %w", err)
	}
	var defs []StructureDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("structures.json: %w", err)
	}
	return indexStructures(raw, defs, out)
}

func indexStructures(raw []byte, defs []StructureDef, out *StructureCatalog) error {
	out.Digest = DigestBytes(raw)
	out.ByID = map[string]StructureDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("structures: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("structures: duplicate id %q", d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

// crossCheck verifies references between catalogs so the simulation can
// treat any id it finds in a def as resolvable.
func (c *Catalogs) crossCheck() error {
	for _, id := range sortedKeys(c.Recipes.ByID) {
		r := c.Recipes.ByID[id]
		for _, ic := range append(append([]ItemCount{}, r.Inputs...), r.Outputs...) {
			if _, ok := c.Resources.ByID[ic.Item]; !ok {
				return fmt.Errorf("recipe %s: unknown resource %q", id, ic.Item)
			}
			if ic.Count <= 0 {
				return fmt.Errorf("recipe %s: non-positive count for %q", id, ic.Item)
			}
		}
	}
	for _, id := range sortedKeys(c.Structures.ByID) {
		d := c.Structures.ByID[id]
		for _, rid := range d.Recipes {
			if _, ok := c.Recipes.ByID[rid]; !ok {
				return fmt.Errorf("structure %s: unknown recipe %q", id, rid)
			}
		}
		if d.DefaultRecipe != "" && !d.AllowsRecipe(d.DefaultRecipe) {
			return fmt.Errorf("structure %s: default_recipe %q not in recipes", id, d.DefaultRecipe)
		}
	}
	return nil
}

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
