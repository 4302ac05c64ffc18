package instance

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"cyberia-pathway/pathfinding"

	"gopkg.in/yaml.v3"
)

// MapDef is the on-disk description of a map.
//
//	id: map_alpha
//	tiles:
//	  - "#####"
//	  - "#..~#"
//	  - "#####"
//	legend:
//	  "~": {weight: 4}
//	obstacles:
//	  - {x: 2, y: 1, w: 1, h: 1}
//	spawns:
//	  - {x: 1, y: 1}
type MapDef struct {
	ID        string             `yaml:"id"`
	Tiles     []string           `yaml:"tiles"`
	Legend    map[string]TileDef `yaml:"legend"`
	Obstacles []ObstacleDef      `yaml:"obstacles"`
	Spawns    []CellDef          `yaml:"spawns"`
}

// TileDef describes what a glyph in Tiles means.
type TileDef struct {
	Dense  bool     `yaml:"dense"`
	Weight *float64 `yaml:"weight"`
}

// ObstacleDef places a dense occupant, in tile units. Width and height
// default to one tile.
type ObstacleDef struct {
	X      int      `yaml:"x"`
	Y      int      `yaml:"y"`
	W      int      `yaml:"w"`
	H      int      `yaml:"h"`
	Weight *float64 `yaml:"weight"`
}

type CellDef struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

var defaultLegend = map[string]TileDef{
	".": {},
	" ": {},
	"#": {Dense: true},
}

// ParseMap decodes a YAML map definition and validates it.
func ParseMap(data []byte) (MapDef, error) {
	var def MapDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return MapDef{}, err
	}
	if err := def.Validate(); err != nil {
		return MapDef{}, err
	}
	return def, nil
}

// LoadMapFile reads a map definition from disk. The map ID defaults to the
// file name without its extension.
func LoadMapFile(path string) (MapDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MapDef{}, fmt.Errorf("instance: read %s: %w", path, err)
	}
	var def MapDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return MapDef{}, fmt.Errorf("instance: unmarshal %s: %w", path, err)
	}
	if def.ID == "" {
		def.ID = mapIDFromPath(path)
	}
	if err := def.Validate(); err != nil {
		return MapDef{}, fmt.Errorf("instance: %s: %w", path, err)
	}
	return def, nil
}

// IsMapFile reports whether path looks like a map definition.
func IsMapFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func mapIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Validate checks the map is rectangular and every glyph is known.
func (d MapDef) Validate() error {
	if d.ID == "" {
		return errors.New("map id is required")
	}
	if len(d.Tiles) == 0 {
		return fmt.Errorf("map %s has no tiles", d.ID)
	}
	cols := utf8.RuneCountInString(d.Tiles[0])
	if cols == 0 {
		return fmt.Errorf("map %s has an empty first row", d.ID)
	}
	for y, row := range d.Tiles {
		if n := utf8.RuneCountInString(row); n != cols {
			return fmt.Errorf("map %s row %d has %d columns, want %d", d.ID, y, n, cols)
		}
		for x, r := range []rune(row) {
			if _, ok := d.glyph(string(r)); !ok {
				return fmt.Errorf("map %s has unknown glyph %q at (%d,%d)", d.ID, r, x, y)
			}
		}
	}
	for i, o := range d.Obstacles {
		if o.X < 0 || o.Y < 0 || o.X >= cols || o.Y >= len(d.Tiles) || o.W < 0 || o.H < 0 {
			return fmt.Errorf("map %s obstacle %d is outside the map", d.ID, i)
		}
	}
	for i, s := range d.Spawns {
		if s.X < 0 || s.Y < 0 || s.X >= cols || s.Y >= len(d.Tiles) {
			return fmt.Errorf("map %s spawn %d is outside the map", d.ID, i)
		}
	}
	return nil
}

func (d MapDef) glyph(g string) (TileDef, bool) {
	if td, ok := d.Legend[g]; ok {
		return td, true
	}
	td, ok := defaultLegend[g]
	return td, ok
}

// AddMap builds a map from its definition. Loading a map ID that already
// exists replaces its tiles and obstacles; agents on it stay where they are.
func (w *World) AddMap(def MapDef, source string) (*Map, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	m := &Map{
		ID:     def.ID,
		Rows:   len(def.Tiles),
		Cols:   utf8.RuneCountInString(def.Tiles[0]),
		Source: source,
	}
	m.tiles = make([]*Tile, 0, m.Cols*m.Rows)
	for y, row := range def.Tiles {
		for x, r := range []rune(row) {
			td, _ := def.glyph(string(r))
			m.tiles = append(m.tiles, &Tile{
				cell:   pathfinding.Cell{X: x, Y: y},
				Glyph:  string(r),
				dense:  td.Dense,
				weight: td.Weight,
			})
		}
	}
	for _, s := range def.Spawns {
		m.Spawns = append(m.Spawns, pathfinding.Cell{X: s.X, Y: s.Y})
	}

	var kept []*Object
	if _, exists := w.maps[def.ID]; exists {
		for _, o := range w.Objects("") {
			if o.Map != def.ID {
				continue
			}
			if o.fromMap {
				w.RemoveObject(o.ObjID)
				continue
			}
			kept = append(kept, o)
		}
	}
	w.maps[def.ID] = m
	for _, o := range kept {
		w.place(o, def.ID, o.X, o.Y)
	}

	for _, od := range def.Obstacles {
		cols, rows := max(od.W, 1), max(od.H, 1)
		r := pathfinding.Rect{
			MinX: float64(od.X) * w.tileW,
			MinY: float64(od.Y) * w.tileH,
			MaxX: float64(od.X+cols) * w.tileW,
			MaxY: float64(od.Y+rows) * w.tileH,
		}
		obs, err := w.AddObstacle(def.ID, r, od.Weight)
		if err != nil {
			return nil, err
		}
		obs.fromMap = true
	}
	log.Printf("Map loaded: %s (%dx%d, %d obstacles)", m.ID, m.Cols, m.Rows, len(def.Obstacles))
	return m, nil
}

// LoadMapFile reads and adds a single map file, returning its ID.
func (w *World) LoadMapFile(path string) (string, error) {
	def, err := LoadMapFile(path)
	if err != nil {
		return "", err
	}
	if _, err := w.AddMap(def, path); err != nil {
		return "", err
	}
	return def.ID, nil
}

// LoadMapsDir loads every map file in dir. A broken file is logged and
// skipped; the error is only returned when the directory cannot be read.
func (w *World) LoadMapsDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("instance: read maps dir %s: %w", dir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !IsMapFile(e.Name()) {
			continue
		}
		id, err := w.LoadMapFile(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Printf("ERROR: skipping map file %s: %v", e.Name(), err)
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// MapForSource returns the ID of the map loaded from path.
func (w *World) MapForSource(path string) (string, bool) {
	for id, m := range w.maps {
		if m.Source != "" && filepath.Clean(m.Source) == filepath.Clean(path) {
			return id, true
		}
	}
	return "", false
}
