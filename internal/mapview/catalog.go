package mapview

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// BaseStyle is a raster base map definition.
type BaseStyle struct {
	Name        BaseMapName `json:"name" yaml:"name" toml:"name" doc:"Style name" example:"osm"`
	Tiles       []string    `json:"tiles" yaml:"tiles" toml:"tiles" doc:"Tile URL templates"`
	TileSize    int         `json:"tileSize" yaml:"tileSize" toml:"tile_size" doc:"Tile size in pixels" example:"256"`
	Attribution string      `json:"attribution" yaml:"attribution" toml:"attribution" doc:"Attribution text"`
}

// Catalog is the ordered set of known base styles.
type Catalog []BaseStyle

// DefaultCatalog returns the built-in base maps.
func DefaultCatalog() Catalog {
	return Catalog{
		{
			Name: "osm",
			Tiles: []string{
				"https://a.tile.openstreetmap.org/{z}/{x}/{y}.png",
				"https://b.tile.openstreetmap.org/{z}/{x}/{y}.png",
				"https://c.tile.openstreetmap.org/{z}/{x}/{y}.png",
			},
			TileSize:    RasterTileSize,
			Attribution: "© OpenStreetMap contributors",
		},
		{
			Name:        "satellite",
			Tiles:       []string{"https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}"},
			TileSize:    RasterTileSize,
			Attribution: "© Esri",
		},
		{
			Name: "terrain",
			Tiles: []string{
				"https://a.tile.opentopomap.org/{z}/{x}/{y}.png",
				"https://b.tile.opentopomap.org/{z}/{x}/{y}.png",
				"https://c.tile.opentopomap.org/{z}/{x}/{y}.png",
			},
			TileSize:    RasterTileSize,
			Attribution: "© OpenTopoMap (CC-BY-SA)",
		},
		{
			Name: "dark",
			Tiles: []string{
				"https://a.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}.png",
				"https://b.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}.png",
			},
			TileSize:    RasterTileSize,
			Attribution: "© OpenStreetMap © CARTO",
		},
	}
}

// Lookup finds a style by name.
func (c Catalog) Lookup(name BaseMapName) (BaseStyle, bool) {
	for _, s := range c {
		if s.Name == name {
			return s, true
		}
	}
	return BaseStyle{}, false
}

// Names returns the style names in catalog order.
func (c Catalog) Names() []BaseMapName {
	names := make([]BaseMapName, len(c))
	for i, s := range c {
		names[i] = s.Name
	}
	return names
}

// Validate rejects an empty catalog, empty, reserved or duplicate names and
// styles without tiles.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return ErrEmptyCatalog
	}
	seen := make(map[BaseMapName]bool, len(c))
	for i, s := range c {
		switch {
		case s.Name == "":
			return fmt.Errorf("base style %d: name is required", i)
		case s.Name == BaseMapNone:
			return fmt.Errorf("base style %d: %q is reserved", i, BaseMapNone)
		case seen[s.Name]:
			return fmt.Errorf("base style %q defined twice", s.Name)
		case len(s.Tiles) == 0:
			return fmt.Errorf("base style %q has no tile URLs", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

type catalogFile struct {
	BaseMaps []BaseStyle `yaml:"basemaps" toml:"basemaps"`
}

// LoadCatalog reads base styles from a YAML or TOML file.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var f catalogFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".toml":
		_, err = toml.Decode(string(data), &f)
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}

	catalog := Catalog(f.BaseMaps)
	for i := range catalog {
		if catalog[i].TileSize == 0 {
			catalog[i].TileSize = RasterTileSize
		}
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return catalog, nil
}
