package mapview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	require.NoError(t, c.Validate())
	assert.Equal(t, []BaseMapName{"osm", "satellite", "terrain", "dark"}, c.Names())

	_, ok := c.Lookup(BaseMapNone)
	assert.False(t, ok)
}

func TestLoadCatalogYAML(t *testing.T) {
	path := writeFile(t, "basemaps.yaml", `
basemaps:
  - name: light
    tiles:
      - https://tiles.example.com/light/{z}/{x}/{y}.png
    attribution: Example
  - name: osm
    tiles: ["https://tile.openstreetmap.org/{z}/{x}/{y}.png"]
    tileSize: 512
`)
	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c, 2)
	assert.Equal(t, BaseMapName("light"), c[0].Name)
	assert.Equal(t, RasterTileSize, c[0].TileSize)
	assert.Equal(t, 512, c[1].TileSize)
}

func TestLoadCatalogTOML(t *testing.T) {
	path := writeFile(t, "basemaps.toml", `
[[basemaps]]
name = "topo"
tiles = ["https://tiles.example.com/topo/{z}/{x}/{y}.png"]
attribution = "Example"
tile_size = 256
`)
	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c, 1)
	assert.Equal(t, BaseMapName("topo"), c[0].Name)
	assert.Equal(t, "Example", c[0].Attribution)
}

func TestEmptyCatalogInvalid(t *testing.T) {
	assert.ErrorIs(t, Catalog{}.Validate(), ErrEmptyCatalog)
	_, err := LoadCatalog(writeFile(t, "basemaps.yaml", ""))
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestLoadCatalogRejectsBadFiles(t *testing.T) {
	cases := map[string]string{
		"reserved.yaml": "basemaps:\n  - name: none\n    tiles: [x]\n",
		"dup.yaml":      "basemaps:\n  - name: a\n    tiles: [x]\n  - name: a\n    tiles: [y]\n",
		"notiles.yaml":  "basemaps:\n  - name: a\n",
		"catalog.json":  "{}",
		"garbage.toml":  "[[basemaps]\nname=",
		"empty.yaml":    "",
		"nostyles.yaml": "basemaps: []\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCatalog(writeFile(t, name, content))
			assert.Error(t, err)
		})
	}
}
