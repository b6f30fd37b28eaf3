package mapview

// SourceSpec is a MapLibre source descriptor.
type SourceSpec struct {
	Type        string   `json:"type" msgpack:"type"`
	Tiles       []string `json:"tiles" msgpack:"tiles"`
	TileSize    int      `json:"tileSize,omitempty" msgpack:"tileSize,omitempty"`
	Attribution string   `json:"attribution,omitempty" msgpack:"attribution,omitempty"`
	MinZoom     *int     `json:"minzoom,omitempty" msgpack:"minzoom,omitempty"`
	MaxZoom     *int     `json:"maxzoom,omitempty" msgpack:"maxzoom,omitempty"`
}

// LayerSpec is a MapLibre layer descriptor.
type LayerSpec struct {
	ID          string  `json:"id" msgpack:"id"`
	Type        string  `json:"type" msgpack:"type"`
	Source      string  `json:"source" msgpack:"source"`
	SourceLayer string  `json:"source-layer,omitempty" msgpack:"sourceLayer,omitempty"`
	Layout      *Layout `json:"layout,omitempty" msgpack:"layout,omitempty"`
	Paint       *Paint  `json:"paint,omitempty" msgpack:"paint,omitempty"`
}

// Layout holds the layout properties the reconciler uses.
type Layout struct {
	Visibility Visibility `json:"visibility,omitempty" msgpack:"visibility,omitempty"`
	TextField  []any      `json:"text-field,omitempty" msgpack:"textField,omitempty"`
	TextSize   float64    `json:"text-size,omitempty" msgpack:"textSize,omitempty"`
}

// Paint holds the paint properties the reconciler uses.
type Paint struct {
	FillColor   string   `json:"fill-color,omitempty" msgpack:"fillColor,omitempty"`
	FillOpacity *float64 `json:"fill-opacity,omitempty" msgpack:"fillOpacity,omitempty"`
	LineColor   string   `json:"line-color,omitempty" msgpack:"lineColor,omitempty"`
	LineWidth   float64  `json:"line-width,omitempty" msgpack:"lineWidth,omitempty"`
	TextColor   string   `json:"text-color,omitempty" msgpack:"textColor,omitempty"`
}

// Vector tile zoom bounds for feature sources.
const (
	FeatureMinZoom = 0
	FeatureMaxZoom = 14
)

// RasterTileSize is the tile size of every base source.
const RasterTileSize = 256

func rasterSource(style BaseStyle) SourceSpec {
	size := style.TileSize
	if size == 0 {
		size = RasterTileSize
	}
	return SourceSpec{
		Type:        "raster",
		Tiles:       append([]string(nil), style.Tiles...),
		TileSize:    size,
		Attribution: style.Attribution,
	}
}

func vectorSource(tileURL string) SourceSpec {
	minZoom, maxZoom := FeatureMinZoom, FeatureMaxZoom
	return SourceSpec{
		Type:    "vector",
		Tiles:   []string{tileURL},
		MinZoom: &minZoom,
		MaxZoom: &maxZoom,
	}
}

func baseLayer(name BaseMapName) LayerSpec {
	return LayerSpec{
		ID:     BaseLayerID(name),
		Type:   "raster",
		Source: BaseSourceID(name),
		Layout: &Layout{Visibility: Visible},
	}
}

// aspectLayer builds the fixed template for one aspect of a feature layer.
func aspectLayer(id int, a Aspect, vis Visibility) LayerSpec {
	spec := LayerSpec{
		ID:          FeatureLayerID(id, a),
		Source:      FeatureSourceID(id),
		SourceLayer: FeatureSourceLayer,
		Layout:      &Layout{Visibility: vis},
	}
	switch a {
	case AspectFill:
		opacity := 0.5
		spec.Type = "fill"
		spec.Paint = &Paint{FillColor: "#888888", FillOpacity: &opacity}
	case AspectOutline:
		spec.Type = "line"
		spec.Paint = &Paint{LineColor: "#000000", LineWidth: 2}
	case AspectLabel:
		spec.Type = "symbol"
		spec.Layout.TextField = []any{"get", "name"}
		spec.Layout.TextSize = 12
		spec.Paint = &Paint{TextColor: "#202020"}
	}
	return spec
}
