// Package mapview keeps a MapLibre-style rendering surface in step with the
// desired view of a territory map.
//
// The desired view is a [ViewState]: one active base map plus a list of
// feature layers, each with independent fill, outline and label flags. A
// [Reconciler] reads the view and creates, toggles or removes sources and
// layer primitives on a [Surface] so the surface matches it. Surfaces are
// injected; [MemorySurface] is an in-memory scene graph and
// [RecordingSurface] records mutations for playback in a browser.
package mapview

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// BaseMapName names a base map style from a [Catalog], or [BaseMapNone].
type BaseMapName string

// BaseMapNone renders no base layer.
const BaseMapNone BaseMapName = "none"

// Visibility is the MapLibre layout visibility value.
type Visibility string

const (
	Visible Visibility = "visible"
	Hidden  Visibility = "none"
)

// VisibilityOf maps a display flag to a layout visibility.
func VisibilityOf(on bool) Visibility {
	if on {
		return Visible
	}
	return Hidden
}

// FeatureSourceLayer is the layer name inside every feature vector tile.
const FeatureSourceLayer = "nodes"

var (
	ErrSurfaceNotReady = errors.New("mapview: surface not ready")
	ErrUnknownBaseMap  = errors.New("mapview: unknown base map")
	ErrDuplicateLayer  = errors.New("mapview: duplicate feature layer")
	ErrEmptyCatalog    = errors.New("mapview: catalog has no base styles")
)

// LayerView is the desired display of one feature layer.
type LayerView struct {
	ID          int  `json:"id" msgpack:"id" doc:"Layer ID" example:"7"`
	ShowFill    bool `json:"showFill" msgpack:"fill" doc:"Render translucent polygon fill"`
	ShowOutline bool `json:"showOutline" msgpack:"outline" doc:"Render polygon outline"`
	ShowLabel   bool `json:"showLabel" msgpack:"label" doc:"Render node name labels"`
}

// AnyShown reports whether at least one aspect is requested.
func (v LayerView) AnyShown() bool {
	return v.ShowFill || v.ShowOutline || v.ShowLabel
}

// ViewState is the full desired state of one map.
type ViewState struct {
	BaseMap BaseMapName `json:"baseMap" msgpack:"base" doc:"Active base map style, or none" example:"osm"`
	Layers  []LayerView `json:"layers" msgpack:"layers" doc:"Feature layers in draw order"`
}

// Validate checks the state against a catalog.
func (s ViewState) Validate(catalog Catalog) error {
	if s.BaseMap != BaseMapNone {
		if _, ok := catalog.Lookup(s.BaseMap); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownBaseMap, s.BaseMap)
		}
	}
	seen := make(map[int]struct{}, len(s.Layers))
	for _, l := range s.Layers {
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateLayer, l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy.
func (s ViewState) Clone() ViewState {
	return ViewState{BaseMap: s.BaseMap, Layers: slices.Clone(s.Layers)}
}

// Aspect is one of the three display primitives of a feature layer.
type Aspect string

const (
	AspectFill    Aspect = "fill"
	AspectOutline Aspect = "outline"
	AspectLabel   Aspect = "label"
)

// Aspects lists the aspects in stacking order.
var Aspects = []Aspect{AspectFill, AspectOutline, AspectLabel}

// Shown reports the flag for an aspect.
func (v LayerView) Shown(a Aspect) bool {
	switch a {
	case AspectFill:
		return v.ShowFill
	case AspectOutline:
		return v.ShowOutline
	case AspectLabel:
		return v.ShowLabel
	}
	return false
}

// BaseSourceID is the source key of a base style.
func BaseSourceID(name BaseMapName) string {
	return "base-" + string(name)
}

// BaseLayerID is the raster layer key of a base style.
func BaseLayerID(name BaseMapName) string {
	return "base-" + string(name) + "-layer"
}

// FeatureSourceID is the vector source key of a feature layer.
func FeatureSourceID(id int) string {
	return "layer-" + strconv.Itoa(id)
}

// FeatureLayerID is the primitive key of one aspect of a feature layer.
func FeatureLayerID(id int, a Aspect) string {
	return FeatureSourceID(id) + "-" + string(a)
}
