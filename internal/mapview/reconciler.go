package mapview

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Strategy selects how primitives that are no longer wanted are hidden.
type Strategy int

const (
	// StrategyToggle keeps primitives once created and flips their
	// visibility.
	StrategyToggle Strategy = iota
	// StrategyRemove deletes primitives that are not wanted and recreates
	// them when they are wanted again.
	StrategyRemove
)

func (s Strategy) String() string {
	if s == StrategyRemove {
		return "remove"
	}
	return "toggle"
}

// ParseStrategy parses "toggle" or "remove".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "", "toggle":
		return StrategyToggle, nil
	case "remove":
		return StrategyRemove, nil
	}
	return StrategyToggle, fmt.Errorf("unknown strategy %q", s)
}

// TileURLFunc returns the vector tile URL template of a feature layer.
type TileURLFunc func(id int) string

// TileURLTemplate returns a TileURLFunc for an API base URL, producing
// <base>/tiles/<id>/{z}/{x}/{y}.pbf.
func TileURLTemplate(apiBase string) TileURLFunc {
	base := strings.TrimRight(apiBase, "/")
	return func(id int) string {
		return fmt.Sprintf("%s/tiles/%d/{z}/{x}/{y}.pbf", base, id)
	}
}

// Reconciler makes a Surface match a ViewState. It holds no per-surface
// state, so one Reconciler can serve many surfaces.
type Reconciler struct {
	mu       sync.RWMutex
	catalog  Catalog
	tileURL  TileURLFunc
	strategy Strategy
	log      *zap.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithStrategy sets the hide strategy. The default is StrategyToggle.
func WithStrategy(s Strategy) Option {
	return func(r *Reconciler) { r.strategy = s }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

// NewReconciler creates a reconciler for a base map catalog.
func NewReconciler(catalog Catalog, tileURL TileURLFunc, opts ...Option) *Reconciler {
	r := &Reconciler{
		catalog: catalog,
		tileURL: tileURL,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the base styles the reconciler knows.
func (r *Reconciler) Catalog() Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog
}

// SetCatalog replaces the known base styles. Sources of styles dropped from
// the catalog stay on surfaces that already have them.
func (r *Reconciler) SetCatalog(c Catalog) {
	r.mu.Lock()
	r.catalog = c
	r.mu.Unlock()
}

// Strategy returns the configured hide strategy.
func (r *Reconciler) Strategy() Strategy { return r.strategy }

// Reconcile brings the surface in line with state. It is idempotent and
// must only run once the surface is ready; otherwise it returns
// ErrSurfaceNotReady without touching the surface.
func (r *Reconciler) Reconcile(s Surface, state ViewState) error {
	catalog := r.Catalog()
	if err := state.Validate(catalog); err != nil {
		return err
	}
	if !s.IsReady() {
		return ErrSurfaceNotReady
	}
	// Sources first: layers can only reference existing sources.
	if err := r.ensureBaseSources(s, catalog); err != nil {
		return err
	}
	if err := r.EnsureFeatureSources(s, state.Layers); err != nil {
		return err
	}
	if err := r.applyBaseMapVisibility(s, catalog, state.BaseMap, state.Layers); err != nil {
		return err
	}
	return r.ApplyFeatureLayerVisibility(s, state.Layers)
}

// EnsureBaseSources registers a raster source for every catalog style.
func (r *Reconciler) EnsureBaseSources(s Surface) error {
	return r.ensureBaseSources(s, r.Catalog())
}

func (r *Reconciler) ensureBaseSources(s Surface, catalog Catalog) error {
	for _, style := range catalog {
		id := BaseSourceID(style.Name)
		if s.HasSource(id) {
			continue
		}
		if err := s.AddSource(id, rasterSource(style)); err != nil {
			return fmt.Errorf("adding base source %s: %w", id, err)
		}
		r.log.Debug("added base source", zap.String("source", id))
	}
	return nil
}

// EnsureFeatureSources registers a vector source for every feature layer.
func (r *Reconciler) EnsureFeatureSources(s Surface, layers []LayerView) error {
	for _, l := range layers {
		id := FeatureSourceID(l.ID)
		if s.HasSource(id) {
			continue
		}
		if err := s.AddSource(id, vectorSource(r.tileURL(l.ID))); err != nil {
			return fmt.Errorf("adding feature source %s: %w", id, err)
		}
		r.log.Debug("added feature source", zap.String("source", id))
	}
	return nil
}

// ApplyBaseMapVisibility leaves at most one base layer rendered: the one of
// active. New base layers go beneath the first existing feature primitive
// of layers so they never cover data.
func (r *Reconciler) ApplyBaseMapVisibility(s Surface, active BaseMapName, layers []LayerView) error {
	return r.applyBaseMapVisibility(s, r.Catalog(), active, layers)
}

func (r *Reconciler) applyBaseMapVisibility(s Surface, catalog Catalog, active BaseMapName, layers []LayerView) error {
	for _, style := range catalog {
		id := BaseLayerID(style.Name)
		exists := s.HasLayer(id)
		isActive := style.Name == active

		switch {
		case isActive && !exists:
			if err := s.AddLayer(baseLayer(style.Name), firstFeaturePrimitive(s, layers)); err != nil {
				return fmt.Errorf("adding base layer %s: %w", id, err)
			}
			r.log.Debug("added base layer", zap.String("layer", id))
		case isActive && exists:
			if err := s.SetLayerVisibility(id, Visible); err != nil {
				return fmt.Errorf("showing base layer %s: %w", id, err)
			}
		case !isActive && exists && r.strategy == StrategyRemove:
			if err := s.RemoveLayer(id); err != nil {
				return fmt.Errorf("removing base layer %s: %w", id, err)
			}
			r.log.Debug("removed base layer", zap.String("layer", id))
		case !isActive && exists:
			if err := s.SetLayerVisibility(id, Hidden); err != nil {
				return fmt.Errorf("hiding base layer %s: %w", id, err)
			}
		}
	}
	return r.retireStaleBaseLayers(s, catalog)
}

// retireStaleBaseLayers hides or removes base layers whose style has left
// the catalog. Only surfaces that can list their stack are checked.
func (r *Reconciler) retireStaleBaseLayers(s Surface, catalog Catalog) error {
	ll, ok := s.(layerLister)
	if !ok {
		return nil
	}
	known := make(map[string]bool, len(catalog))
	for _, style := range catalog {
		known[BaseLayerID(style.Name)] = true
	}
	for _, id := range ll.LayerIDs() {
		if known[id] || !strings.HasPrefix(id, "base-") || !strings.HasSuffix(id, "-layer") {
			continue
		}
		var err error
		if r.strategy == StrategyRemove {
			err = s.RemoveLayer(id)
		} else {
			err = s.SetLayerVisibility(id, Hidden)
		}
		if err != nil {
			return fmt.Errorf("retiring base layer %s: %w", id, err)
		}
	}
	return nil
}

// ApplyFeatureLayerVisibility creates, toggles or removes the fill, outline
// and label primitives of every feature layer.
func (r *Reconciler) ApplyFeatureLayerVisibility(s Surface, layers []LayerView) error {
	for _, l := range layers {
		if r.strategy == StrategyToggle && !l.AnyShown() && !hasAnyPrimitive(s, l.ID) {
			// Nothing was ever requested for this layer.
			continue
		}
		for _, a := range Aspects {
			if err := r.applyAspect(s, l, a); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reconciler) applyAspect(s Surface, l LayerView, a Aspect) error {
	id := FeatureLayerID(l.ID, a)
	want := l.Shown(a)
	exists := s.HasLayer(id)

	switch {
	case !exists && (want || r.strategy == StrategyToggle):
		if err := s.AddLayer(aspectLayer(l.ID, a, VisibilityOf(want)), ""); err != nil {
			return fmt.Errorf("adding %s: %w", id, err)
		}
		r.log.Debug("added feature layer", zap.String("layer", id), zap.Bool("visible", want))
	case exists && !want && r.strategy == StrategyRemove:
		if err := s.RemoveLayer(id); err != nil {
			return fmt.Errorf("removing %s: %w", id, err)
		}
		r.log.Debug("removed feature layer", zap.String("layer", id))
	case exists:
		if err := s.SetLayerVisibility(id, VisibilityOf(want)); err != nil {
			return fmt.Errorf("setting visibility of %s: %w", id, err)
		}
	}
	return nil
}

func hasAnyPrimitive(s Surface, id int) bool {
	for _, a := range Aspects {
		if s.HasLayer(FeatureLayerID(id, a)) {
			return true
		}
	}
	return false
}

// layerLister is implemented by surfaces that can report their stack.
type layerLister interface {
	LayerIDs() []string
}

// firstFeaturePrimitive returns the lowest feature primitive on the
// surface, or "" when there is none.
func firstFeaturePrimitive(s Surface, layers []LayerView) string {
	if ll, ok := s.(layerLister); ok {
		for _, id := range ll.LayerIDs() {
			if strings.HasPrefix(id, "layer-") {
				return id
			}
		}
		return ""
	}
	for _, l := range layers {
		for _, a := range Aspects {
			if id := FeatureLayerID(l.ID, a); s.HasLayer(id) {
				return id
			}
		}
	}
	return ""
}
