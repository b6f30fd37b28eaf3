package mapview

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrSourceExists = errors.New("mapview: source already exists")
	ErrLayerExists  = errors.New("mapview: layer already exists")
	ErrNoSource     = errors.New("mapview: source does not exist")
	ErrNoLayer      = errors.New("mapview: layer does not exist")
)

// Style is a MapLibre style document (version 8).
type Style struct {
	Version int                   `json:"version"`
	Sources map[string]SourceSpec `json:"sources"`
	Layers  []LayerSpec           `json:"layers"`
}

// MemorySurface is an in-memory scene graph with MapLibre semantics:
// sources are keyed, layers are ordered bottom to top and must reference an
// existing source.
type MemorySurface struct {
	ready   bool
	sources map[string]SourceSpec
	order   []string
	layers  []LayerSpec
}

// NewMemorySurface returns an empty surface that reports ready.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{
		ready:   true,
		sources: make(map[string]SourceSpec),
	}
}

// SetReady flips the readiness flag.
func (m *MemorySurface) SetReady(ready bool) { m.ready = ready }

func (m *MemorySurface) IsReady() bool { return m.ready }

func (m *MemorySurface) HasSource(id string) bool {
	_, ok := m.sources[id]
	return ok
}

func (m *MemorySurface) AddSource(id string, spec SourceSpec) error {
	if m.HasSource(id) {
		return fmt.Errorf("%w: %s", ErrSourceExists, id)
	}
	m.sources[id] = spec
	m.order = append(m.order, id)
	return nil
}

func (m *MemorySurface) HasLayer(id string) bool {
	return m.indexOf(id) >= 0
}

func (m *MemorySurface) AddLayer(spec LayerSpec, beforeID string) error {
	if m.HasLayer(spec.ID) {
		return fmt.Errorf("%w: %s", ErrLayerExists, spec.ID)
	}
	if !m.HasSource(spec.Source) {
		return fmt.Errorf("%w: %s (layer %s)", ErrNoSource, spec.Source, spec.ID)
	}
	at := len(m.layers)
	if beforeID != "" {
		if at = m.indexOf(beforeID); at < 0 {
			return fmt.Errorf("%w: %s (before)", ErrNoLayer, beforeID)
		}
	}
	m.layers = slices.Insert(m.layers, at, spec)
	return nil
}

func (m *MemorySurface) RemoveLayer(id string) error {
	i := m.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoLayer, id)
	}
	m.layers = slices.Delete(m.layers, i, i+1)
	return nil
}

func (m *MemorySurface) SetLayerVisibility(id string, v Visibility) error {
	i := m.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoLayer, id)
	}
	if cur, _ := m.LayerVisibility(id); cur == v {
		return nil
	}
	l := &m.layers[i]
	if l.Layout == nil {
		l.Layout = &Layout{}
	} else {
		cp := *l.Layout
		l.Layout = &cp
	}
	l.Layout.Visibility = v
	return nil
}

// LayerVisibility returns the effective visibility of a layer. Layers
// without an explicit value are visible.
func (m *MemorySurface) LayerVisibility(id string) (Visibility, bool) {
	i := m.indexOf(id)
	if i < 0 {
		return "", false
	}
	if l := m.layers[i]; l.Layout != nil && l.Layout.Visibility != "" {
		return l.Layout.Visibility, true
	}
	return Visible, true
}

// LayerIDs returns layer keys bottom to top.
func (m *MemorySurface) LayerIDs() []string {
	ids := make([]string, len(m.layers))
	for i, l := range m.layers {
		ids[i] = l.ID
	}
	return ids
}

// SourceIDs returns source keys in creation order.
func (m *MemorySurface) SourceIDs() []string {
	return slices.Clone(m.order)
}

// VisibleLayerIDs returns the keys of rendered layers bottom to top.
func (m *MemorySurface) VisibleLayerIDs() []string {
	var ids []string
	for _, l := range m.layers {
		if v, _ := m.LayerVisibility(l.ID); v == Visible {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

// Style exports the scene graph as a style document.
func (m *MemorySurface) Style() Style {
	sources := make(map[string]SourceSpec, len(m.sources))
	for k, v := range m.sources {
		sources[k] = v
	}
	return Style{
		Version: 8,
		Sources: sources,
		Layers:  slices.Clone(m.layers),
	}
}

func (m *MemorySurface) indexOf(id string) int {
	return slices.IndexFunc(m.layers, func(l LayerSpec) bool { return l.ID == id })
}

var _ Surface = (*MemorySurface)(nil)
