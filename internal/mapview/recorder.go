package mapview

// OpKind names a surface mutation.
type OpKind string

const (
	OpAddSource     OpKind = "addSource"
	OpAddLayer      OpKind = "addLayer"
	OpRemoveLayer   OpKind = "removeLayer"
	OpSetVisibility OpKind = "setVisibility"
)

// Op is one recorded surface mutation, shaped for replay against a
// MapLibre map in the browser.
type Op struct {
	Kind       OpKind      `json:"op"`
	ID         string      `json:"id"`
	Source     *SourceSpec `json:"source,omitempty"`
	Layer      *LayerSpec  `json:"layer,omitempty"`
	BeforeID   string      `json:"beforeId,omitempty"`
	Visibility Visibility  `json:"visibility,omitempty"`
}

// RecordingSurface mirrors a remote surface in memory and records every
// mutation that changes the mirror. Visibility writes that match the
// mirror are dropped, so a repeated reconcile records nothing.
type RecordingSurface struct {
	mirror *MemorySurface
	ops    []Op
}

// NewRecordingSurface starts from an empty, ready mirror.
func NewRecordingSurface() *RecordingSurface {
	return &RecordingSurface{mirror: NewMemorySurface()}
}

// Mirror exposes the in-memory copy of the remote state.
func (r *RecordingSurface) Mirror() *MemorySurface { return r.mirror }

// SetReady flips the readiness flag of the mirror.
func (r *RecordingSurface) SetReady(ready bool) { r.mirror.SetReady(ready) }

// Drain returns the recorded ops and clears the log.
func (r *RecordingSurface) Drain() []Op {
	ops := r.ops
	r.ops = nil
	return ops
}

// Pending reports the number of recorded ops not yet drained.
func (r *RecordingSurface) Pending() int { return len(r.ops) }

func (r *RecordingSurface) IsReady() bool            { return r.mirror.IsReady() }
func (r *RecordingSurface) HasSource(id string) bool { return r.mirror.HasSource(id) }
func (r *RecordingSurface) HasLayer(id string) bool  { return r.mirror.HasLayer(id) }
func (r *RecordingSurface) LayerIDs() []string       { return r.mirror.LayerIDs() }

func (r *RecordingSurface) AddSource(id string, spec SourceSpec) error {
	if err := r.mirror.AddSource(id, spec); err != nil {
		return err
	}
	r.ops = append(r.ops, Op{Kind: OpAddSource, ID: id, Source: &spec})
	return nil
}

func (r *RecordingSurface) AddLayer(spec LayerSpec, beforeID string) error {
	if err := r.mirror.AddLayer(spec, beforeID); err != nil {
		return err
	}
	r.ops = append(r.ops, Op{Kind: OpAddLayer, ID: spec.ID, Layer: &spec, BeforeID: beforeID})
	return nil
}

func (r *RecordingSurface) RemoveLayer(id string) error {
	if err := r.mirror.RemoveLayer(id); err != nil {
		return err
	}
	r.ops = append(r.ops, Op{Kind: OpRemoveLayer, ID: id})
	return nil
}

func (r *RecordingSurface) SetLayerVisibility(id string, v Visibility) error {
	current, ok := r.mirror.LayerVisibility(id)
	if ok && current == v {
		return nil
	}
	if err := r.mirror.SetLayerVisibility(id, v); err != nil {
		return err
	}
	r.ops = append(r.ops, Op{Kind: OpSetVisibility, ID: id, Visibility: v})
	return nil
}

var _ Surface = (*RecordingSurface)(nil)
