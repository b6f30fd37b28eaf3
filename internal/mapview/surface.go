package mapview

// Surface is the mutable rendering target the reconciler writes into.
// Implementations mirror the MapLibre map API. Mutations are not safe for
// concurrent use; callers serialize them through an [Updater].
type Surface interface {
	IsReady() bool
	HasSource(id string) bool
	AddSource(id string, spec SourceSpec) error
	HasLayer(id string) bool
	// AddLayer inserts spec below beforeID, or on top when beforeID is empty.
	AddLayer(spec LayerSpec, beforeID string) error
	RemoveLayer(id string) error
	SetLayerVisibility(id string, v Visibility) error
}
