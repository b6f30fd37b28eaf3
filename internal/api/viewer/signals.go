// Package viewer contains the Datastar SSE handlers that drive a browser map
// from a server-side view session.
package viewer

import (
	"fmt"

	"github.com/joeblew999/plat-territory/internal/humastar"
	"github.com/joeblew999/plat-territory/internal/mapview"
	"github.com/joeblew999/plat-territory/internal/service"
)

// Signal names bound by the layer panel.
const basemapSignal = "basemap"

func aspectSignal(id int, a mapview.Aspect) string {
	return fmt.Sprintf("layer_%d_%s", id, a)
}

// StateFromSignals builds the desired state from panel signals. Every layer
// of the store is listed in order. A signal that was not sent keeps its
// value from current; one sent as false turns the flag off.
func StateFromSignals(signals humastar.Signals, layers []service.Layer, current mapview.ViewState) mapview.ViewState {
	st := mapview.ViewState{
		BaseMap: current.BaseMap,
		Layers:  make([]mapview.LayerView, 0, len(layers)),
	}
	if signals.Has(basemapSignal) {
		st.BaseMap = mapview.BaseMapName(signals.String(basemapSignal))
	}
	was := make(map[int]mapview.LayerView, len(current.Layers))
	for _, l := range current.Layers {
		was[l.ID] = l
	}
	flag := func(id int, a mapview.Aspect) bool {
		key := aspectSignal(id, a)
		if !signals.Has(key) {
			return was[id].Shown(a)
		}
		return signals.Bool(key)
	}
	for _, l := range layers {
		st.Layers = append(st.Layers, mapview.LayerView{
			ID:          l.ID,
			ShowFill:    flag(l.ID, mapview.AspectFill),
			ShowOutline: flag(l.ID, mapview.AspectOutline),
			ShowLabel:   flag(l.ID, mapview.AspectLabel),
		})
	}
	return st
}

// SignalsFromState is the inverse of StateFromSignals, used to sync the
// panel controls with the stored state.
func SignalsFromState(st mapview.ViewState, layers []service.Layer) map[string]any {
	shown := make(map[int]mapview.LayerView, len(st.Layers))
	for _, l := range st.Layers {
		shown[l.ID] = l
	}
	signals := map[string]any{basemapSignal: string(st.BaseMap)}
	for _, l := range layers {
		v := shown[l.ID]
		for _, a := range mapview.Aspects {
			signals[aspectSignal(l.ID, a)] = v.Shown(a)
		}
	}
	return signals
}
