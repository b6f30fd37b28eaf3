package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joeblew999/plat-territory/internal/mapview"
)

// parseLayerFlag parses "<id>:<aspect>[,<aspect>...]". A bare id shows the
// layer with every aspect off.
func parseLayerFlag(s string) (mapview.LayerView, error) {
	idPart, aspects, _ := strings.Cut(s, ":")
	id, err := strconv.Atoi(strings.TrimSpace(idPart))
	if err != nil || id < 1 {
		return mapview.LayerView{}, fmt.Errorf("invalid layer id in %q", s)
	}
	l := mapview.LayerView{ID: id}
	if aspects == "" {
		return l, nil
	}
	for _, a := range strings.Split(aspects, ",") {
		switch mapview.Aspect(strings.TrimSpace(a)) {
		case mapview.AspectFill:
			l.ShowFill = true
		case mapview.AspectOutline:
			l.ShowOutline = true
		case mapview.AspectLabel:
			l.ShowLabel = true
		default:
			return mapview.LayerView{}, fmt.Errorf("unknown aspect %q in %q", a, s)
		}
	}
	return l, nil
}
