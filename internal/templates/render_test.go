package templates

import (
	"bytes"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedFragments(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	html, err := r.Render("layer-row", map[string]any{"ID": 7, "Name": "Territory", "Order": 1, "NodeCount": 12})
	require.NoError(t, err)
	assert.Contains(t, html, `data-bind="layer_7_fill"`)
	assert.Contains(t, html, `data-bind="layer_7_outline"`)
	assert.Contains(t, html, `data-bind="layer_7_label"`)
	assert.Contains(t, html, "Territory")

	html, err = r.Render("basemap-option", map[string]any{"Value": "osm", "Label": "osm", "Selected": true})
	require.NoError(t, err)
	assert.Equal(t, `<option value="osm" selected>osm</option>`, html)

	var buf bytes.Buffer
	require.NoError(t, r.RenderToBuffer(&buf, "empty-state", map[string]string{"Title": "<none>", "Message": "x"}))
	assert.Contains(t, buf.String(), "&lt;none&gt;")

	_, err = r.Render("missing", nil)
	assert.Error(t, err)
}

func TestReload(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	fsys := fstest.MapFS{
		"dev/a.html": {Data: []byte(`{{define "greet"}}hi {{index (dict "who" .) "who"}}{{end}}`)},
	}
	require.NoError(t, r.Reload(fsys, "dev/*.html"))

	html, err := r.Render("greet", "there")
	require.NoError(t, err)
	assert.Equal(t, "hi there", html)
}
