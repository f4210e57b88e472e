package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlay_StrongWins(t *testing.T) {
	strong := Fields{"id": "rivers", "opacity": 0.5}
	weak := Fields{"id": "rivers", "opacity": 1.0, "type": "vector"}

	merged := Overlay(strong, weak)
	assert.Equal(t, 0.5, merged["opacity"])
	assert.Equal(t, "vector", merged["type"])
}

func TestOverlay_NestedMapsMerge(t *testing.T) {
	strong := Fields{"style": map[string]any{"line-color": "#f00"}}
	weak := Fields{"style": map[string]any{"line-color": "#00f", "line-width": 2.0}}

	merged := Overlay(strong, weak)
	style := merged["style"].(map[string]any)
	assert.Equal(t, "#f00", style["line-color"])
	assert.Equal(t, 2.0, style["line-width"])
}

func TestOverlay_ArraysReplaceWholesale(t *testing.T) {
	strong := Fields{"tags": []any{"a"}}
	weak := Fields{"tags": []any{"b", "c"}}

	merged := Overlay(strong, weak)
	assert.Equal(t, []any{"a"}, merged["tags"])
}

func TestOverlay_DoesNotAliasInputs(t *testing.T) {
	weak := Fields{"style": map[string]any{"line-width": 2.0}}
	merged := Overlay(Fields{}, weak)

	merged["style"].(map[string]any)["line-width"] = 9.0
	assert.Equal(t, 2.0, weak["style"].(map[string]any)["line-width"])
}

func TestFromFields_Defaults(t *testing.T) {
	d, err := FromFields(Fields{"id": "roads"})
	require.NoError(t, err)

	assert.Equal(t, "roads", d.ID)
	assert.Equal(t, 1.0, d.Opacity)
	assert.Nil(t, d.InitiallyChecked)
	assert.False(t, d.Complete())
}

func TestFromFields_CompleteEntry(t *testing.T) {
	d, err := FromFields(Fields{"id": "roads", "type": "vector", "title": "Roads"})
	require.NoError(t, err)
	assert.True(t, d.Complete())
}

func TestFromFields_NameFallsBackToTitle(t *testing.T) {
	d, err := FromFields(Fields{"id": "roads", "type": "vector", "name": "Road Network"})
	require.NoError(t, err)
	assert.Equal(t, "Road Network", d.Title)
	assert.True(t, d.Complete())
}

func TestFromFields_TitleWinsOverName(t *testing.T) {
	d, err := FromFields(Fields{"id": "roads", "title": "Roads", "name": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "Roads", d.Title)
}

func TestFromFields_MissingID(t *testing.T) {
	_, err := FromFields(Fields{"type": "vector"})
	assert.Error(t, err)
}

func TestFromFields_NonStringID(t *testing.T) {
	_, err := FromFields(Fields{"id": 42.0})
	assert.Error(t, err)
}

func TestFromFields_BadOpacity(t *testing.T) {
	_, err := FromFields(Fields{"id": "roads", "opacity": "half"})
	assert.Error(t, err)
}

func TestFromFields_BadInitiallyChecked(t *testing.T) {
	_, err := FromFields(Fields{"id": "roads", "initiallyChecked": "yes"})
	assert.Error(t, err)
}

func TestFromFields_InitiallyCheckedPreserved(t *testing.T) {
	d, err := FromFields(Fields{"id": "roads", "initiallyChecked": true})
	require.NoError(t, err)
	require.NotNil(t, d.InitiallyChecked)
	assert.True(t, *d.InitiallyChecked)
}

func TestFromFields_UnrecognizedKeysLandInExtra(t *testing.T) {
	d, err := FromFields(Fields{"id": "roads", "minZoom": 8.0, "legend": "road-legend"})
	require.NoError(t, err)
	assert.Equal(t, 8.0, d.Extra["minZoom"])
	assert.Equal(t, "road-legend", d.Extra["legend"])
}

func TestSameLayer_ByBareID(t *testing.T) {
	a := &Descriptor{OriginalID: "roads", PrefixedID: "goa-roads"}
	b := &Descriptor{OriginalID: "roads", PrefixedID: "mumbai-roads"}
	c := &Descriptor{OriginalID: "rivers", PrefixedID: "goa-rivers"}

	assert.True(t, SameLayer(a, b))
	assert.False(t, SameLayer(a, c))
	assert.False(t, SameLayer(a, nil))
}
