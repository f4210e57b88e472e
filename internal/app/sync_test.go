package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/amche/layerlink/internal/domain/catalog"
	"github.com/amche/layerlink/internal/domain/layer"
	"github.com/amche/layerlink/internal/domain/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSource feeds the registry directly, bypassing document fetching.
type fakeSource struct {
	ids      []string
	declared map[string][]layer.Fields
	presets  map[string]layer.Fields
}

func (f *fakeSource) AtlasIDs() []string { return f.ids }

func (f *fakeSource) KnownAtlases() map[string]bool {
	out := make(map[string]bool, len(f.ids))
	for _, id := range f.ids {
		out[id] = true
	}
	return out
}

func (f *fakeSource) DeclaredLayers(atlasID string) []layer.Fields { return f.declared[atlasID] }

func (f *fakeSource) Preset(id string) layer.Fields { return f.presets[id] }

func syncSource() *fakeSource {
	return &fakeSource{
		ids: []string{"goa", "mumbai"},
		declared: map[string][]layer.Fields{
			"goa": {
				{"id": "roads", "type": "vector", "title": "Roads", "initiallyChecked": true},
				{"id": "plots", "type": "vector", "title": "Survey Plots"},
				{"id": "slope", "type": "raster", "title": "Slope", "opacity": 0.7},
			},
			"mumbai": {
				{"id": "wards", "type": "vector", "title": "Ward Boundaries"},
			},
		},
		presets: map[string]layer.Fields{
			"rivers": {"id": "rivers", "type": "vector", "title": "Rivers"},
		},
	}
}

func newTestController(t *testing.T, hist *MemHistory) *SyncController {
	t.Helper()
	reg := registry.New(syncSource(), zap.NewNop())
	reg.Build()
	return NewSyncController(SyncConfig{
		Registry: reg,
		History:  hist,
		Atlas:    "goa",
		Debounce: 10 * time.Millisecond,
	}, zap.NewNop())
}

func displayIDs(states []LayerState) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = st.DisplayID
	}
	return out
}

func opacityPtr(v float64) *float64 { return &v }

func TestApply_EmptyLinkActivatesDeclaredDefaults(t *testing.T) {
	hist := NewMemHistory("")
	c := newTestController(t, hist)

	c.Apply(hist.Current())
	c.Flush()

	states := c.ActiveLayers()
	require.Len(t, states, 3)
	assert.Equal(t, []string{"roads", "plots", "slope"}, displayIDs(states))
	assert.True(t, states[0].Checked, "initiallyChecked layer starts on")
	assert.False(t, states[1].Checked)
	assert.False(t, states[2].Checked)
	assert.Equal(t, 0.7, states[2].Opacity)
	for _, st := range states {
		assert.False(t, st.InLink, "%s should not enter an empty link", st.DisplayID)
	}
	assert.Zero(t, hist.Writes())
	assert.Equal(t, "", hist.Current())
}

func TestApply_RoundTripKeepsLinkUntouched(t *testing.T) {
	const link = "roads,{'id':'rivers','opacity':0.5}"
	hist := NewMemHistory(link)
	c := newTestController(t, hist)

	c.Apply(hist.Current())
	c.Flush()

	assert.Zero(t, hist.Writes(), "an unchanged link must not add history entries")
	assert.Equal(t, link, hist.Current())

	states := c.ActiveLayers()
	require.Equal(t, []string{"roads", "rivers", "plots", "slope"}, displayIDs(states))
	assert.True(t, states[0].Checked)
	assert.True(t, states[1].Checked)
	assert.Equal(t, 0.5, states[1].Opacity)
	assert.False(t, states[2].Checked, "link presence turns declared defaults off")
	assert.False(t, states[3].Checked)
}

func TestApply_PercentEncodedLinkLeftAlone(t *testing.T) {
	const encoded = "roads,%7B'id':'rivers','opacity':0.5%7D"
	hist := NewMemHistory(encoded)
	c := newTestController(t, hist)

	c.Apply(hist.Current())
	c.Flush()

	assert.Zero(t, hist.Writes(), "encoding differences alone must not trigger a rewrite")
	assert.Equal(t, encoded, hist.Current())

	states := c.ActiveLayers()
	require.Equal(t, []string{"roads", "rivers", "plots", "slope"}, displayIDs(states))
	assert.Equal(t, 0.5, states[1].Opacity)
}

func TestApply_UnknownLayerDroppedFromStateAndLink(t *testing.T) {
	hist := NewMemHistory("roads,ghost,{'id':'rivers','opacity':0.5}")
	c := newTestController(t, hist)

	c.Apply(hist.Current())
	c.Flush()

	assert.Equal(t, []string{"ghost"}, c.DroppedLayers())
	assert.NotContains(t, displayIDs(c.ActiveLayers()), "ghost")

	assert.Equal(t, 1, hist.Writes())
	assert.Equal(t, "roads,{'id':'rivers','opacity':0.5}", hist.Current(),
		"surviving items keep their original text and relative order")
}

func TestApply_MergeKeepsDeclaredOrder(t *testing.T) {
	hist := NewMemHistory("slope,rivers,roads")
	c := newTestController(t, hist)

	c.Apply(hist.Current())
	c.Flush()

	states := c.ActiveLayers()
	require.Equal(t, []string{"roads", "plots", "slope", "rivers"}, displayIDs(states),
		"declared order wins; additions slot in after their nearest declared match")
	assert.True(t, states[0].Checked)
	assert.False(t, states[1].Checked)
	assert.True(t, states[2].Checked)
	assert.True(t, states[3].Checked)

	assert.Equal(t, 1, hist.Writes())
	assert.Equal(t, "roads,slope,rivers", hist.Current())

	// The rewritten text is a fixed point.
	c.Apply(hist.Current())
	c.Flush()
	assert.Equal(t, 1, hist.Writes())
}

func TestApply_URLOnlyAdditionInsertsAtFront(t *testing.T) {
	hist := NewMemHistory("rivers,plots")
	c := newTestController(t, hist)

	c.Apply(hist.Current())
	c.Flush()

	assert.Equal(t, []string{"rivers", "roads", "plots", "slope"}, displayIDs(c.ActiveLayers()))
	assert.Zero(t, hist.Writes())
	assert.Equal(t, "rivers,plots", hist.Current())
}

func TestApply_DuplicateStubFirstWins(t *testing.T) {
	hist := NewMemHistory("roads,{'id':'roads','opacity':0.2},roads")
	c := newTestController(t, hist)

	c.Apply(hist.Current())
	c.Flush()

	states := c.ActiveLayers()
	require.Equal(t, []string{"roads", "plots", "slope"}, displayIDs(states))
	assert.Equal(t, 1.0, states[0].Opacity, "later duplicates cannot override the first occurrence")

	assert.Equal(t, 1, hist.Writes())
	assert.Equal(t, "roads", hist.Current())
}

func TestApply_UncheckedOverrideInLink(t *testing.T) {
	const link = "{'id':'roads','initiallyChecked':false},plots"
	hist := NewMemHistory(link)
	c := newTestController(t, hist)

	c.Apply(hist.Current())
	c.Flush()

	states := c.ActiveLayers()
	require.Equal(t, []string{"roads", "plots", "slope"}, displayIDs(states))
	assert.False(t, states[0].Checked)
	assert.True(t, states[0].InLink, "an unchecked layer can still ride along in the link")
	assert.True(t, states[1].Checked)

	assert.Zero(t, hist.Writes())
	assert.Equal(t, link, hist.Current())
}

func TestApply_CrossAtlasReferenceResolves(t *testing.T) {
	hist := NewMemHistory("mumbai-wards")
	c := newTestController(t, hist)

	c.Apply(hist.Current())
	c.Flush()

	states := c.ActiveLayers()
	require.Equal(t, []string{"mumbai-wards", "roads", "plots", "slope"}, displayIDs(states))
	assert.Equal(t, "Ward Boundaries", states[0].Descriptor.Title)
	assert.Equal(t, "mumbai", states[0].Descriptor.SourceAtlas)
	assert.True(t, states[0].Checked)

	assert.Zero(t, hist.Writes())
}

func TestSetLayerState_AddsAndRewrites(t *testing.T) {
	hist := NewMemHistory("")
	c := newTestController(t, hist)
	c.Apply(hist.Current())
	c.Flush()

	require.True(t, c.SetLayerState("plots", true, nil))
	c.OnLayersChanged()
	c.Flush()
	assert.Equal(t, 1, hist.Writes())
	assert.Equal(t, "plots", hist.Current())

	require.True(t, c.SetLayerState("slope", true, opacityPtr(0.5)))
	c.OnLayersChanged()
	c.Flush()
	assert.Equal(t, 2, hist.Writes())
	assert.Equal(t, `plots,{"id":"slope","opacity":0.5}`, hist.Current())
}

func TestSetLayerState_UnknownLayerRefused(t *testing.T) {
	hist := NewMemHistory("")
	c := newTestController(t, hist)
	c.Apply(hist.Current())
	c.Flush()

	assert.False(t, c.SetLayerState("ghost", true, nil))
	c.OnLayersChanged()
	c.Flush()
	assert.Zero(t, hist.Writes())
}

func TestSetLayerState_UncheckNarrowsLink(t *testing.T) {
	hist := NewMemHistory("roads,plots")
	c := newTestController(t, hist)
	c.Apply(hist.Current())
	c.Flush()
	require.Zero(t, hist.Writes())

	require.True(t, c.SetLayerState("roads", false, nil))
	c.OnLayersChanged()
	c.Flush()

	assert.Equal(t, 1, hist.Writes())
	assert.Equal(t, "plots", hist.Current())

	states := c.ActiveLayers()
	assert.False(t, states[0].Checked)
	assert.False(t, states[0].InLink)
}

func TestSetLayerState_PresetLayerReusesItsEntry(t *testing.T) {
	hist := NewMemHistory("")
	c := newTestController(t, hist)
	c.Apply(hist.Current())
	c.Flush()

	require.True(t, c.SetLayerState("rivers", true, nil))
	c.OnLayersChanged()
	c.Flush()
	assert.Equal(t, "rivers", hist.Current())
	require.Len(t, c.ActiveLayers(), 4)

	// A second state change finds the same entry instead of appending.
	require.True(t, c.SetLayerState("rivers", true, opacityPtr(0.3)))
	c.OnLayersChanged()
	c.Flush()
	assert.Equal(t, `{"id":"rivers","opacity":0.3}`, hist.Current())
	assert.Len(t, c.ActiveLayers(), 4)
}

func TestOnLayersChanged_CoalescesBurst(t *testing.T) {
	hist := NewMemHistory("")
	c := newTestController(t, hist)
	c.Apply(hist.Current())
	c.Flush()

	require.True(t, c.SetLayerState("plots", true, nil))
	c.OnLayersChanged()
	require.True(t, c.SetLayerState("slope", true, nil))
	c.OnLayersChanged()

	require.Eventually(t, func() bool { return hist.Writes() == 1 },
		time.Second, 2*time.Millisecond, "burst should settle into one write")
	assert.Equal(t, "plots,slope", hist.Current())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, hist.Writes(), "no trailing second write")
}

func TestFlush_NoopWithoutPendingRewrite(t *testing.T) {
	hist := NewMemHistory("")
	c := newTestController(t, hist)
	c.Apply(hist.Current())
	c.Flush()
	c.Flush()
	assert.Zero(t, hist.Writes())

	require.True(t, c.SetLayerState("plots", true, nil))
	c.OnLayersChanged()
	c.Flush()
	c.Flush()
	assert.Equal(t, 1, hist.Writes())
}

func TestOnRewrite_ListenerSeesNewText(t *testing.T) {
	hist := NewMemHistory("")
	c := newTestController(t, hist)
	c.Apply(hist.Current())
	c.Flush()

	var got []string
	c.OnRewrite(func(text string) { got = append(got, text) })

	require.True(t, c.SetLayerState("plots", true, nil))
	c.OnLayersChanged()
	c.Flush()

	require.Equal(t, []string{"plots"}, got)
}

func TestRun_BootSequence(t *testing.T) {
	fetcher := &fakeDocFetcher{docs: map[string]string{
		"https://example.in/atlases.json": `{"atlases":["goa"]}`,
		"https://example.in/atlases/goa.json": `{
			"id": "goa",
			"name": "Goa",
			"bbox": [73.6, 14.8, 74.4, 15.8],
			"layers": [
				{"id": "roads", "type": "vector", "title": "Roads", "initiallyChecked": true},
				"cadastral"
			]
		}`,
	}}
	cat := catalog.New(fetcher, catalog.Config{
		IndexURL:         "https://example.in/atlases.json",
		AtlasURLTemplate: "https://example.in/atlases/%s.json",
	}, zap.NewNop())
	reg := registry.New(cat, zap.NewNop())
	hist := NewMemHistory("cadastral")

	c := NewSyncController(SyncConfig{
		Catalog:  cat,
		Registry: reg,
		History:  hist,
		Atlas:    "goa",
		Debounce: 10 * time.Millisecond,
	}, zap.NewNop())

	assert.Equal(t, PhaseIdle, c.Phase())
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, PhaseReady, c.Phase())

	states := c.ActiveLayers()
	require.Equal(t, []string{"roads", "cadastral"}, displayIDs(states))
	assert.False(t, states[0].Checked, "link stubs override declared defaults")
	assert.True(t, states[1].Checked)
	assert.NotEmpty(t, states[1].Descriptor.Type, "bare declaration completes from the embedded preset library")

	c.Flush()
	assert.Zero(t, hist.Writes())
}

// fakeDocFetcher serves canned documents by URL.
type fakeDocFetcher struct {
	docs map[string]string
}

func (f *fakeDocFetcher) FetchJSON(_ context.Context, url string) ([]byte, error) {
	doc, ok := f.docs[url]
	if !ok {
		return nil, fmt.Errorf("fetching %s: no such document", url)
	}
	return []byte(doc), nil
}
