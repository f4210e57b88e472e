package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/amche/layerlink/internal/domain/layer"
	"github.com/amche/layerlink/presets"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// DefaultColor is the atlas accent color when the document declares none.
const DefaultColor = "#2563eb"

// documentSchema guards the envelope only. Layer entries are filtered
// individually so one malformed entry never rejects the whole document.
var documentSchema = jsonschema.MustCompileString("atlas.schema.json", presets.Schema())

// Document is one parsed atlas configuration: the declared layer list in
// document order plus display metadata. Documents are immutable once parsed.
type Document struct {
	ID             string
	Name           string
	Color          string
	AreaOfInterest string
	Layers         []layer.Fields
	Bbox           *orb.Bound
	Atlases        []string // present on the top-level index document only
}

// rawDocument mirrors the wire shape of an atlas document.
type rawDocument struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Color          string          `json:"color"`
	AreaOfInterest string          `json:"areaOfInterest"`
	Layers         []any           `json:"layers"`
	Bbox           []float64       `json:"bbox"`
	Map            *rawMap         `json:"map"`
	GeoJSON        json.RawMessage `json:"geojson"`
	Atlases        []string        `json:"atlases"`
}

type rawMap struct {
	Bounds [][]float64 `json:"bounds"` // [[west,south],[east,north]]
}

// ParseDocument validates and parses one atlas document. atlasID is the id
// the document was fetched under; a declared id wins over it. Layer entries
// may be bare id strings or objects; anything else is skipped with a
// diagnostic.
func ParseDocument(atlasID string, data []byte, log *zap.Logger) (*Document, error) {
	var envelope any
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse atlas %q: %w", atlasID, err)
	}
	if err := documentSchema.Validate(envelope); err != nil {
		return nil, fmt.Errorf("atlas %q failed envelope validation: %w", atlasID, err)
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode atlas %q: %w", atlasID, err)
	}

	doc := &Document{
		ID:             atlasID,
		Name:           raw.Name,
		Color:          raw.Color,
		AreaOfInterest: raw.AreaOfInterest,
		Atlases:        raw.Atlases,
		Bbox:           deriveBbox(&raw),
	}
	if raw.ID != "" {
		doc.ID = raw.ID
	}
	if doc.Name == "" {
		doc.Name = doc.ID
	}
	if doc.Color == "" {
		doc.Color = DefaultColor
	}

	for i, item := range raw.Layers {
		switch v := item.(type) {
		case string:
			doc.Layers = append(doc.Layers, layer.Fields{"id": v})
		case map[string]any:
			doc.Layers = append(doc.Layers, layer.Fields(v))
		default:
			log.Warn("skipping malformed layer entry",
				zap.String("atlas", doc.ID),
				zap.Int("position", i),
				zap.Any("entry", item))
		}
	}

	return doc, nil
}

// deriveBbox computes the atlas bounding box in priority order: an explicit
// bbox field [west,south,east,north], a map.bounds pair, or the bounding
// rectangle of the first GeoJSON feature.
func deriveBbox(raw *rawDocument) *orb.Bound {
	if len(raw.Bbox) == 4 {
		b := orb.Bound{
			Min: orb.Point{raw.Bbox[0], raw.Bbox[1]},
			Max: orb.Point{raw.Bbox[2], raw.Bbox[3]},
		}
		return &b
	}

	if raw.Map != nil && len(raw.Map.Bounds) == 2 &&
		len(raw.Map.Bounds[0]) == 2 && len(raw.Map.Bounds[1]) == 2 {
		b := orb.Bound{
			Min: orb.Point{raw.Map.Bounds[0][0], raw.Map.Bounds[0][1]},
			Max: orb.Point{raw.Map.Bounds[1][0], raw.Map.Bounds[1][1]},
		}
		return &b
	}

	if len(raw.GeoJSON) > 0 {
		if fc, err := geojson.UnmarshalFeatureCollection(raw.GeoJSON); err == nil {
			if len(fc.Features) > 0 && fc.Features[0].Geometry != nil {
				b := fc.Features[0].Geometry.Bound()
				return &b
			}
		}
		if f, err := geojson.UnmarshalFeature(raw.GeoJSON); err == nil && f.Geometry != nil {
			b := f.Geometry.Bound()
			return &b
		}
	}

	return nil
}

// parsePresetLibrary indexes the shared preset library {layers:[{id,...}]}
// by bare id. Entries without a string id are dropped.
func parsePresetLibrary(data []byte, log *zap.Logger) map[string]layer.Fields {
	var raw struct {
		Layers []map[string]any `json:"layers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn("preset library unparsable", zap.Error(err))
		return map[string]layer.Fields{}
	}

	lib := make(map[string]layer.Fields, len(raw.Layers))
	for i, entry := range raw.Layers {
		f := layer.Fields(entry)
		id := f.ID()
		if id == "" {
			log.Warn("skipping preset without id", zap.Int("position", i))
			continue
		}
		lib[id] = f
	}
	return lib
}

// parseIndex extracts the known atlas id list from the index document.
func parseIndex(data []byte) []string {
	var raw struct {
		Atlases []string `json:"atlases"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	return raw.Atlases
}
