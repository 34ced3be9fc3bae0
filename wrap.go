package bunview

import (
	"encoding/json"
	"fmt"

	"github.com/kartikbazzad/bunview/wire"
)

// RowWrapper converts raw transport rows into caller-visible rows. A
// custom wrapper injected at view construction can enrich or reshape rows
// without touching the executor.
type RowWrapper interface {
	Wrap(tr Transport, raw *wire.RawRow) (*Row, error)
}

// StdWrapper is the default wrapper. It dispatches on the raw-row kind:
//
//	KindRow             key, value, id
//	KindRowWithDoc      key, doc (+meta), id
//	KindReduced         key, decoded value; no id
//	KindSpatial         key, value, id, geometry, bbox
//	KindSpatialWithDoc  key, doc (+meta), id, geometry, bbox
type StdWrapper struct{}

func (StdWrapper) Wrap(tr Transport, raw *wire.RawRow) (*Row, error) {
	row := &Row{Key: raw.Key, transport: tr}
	switch raw.Kind {
	case wire.KindRow:
		row.ID = raw.ID
		if err := decodeValue(raw.Value, &row.Value); err != nil {
			return nil, err
		}
	case wire.KindRowWithDoc:
		row.ID = raw.ID
		row.Doc = copyDoc(raw.Doc)
		row.Meta = raw.Meta
	case wire.KindReduced:
		// A reduced value that fails to decode is a malformed server
		// response, not something to paper over.
		if err := decodeValue(raw.Value, &row.Value); err != nil {
			return nil, fmt.Errorf("decode reduced value: %w", err)
		}
	case wire.KindSpatial:
		row.ID = raw.ID
		row.Geometry = raw.Geometry
		row.Bbox = raw.Bbox
		if err := decodeValue(raw.Value, &row.Value); err != nil {
			return nil, err
		}
	case wire.KindSpatialWithDoc:
		row.ID = raw.ID
		row.Doc = copyDoc(raw.Doc)
		row.Meta = raw.Meta
		row.Geometry = raw.Geometry
		row.Bbox = raw.Bbox
	default:
		return nil, fmt.Errorf("unknown row kind %d", raw.Kind)
	}
	return row, nil
}

func decodeValue(raw json.RawMessage, into *any) error {
	if raw == nil {
		return nil
	}
	return json.Unmarshal(raw, into)
}

// copyDoc keeps Row.Set from reaching back into the raw row.
func copyDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
