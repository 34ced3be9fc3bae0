package wire

import "encoding/json"

// RowKind tags the shape of a raw view row. The kind decides which RawRow
// fields are populated.
type RowKind uint8

const (
	KindRow            RowKind = iota // key, value, id
	KindRowWithDoc                    // key, doc, id
	KindReduced                       // key, value; never an id
	KindSpatial                       // key, value, id, geometry, bbox
	KindSpatialWithDoc                // key, doc, id, geometry, bbox
	KindError                         // from, reason
)

// RawRow is one row object exactly as a transport produced it. Decoding
// into caller-visible rows never mutates a RawRow.
type RawRow struct {
	Kind     RowKind
	ID       string
	Key      any
	Value    json.RawMessage
	Doc      map[string]any
	Meta     map[string]any
	Geometry json.RawMessage
	Bbox     []float64

	// Embedded error object fields (KindError only).
	From   string
	Reason string
}

// InferKind derives the row kind from the populated fields. Reduced rows
// are the only ones without a document id; spatial rows carry geometry.
func (r *RawRow) InferKind() RowKind {
	switch {
	case r.From != "" || r.Reason != "":
		return KindError
	case r.Geometry != nil && r.Doc != nil:
		return KindSpatialWithDoc
	case r.Geometry != nil:
		return KindSpatial
	case r.Doc != nil:
		return KindRowWithDoc
	case r.ID == "":
		return KindReduced
	default:
		return KindRow
	}
}
