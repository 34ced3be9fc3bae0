package bunview

import "encoding/json"

// Row is one normalized view result row. Every decode produces a fresh
// value owned by the caller; rows are never aliased.
type Row struct {
	ID       string
	Key      any
	Value    any
	Doc      map[string]any
	Meta     map[string]any
	Geometry json.RawMessage
	Bbox     []float64

	// Last marks the final row of a fetch. It is false by default and set
	// exactly once by the executor.
	Last bool

	transport Transport
}

// Get returns the named field of the embedded document, or nil when the
// field (or the document itself) is absent. Callers that need to tell a
// missing field from a null one check Has first.
func (r *Row) Get(name string) any {
	if r.Doc == nil {
		return nil
	}
	return r.Doc[name]
}

// Set stores a field on the embedded document.
func (r *Row) Set(name string, value any) {
	if r.Doc == nil {
		r.Doc = make(map[string]any)
	}
	r.Doc[name] = value
}

// Has reports whether the embedded document carries the named field.
func (r *Row) Has(name string) bool {
	if r.Doc == nil {
		return false
	}
	_, ok := r.Doc[name]
	return ok
}

// Transport returns the transport that produced this row, for follow-up
// document fetches.
func (r *Row) Transport() Transport { return r.transport }

// Rows is a materialized result set. TotalRows is the index total the
// server reported and can be smaller or larger than Len: limited,
// reduced or grouped queries all diverge from the raw index size.
type Rows struct {
	Items     []*Row
	TotalRows int
}

// Len returns the number of materialized rows.
func (rs *Rows) Len() int { return len(rs.Items) }

// First returns the first row, or nil for an empty set.
func (rs *Rows) First() *Row {
	if len(rs.Items) == 0 {
		return nil
	}
	return rs.Items[0]
}
