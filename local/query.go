package local

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/kartikbazzad/bunview"
	"github.com/kartikbazzad/bunview/wire"
)

type entry struct {
	key   any
	value any
	id    string
	doc   map[string]any
}

type handle struct {
	store *Store
	def   ViewDef
}

// Query evaluates the wire query against the current document set: run
// the map function over every document, order the emitted entries by key
// collation, apply the range/selection options, then optionally reduce.
func (h *handle) Query(ctx context.Context, q *wire.Query) (bunview.RowStream, error) {
	opts, err := wire.DecodeQuery(q)
	if err != nil {
		return nil, err
	}

	entries, err := h.index(ctx)
	if err != nil {
		return nil, err
	}
	total := len(entries)

	if descending, _ := opts["descending"].(bool); descending {
		reverse(entries)
		entries = applyRange(entries, opts, -1)
	} else {
		entries = applyRange(entries, opts, 1)
	}
	entries = applyKeys(entries, opts)

	reduced := false
	if h.def.Reduce != nil {
		if want, ok := opts["reduce"].(bool); !ok || want {
			entries = h.reduce(entries, opts)
			reduced = true
		}
	}

	entries = applyWindow(entries, opts)

	includeDocs, _ := opts["include_docs"].(bool)
	rows := make([]*wire.RawRow, 0, len(entries))
	for _, e := range entries {
		raw, err := toRawRow(e, reduced, includeDocs)
		if err != nil {
			return nil, err
		}
		rows = append(rows, raw)
	}
	return &memStream{rows: rows, total: total, i: -1}, nil
}

// index maps every document and returns the emitted entries in key
// collation order.
func (h *handle) index(ctx context.Context) ([]entry, error) {
	dbRows, err := h.store.db.QueryContext(ctx, `SELECT id, body FROM documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer dbRows.Close()

	var entries []entry
	for dbRows.Next() {
		var id string
		var body []byte
		if err := dbRows.Scan(&id, &body); err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		h.def.Map(id, doc, func(key, value any) {
			entries = append(entries, entry{
				key:   normalize(key),
				value: normalize(value),
				id:    id,
				doc:   doc,
			})
		})
	}
	if err := dbRows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if c := collate(entries[i].key, entries[j].key); c != 0 {
			return c < 0
		}
		return entries[i].id < entries[j].id
	})
	return entries, nil
}

// reduce folds entries into one row per key group. group_level truncates
// array keys; group=true keeps whole keys; with neither, everything
// reduces into a single row with a null key. Reduced rows carry no id.
func (h *handle) reduce(entries []entry, opts map[string]any) []entry {
	group, _ := opts["group"].(bool)
	level := -1
	if n, ok := optInt(opts, "group_level"); ok {
		level = n
	}

	groupKey := func(k any) any {
		switch {
		case level >= 0:
			if arr, ok := k.([]any); ok && len(arr) > level {
				return append([]any(nil), arr[:level]...)
			}
			return k
		case group:
			return k
		default:
			return nil
		}
	}

	var order []string
	groups := make(map[string][]entry)
	keys := make(map[string]any)
	for _, e := range entries {
		gk := groupKey(e.key)
		id := collationKey(gk)
		if _, seen := groups[id]; !seen {
			order = append(order, id)
			keys[id] = gk
		}
		groups[id] = append(groups[id], e)
	}

	out := make([]entry, 0, len(order))
	for _, id := range order {
		members := groups[id]
		ks := make([]any, len(members))
		vs := make([]any, len(members))
		for i, m := range members {
			ks[i] = m.key
			vs[i] = m.value
		}
		out = append(out, entry{key: keys[id], value: normalize(h.def.Reduce(ks, vs))})
	}
	return out
}

// applyRange trims entries to the startkey/endkey window in traversal
// order; dir is -1 when descending. The docid tiebreakers follow the
// same direction as the keys: within an equal-key run ids descend after
// reverse. inclusive_end defaults to true.
func applyRange(entries []entry, opts map[string]any, dir int) []entry {
	inclusiveEnd := true
	if v, ok := opts["inclusive_end"].(bool); ok {
		inclusiveEnd = v
	}
	if start, ok := opts["startkey"]; ok {
		startDocID, _ := opts["startkey_docid"].(string)
		for len(entries) > 0 {
			c := collate(entries[0].key, start) * dir
			if c > 0 || (c == 0 && (startDocID == "" || strings.Compare(entries[0].id, startDocID)*dir >= 0)) {
				break
			}
			entries = entries[1:]
		}
	}
	if end, ok := opts["endkey"]; ok {
		endDocID, _ := opts["endkey_docid"].(string)
		cut := len(entries)
		for i, e := range entries {
			c := collate(e.key, end) * dir
			if c > 0 || (c == 0 && !inclusiveEnd) || (c == 0 && endDocID != "" && strings.Compare(e.id, endDocID)*dir > 0) {
				cut = i
				break
			}
		}
		entries = entries[:cut]
	}
	return entries
}

func applyKeys(entries []entry, opts map[string]any) []entry {
	if key, ok := opts["key"]; ok {
		return filterEntries(entries, func(e entry) bool {
			return reflect.DeepEqual(e.key, key)
		})
	}
	// A keys selection returns its matches in the order of the supplied
	// list, not in index order.
	if keys, ok := opts["keys"].([]any); ok {
		out := entries[:0:0]
		for _, k := range keys {
			for _, e := range entries {
				if reflect.DeepEqual(e.key, k) {
					out = append(out, e)
				}
			}
		}
		return out
	}
	return entries
}

func applyWindow(entries []entry, opts map[string]any) []entry {
	if skip, ok := optInt(opts, "skip"); ok && skip > 0 {
		if skip >= len(entries) {
			return nil
		}
		entries = entries[skip:]
	}
	if limit, ok := optInt(opts, "limit"); ok && limit >= 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}

// optInt reads an integer option that may arrive as an int (query
// string) or a float64 (request body).
func optInt(opts map[string]any, name string) (int, bool) {
	switch v := opts[name].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func filterEntries(entries []entry, keep func(entry) bool) []entry {
	out := entries[:0:0]
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func toRawRow(e entry, reduced, includeDocs bool) (*wire.RawRow, error) {
	value, err := json.Marshal(e.value)
	if err != nil {
		return nil, fmt.Errorf("encode view value: %w", err)
	}
	raw := &wire.RawRow{Key: e.key, Value: value}
	if reduced {
		raw.Kind = wire.KindReduced
		return raw, nil
	}
	raw.ID = e.id
	raw.Kind = wire.KindRow
	if includeDocs {
		raw.Doc = e.doc
		raw.Meta = map[string]any{"id": e.id}
		raw.Kind = wire.KindRowWithDoc
	}
	return raw, nil
}

func reverse(entries []entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}

// normalize passes a value through JSON so locally emitted Go values
// compare the same way as values decoded off the wire.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

type memStream struct {
	rows  []*wire.RawRow
	total int
	i     int
}

func (m *memStream) Next() bool {
	m.i++
	return m.i < len(m.rows)
}

func (m *memStream) Row() *wire.RawRow { return m.rows[m.i] }
func (m *memStream) Err() error        { return nil }
func (m *memStream) TotalRows() int    { return m.total }
func (m *memStream) Close() error      { return nil }
