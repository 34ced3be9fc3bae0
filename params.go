package bunview

// Params is the option set of one view query. Recognized options:
//
//	key, keys, startkey/start_key, endkey/end_key,
//	startkey_docid/start_key_doc_id, endkey_docid/end_key_doc_id,
//	inclusive_end, limit, skip, descending, stale (false | "ok" |
//	"update_after"), reduce, group, group_level, include_docs,
//	on_error ("continue" | "stop"), connection_timeout (ms), quiet,
//	body (ship all contained options as a request payload)
//
// Unrecognized options are forwarded to the server untouched.
type Params map[string]any

// DefaultParams are applied under every query a view issues: stale reads
// with a background index refresh, and quiet misses on document joins.
func DefaultParams() Params {
	return Params{
		"stale": "update_after",
		"quiet": true,
	}
}

// merged layers over on top of p; per-key, over wins. Neither map is
// mutated.
func (p Params) merged(over Params) Params {
	out := make(Params, len(p)+len(over))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
