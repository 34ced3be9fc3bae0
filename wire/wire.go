// Package wire defines the wire-level representation of view queries and
// the raw row objects a transport produces while consuming a result stream.
//
// Query Format:
//
//	GET  /<bucket>/_design/<ddoc>/_view/<view>?<options>
//	POST /<bucket>/_design/<ddoc>/_view/<view>   (options as JSON body)
//
// Key-typed options (key, keys, startkey, endkey) are JSON-encoded on the
// wire even when they are plain scalars. Everything else is rendered as a
// bare string, number or boolean.
package wire

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// DefaultTimeout is the connection timeout applied when a query carries no
// connection_timeout option.
const DefaultTimeout = 75000 * time.Millisecond

// aliases maps the long option spellings to their canonical wire keys.
var aliases = map[string]string{
	"start_key":        "startkey",
	"end_key":          "endkey",
	"start_key_doc_id": "startkey_docid",
	"end_key_doc_id":   "endkey_docid",
}

// jsonOptions are the options whose values are always JSON-encoded,
// scalars included. A compound key like ["post-42", 1] must survive the
// round trip unchanged.
var jsonOptions = map[string]bool{
	"key":      true,
	"keys":     true,
	"startkey": true,
	"endkey":   true,
}

// Query is the wire form of one view request.
type Query struct {
	Values  url.Values
	Body    []byte
	Timeout time.Duration
}

// Canonical resolves option name synonyms to the single wire key.
func Canonical(name string) string {
	if canon, ok := aliases[name]; ok {
		return canon
	}
	return name
}

// BuildQuery translates an option map into its wire representation.
// Unrecognized options pass through verbatim; the builder does not
// validate against a fixed option set. The "body" option is the escape
// hatch that ships every option it contains as a request payload instead
// of query parameters and is itself never forwarded.
func BuildQuery(opts map[string]any) (*Query, error) {
	q := &Query{Values: url.Values{}, Timeout: DefaultTimeout}

	names := make([]string, 0, len(opts))
	for name := range opts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := opts[name]
		key := Canonical(name)
		switch key {
		case "connection_timeout":
			ms, ok := asInt(value)
			if !ok {
				return nil, fmt.Errorf("connection_timeout: want milliseconds, got %T", value)
			}
			q.Timeout = time.Duration(ms) * time.Millisecond
		case "body":
			inner, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("body: want an option map, got %T", value)
			}
			body, err := encodeBody(inner)
			if err != nil {
				return nil, err
			}
			q.Body = body
		default:
			enc, err := encodeValue(key, value)
			if err != nil {
				return nil, err
			}
			q.Values.Set(key, enc)
		}
	}
	return q, nil
}

// DecodeQuery reverses BuildQuery for the selection options: body fields
// and query parameters are merged into one option map with key-typed
// values JSON-decoded back to their original structure. Embedded engines
// use this to evaluate a wire query locally.
func DecodeQuery(q *Query) (map[string]any, error) {
	opts := make(map[string]any)
	for key := range q.Values {
		raw := q.Values.Get(key)
		opts[key] = decodeValue(key, raw)
	}
	if len(q.Body) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(q.Body, &fields); err != nil {
			return nil, fmt.Errorf("decode query body: %w", err)
		}
		for key, raw := range fields {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decode query body field %s: %w", key, err)
			}
			opts[key] = v
		}
	}
	return opts, nil
}

func encodeBody(opts map[string]any) ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(opts))
	for name, value := range opts {
		key := Canonical(name)
		if key == "body" {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode body option %s: %w", key, err)
		}
		fields[key] = raw
	}
	return json.Marshal(fields)
}

func encodeValue(key string, value any) (string, error) {
	if jsonOptions[key] {
		b, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("encode option %s: %w", key, err)
		}
		return string(b), nil
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case nil:
		return "", nil
	default:
		// Structured values of unrecognized options still travel as JSON.
		b, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("encode option %s: %w", key, err)
		}
		return string(b), nil
	}
}

func decodeValue(key, raw string) any {
	if jsonOptions[key] {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v
		}
		return raw
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return int(n)
	}
	return raw
}

func asInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
