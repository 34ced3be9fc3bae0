package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/kartikbazzad/bunview/wire"
)

// rawRowJSON is the JSON shape of one element of the "rows" or "errors"
// arrays.
type rawRowJSON struct {
	ID       string          `json:"id"`
	Key      any             `json:"key"`
	Value    json.RawMessage `json:"value"`
	Doc      json.RawMessage `json:"doc"`
	Geometry json.RawMessage `json:"geometry"`
	Bbox     []float64       `json:"bbox"`
	From     string          `json:"from"`
	Reason   string          `json:"reason"`
}

// rowStream walks the response object token by token, yielding one row
// per Next call without ever holding the full payload in memory. It
// consumes both the "rows" and "errors" arrays in server order and picks
// up "total_rows" wherever it appears in the object.
type rowStream struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	dec    *json.Decoder

	total    int
	cur      *wire.RawRow
	err      error
	inArray  bool
	errArray bool
	started  bool
	done     bool
	closed   bool
}

func newRowStream(body io.ReadCloser, cancel context.CancelFunc) *rowStream {
	return &rowStream{
		body:   body,
		cancel: cancel,
		dec:    json.NewDecoder(body),
	}
}

func (s *rowStream) Next() bool {
	if s.err != nil || s.done || s.closed {
		return false
	}
	for {
		if s.inArray {
			if s.dec.More() {
				var rj rawRowJSON
				if err := s.dec.Decode(&rj); err != nil {
					return s.fail(err)
				}
				s.cur = convertRow(&rj, s.errArray)
				rowsTotal.Inc()
				return true
			}
			if _, err := s.dec.Token(); err != nil { // closing ']'
				return s.fail(err)
			}
			s.inArray = false
			continue
		}

		tok, err := s.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) && s.started {
				s.done = true
				return false
			}
			return s.fail(err)
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{':
				s.started = true
			case '}':
				s.done = true
				return false
			}
		case string:
			switch t {
			case "total_rows":
				val, err := s.dec.Token()
				if err != nil {
					return s.fail(err)
				}
				if n, ok := val.(float64); ok {
					s.total = int(n)
				}
			case "rows", "errors":
				open, err := s.dec.Token()
				if err != nil {
					return s.fail(err)
				}
				if d, ok := open.(json.Delim); ok && d == '[' {
					s.inArray = true
					s.errArray = t == "errors"
				}
			default:
				// Forward-compatibility: skip fields this client does
				// not know about.
				var skip json.RawMessage
				if err := s.dec.Decode(&skip); err != nil {
					return s.fail(err)
				}
			}
		}
	}
}

func (s *rowStream) fail(err error) bool {
	s.err = err
	return false
}

func (s *rowStream) Row() *wire.RawRow { return s.cur }

func (s *rowStream) Err() error { return s.err }

func (s *rowStream) TotalRows() int { return s.total }

func (s *rowStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.cancel()
	return s.body.Close()
}

// convertRow normalizes one array element into a wire row. Joined
// documents arrive as {"meta": {...}, "json": {...}} and are split into
// the document body and its metadata.
func convertRow(rj *rawRowJSON, isErr bool) *wire.RawRow {
	raw := &wire.RawRow{
		ID:       rj.ID,
		Key:      rj.Key,
		Value:    rj.Value,
		Geometry: rj.Geometry,
		Bbox:     rj.Bbox,
		From:     rj.From,
		Reason:   rj.Reason,
	}
	if isErr {
		raw.Kind = wire.KindError
		return raw
	}
	if len(rj.Doc) > 0 {
		var doc map[string]any
		if err := json.Unmarshal(rj.Doc, &doc); err == nil && doc != nil {
			if inner, ok := doc["json"].(map[string]any); ok {
				raw.Doc = inner
				if meta, ok := doc["meta"].(map[string]any); ok {
					raw.Meta = meta
				}
			} else {
				raw.Doc = doc
			}
		}
	}
	raw.Kind = raw.InferKind()
	return raw
}
