// Package bunview queries map/reduce views of a document database and
// decodes their result streams. A View pairs a transport with a view
// identity and offers eager, streaming and deferred result consumption.
package bunview

import (
	"context"

	"github.com/kartikbazzad/bunview/internal/deferred"
	"github.com/kartikbazzad/bunview/wire"
)

// ErrorObserver receives one call per error object embedded in a result
// stream, with the origin node and reason taken verbatim from the stream.
type ErrorObserver func(from, reason string)

// Option configures a View at construction.
type Option func(*View)

// WithWrapper substitutes the row wrapper used to decode raw rows.
func WithWrapper(w RowWrapper) Option {
	return func(v *View) { v.wrapper = w }
}

// WithDeferred puts the view in deferred-delivery mode: FetchAll buffers
// while streaming and hands the finished collection to its callback on ex.
func WithDeferred(ex *deferred.Executor) Option {
	return func(v *View) { v.deferred = ex }
}

// View executes queries against one view. A View is cheap and carries no
// state across fetches; concurrent fetches are as safe as the transport
// makes them.
type View struct {
	tr       Transport
	id       Identity
	defaults Params
	wrapper  RowWrapper
	observer ErrorObserver
	deferred *deferred.Executor
}

// NewView builds a view executor for the given endpoint. defaults are
// applied under every query's params; DefaultParams() is used when nil.
func NewView(tr Transport, endpoint string, defaults Params, opts ...Option) (*View, error) {
	if tr == nil {
		return nil, &ConfigError{Reason: "transport must be provided"}
	}
	id, err := ParseIdentity(endpoint)
	if err != nil {
		return nil, err
	}
	if defaults == nil {
		defaults = DefaultParams()
	}
	v := &View{tr: tr, id: id, defaults: defaults, wrapper: StdWrapper{}}
	for _, opt := range opts {
		opt(v)
	}
	if v.wrapper == nil {
		return nil, &ConfigError{Reason: "row wrapper must not be nil"}
	}
	return v, nil
}

// Identity returns the parsed (design document, view name) pair.
func (v *View) Identity() Identity { return v.id }

// OnError registers an error observer. With an observer in place a fetch
// keeps iterating past embedded error objects instead of aborting.
func (v *View) OnError(fn ErrorObserver) { v.observer = fn }

// Fetch runs the query and materializes every row, tagging the collection
// with the server-reported total.
func (v *View) Fetch(ctx context.Context, params Params) (*Rows, error) {
	stream, err := v.open(ctx, params)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return v.collect(stream)
}

// FetchEach streams rows to fn one at a time, in delivery order and
// without buffering: a slow fn back-pressures the pull loop directly.
// The final row is delivered with Last set.
func (v *View) FetchEach(ctx context.Context, params Params, fn func(*Row) error) error {
	if fn == nil {
		return &ConfigError{Reason: "FetchEach needs a row callback"}
	}
	stream, err := v.open(ctx, params)
	if err != nil {
		return err
	}
	defer stream.Close()
	return v.drain(stream, fn)
}

// First fetches with the limit forced to 1 and returns the single row, or
// nil when the view is empty.
func (v *View) First(ctx context.Context, params Params) (*Row, error) {
	rs, err := v.Take(ctx, 1, params)
	if err != nil {
		return nil, err
	}
	return rs.First(), nil
}

// Take fetches with the limit forced to n, returning up to n rows.
func (v *View) Take(ctx context.Context, n int, params Params) (*Rows, error) {
	return v.Fetch(ctx, params.merged(Params{"limit": n}))
}

// FetchAll materializes the full result set. In deferred mode the rows
// are buffered while streaming and the finished collection is handed to
// fn on the deferred executor once the last row has arrived; fn is
// mandatory there and the returned collection is nil. Without a deferred
// executor FetchAll degenerates to Fetch: fn is optional and, when
// given, invoked inline instead of a direct return.
func (v *View) FetchAll(ctx context.Context, params Params, fn func(*Rows, error)) (*Rows, error) {
	if v.deferred == nil {
		rs, err := v.Fetch(ctx, params)
		if fn != nil {
			fn(rs, err)
			return nil, nil
		}
		return rs, err
	}
	if fn == nil {
		return nil, &ConfigError{Reason: "FetchAll needs a callback in deferred mode"}
	}
	stream, err := v.open(ctx, params)
	if err != nil {
		return nil, err
	}
	rs, err := v.collect(stream)
	stream.Close()
	if subErr := v.deferred.Submit(func() { fn(rs, err) }); subErr != nil {
		return nil, subErr
	}
	return nil, nil
}

// open merges params over the view defaults, resolves the handle and
// submits the wire query.
func (v *View) open(ctx context.Context, params Params) (RowStream, error) {
	merged := v.defaults.merged(params)
	// quiet steers client-side document joins and is not a server option.
	delete(merged, "quiet")

	handle, err := v.tr.View(ctx, v.id.DesignDoc, v.id.Name)
	if err != nil {
		return nil, err
	}
	q, err := wire.BuildQuery(merged)
	if err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}
	return handle.Query(ctx, q)
}

func (v *View) collect(stream RowStream) (*Rows, error) {
	rs := &Rows{}
	err := v.drain(stream, func(r *Row) error {
		rs.Items = append(rs.Items, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	rs.TotalRows = stream.TotalRows()
	return rs, nil
}

// drain pulls raw rows, decodes them and hands them to fn. Flagging the
// final row needs one row of lookahead, so delivery trails the pull by
// exactly one row. Embedded error objects go to the observer when one is
// registered and abort the fetch otherwise; rows already delivered stay
// delivered either way.
func (v *View) drain(stream RowStream, fn func(*Row) error) error {
	var pending *Row
	for stream.Next() {
		raw := stream.Row()
		if raw.Kind == wire.KindError {
			if v.observer != nil {
				v.observer(raw.From, raw.Reason)
				continue
			}
			return &ViewError{From: raw.From, Reason: raw.Reason}
		}
		row, err := v.wrapper.Wrap(v.tr, raw)
		if err != nil {
			return err
		}
		if pending != nil {
			if err := fn(pending); err != nil {
				return err
			}
		}
		pending = row
	}
	if err := stream.Err(); err != nil {
		return err
	}
	if pending != nil {
		pending.Last = true
		return fn(pending)
	}
	return nil
}
