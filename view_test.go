package bunview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kartikbazzad/bunview/internal/deferred"
	"github.com/kartikbazzad/bunview/wire"
)

type fakeStream struct {
	rows   []*wire.RawRow
	total  int
	err    error
	i      int
	closed bool
}

func (s *fakeStream) Next() bool {
	if s.i >= len(s.rows) {
		return false
	}
	s.i++
	return true
}

func (s *fakeStream) Row() *wire.RawRow { return s.rows[s.i-1] }
func (s *fakeStream) Err() error        { return s.err }
func (s *fakeStream) TotalRows() int    { return s.total }
func (s *fakeStream) Close() error      { s.closed = true; return nil }

type fakeTransport struct {
	stream    *fakeStream
	lastQuery *wire.Query
	viewErr   error
}

func (tr *fakeTransport) View(ctx context.Context, designDoc, name string) (ViewHandle, error) {
	if tr.viewErr != nil {
		return nil, tr.viewErr
	}
	return &fakeHandle{tr: tr}, nil
}

type fakeHandle struct{ tr *fakeTransport }

func (h *fakeHandle) Query(ctx context.Context, q *wire.Query) (RowStream, error) {
	h.tr.lastQuery = q
	return h.tr.stream, nil
}

func plainRows(n int) []*wire.RawRow {
	rows := make([]*wire.RawRow, n)
	for i := range rows {
		rows[i] = &wire.RawRow{
			Kind:  wire.KindRow,
			ID:    fmt.Sprintf("doc-%d", i),
			Key:   fmt.Sprintf("k%d", i),
			Value: json.RawMessage(`1`),
		}
	}
	return rows
}

func newTestView(t *testing.T, tr *fakeTransport, opts ...Option) *View {
	t.Helper()
	v, err := NewView(tr, "blog/_view/recent", nil, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestFetchAttachesServerTotal(t *testing.T) {
	tr := &fakeTransport{stream: &fakeStream{rows: plainRows(3), total: 500}}
	v := newTestView(t, tr)

	rs, err := v.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != 3 {
		t.Fatalf("len = %d, want 3", rs.Len())
	}
	if rs.TotalRows != 500 {
		t.Errorf("TotalRows = %d, want the transport-reported 500", rs.TotalRows)
	}
	for i, row := range rs.Items {
		wantLast := i == 2
		if row.Last != wantLast {
			t.Errorf("row %d: Last = %v, want %v", i, row.Last, wantLast)
		}
	}
	if !tr.stream.closed {
		t.Error("stream left open")
	}
}

func TestFetchEachFlagsOnlyFinalRow(t *testing.T) {
	const n = 4
	tr := &fakeTransport{stream: &fakeStream{rows: plainRows(n), total: n}}
	v := newTestView(t, tr)

	var seen []bool
	err := v.FetchEach(context.Background(), nil, func(r *Row) error {
		seen = append(seen, r.Last)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != n {
		t.Fatalf("callback ran %d times, want %d", len(seen), n)
	}
	for i, last := range seen {
		if last != (i == n-1) {
			t.Errorf("row %d: Last = %v", i, last)
		}
	}
}

func TestFetchEachNeedsCallback(t *testing.T) {
	v := newTestView(t, &fakeTransport{stream: &fakeStream{}})
	err := v.FetchEach(context.Background(), nil, nil)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v, want *ConfigError", err)
	}
}

func TestFetchEachCallbackErrorStopsPull(t *testing.T) {
	tr := &fakeTransport{stream: &fakeStream{rows: plainRows(5), total: 5}}
	v := newTestView(t, tr)

	boom := errors.New("boom")
	calls := 0
	err := v.FetchEach(context.Background(), nil, func(r *Row) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want the callback error", err)
	}
	if calls != 2 {
		t.Errorf("callback ran %d times after failing, want 2", calls)
	}
}

func TestStreamErrorPropagates(t *testing.T) {
	tr := &fakeTransport{stream: &fakeStream{rows: plainRows(2), err: errors.New("connection reset")}}
	v := newTestView(t, tr)
	if _, err := v.Fetch(context.Background(), nil); err == nil {
		t.Fatal("terminal stream error must propagate")
	}
}

func TestEmbeddedErrorWithoutObserver(t *testing.T) {
	rows := plainRows(2)
	rows = append(rows, &wire.RawRow{Kind: wire.KindError, From: "node-2:8092", Reason: "timeout"})
	tr := &fakeTransport{stream: &fakeStream{rows: rows, total: 2}}
	v := newTestView(t, tr)

	_, err := v.Fetch(context.Background(), nil)
	var viewErr *ViewError
	if !errors.As(err, &viewErr) {
		t.Fatalf("got %v, want *ViewError", err)
	}
	if viewErr.From != "node-2:8092" || viewErr.Reason != "timeout" {
		t.Errorf("error carries (%q, %q), want the verbatim origin and reason", viewErr.From, viewErr.Reason)
	}
}

func TestEmbeddedErrorWithObserver(t *testing.T) {
	rows := plainRows(2)
	rows = append(rows, &wire.RawRow{Kind: wire.KindError, From: "node-2:8092", Reason: "timeout"})
	rows = append(rows, plainRows(1)...)
	tr := &fakeTransport{stream: &fakeStream{rows: rows, total: 3}}
	v := newTestView(t, tr)

	var observed [][2]string
	v.OnError(func(from, reason string) {
		observed = append(observed, [2]string{from, reason})
	})

	rs, err := v.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != 3 {
		t.Errorf("len = %d, want all non-error rows", rs.Len())
	}
	if len(observed) != 1 {
		t.Fatalf("observer ran %d times, want exactly once", len(observed))
	}
	if observed[0] != [2]string{"node-2:8092", "timeout"} {
		t.Errorf("observer got %v", observed[0])
	}
}

func TestFirstForcesLimitOne(t *testing.T) {
	tr := &fakeTransport{stream: &fakeStream{rows: plainRows(1), total: 9}}
	v := newTestView(t, tr)

	row, err := v.First(context.Background(), Params{"limit": 50})
	if err != nil {
		t.Fatal(err)
	}
	if row == nil || row.ID != "doc-0" {
		t.Fatalf("row = %+v", row)
	}
	if got := tr.lastQuery.Values.Get("limit"); got != "1" {
		t.Errorf("limit on the wire = %q, want forced 1", got)
	}
}

func TestFirstEmptyView(t *testing.T) {
	tr := &fakeTransport{stream: &fakeStream{}}
	v := newTestView(t, tr)
	row, err := v.First(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if row != nil {
		t.Errorf("row = %+v, want nil for an empty view", row)
	}
}

func TestTakeForcesLimit(t *testing.T) {
	tr := &fakeTransport{stream: &fakeStream{rows: plainRows(2), total: 100}}
	v := newTestView(t, tr)

	rs, err := v.Take(context.Background(), 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != 2 {
		t.Errorf("len = %d, want 2", rs.Len())
	}
	if got := tr.lastQuery.Values.Get("limit"); got != "2" {
		t.Errorf("limit on the wire = %q, want 2", got)
	}
}

func TestParamMerging(t *testing.T) {
	tr := &fakeTransport{stream: &fakeStream{}}
	v, err := NewView(tr, "blog/_view/recent", Params{"stale": "ok", "limit": 10})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Fetch(context.Background(), Params{"limit": 3}); err != nil {
		t.Fatal(err)
	}
	if got := tr.lastQuery.Values.Get("limit"); got != "3" {
		t.Errorf("caller limit lost: %q", got)
	}
	if got := tr.lastQuery.Values.Get("stale"); got != "ok" {
		t.Errorf("default stale lost: %q", got)
	}
}

func TestQuietStaysOffTheWire(t *testing.T) {
	tr := &fakeTransport{stream: &fakeStream{}}
	v := newTestView(t, tr)
	if _, err := v.Fetch(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if tr.lastQuery.Values.Has("quiet") {
		t.Error("quiet is a client-side option and must not reach the server")
	}
	if got := tr.lastQuery.Values.Get("stale"); got != "update_after" {
		t.Errorf("default stale = %q, want update_after", got)
	}
}

func TestFetchAllSynchronous(t *testing.T) {
	tr := &fakeTransport{stream: &fakeStream{rows: plainRows(2), total: 2}}
	v := newTestView(t, tr)

	rs, err := v.FetchAll(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rs == nil || rs.Len() != 2 {
		t.Fatalf("rs = %+v, want the collection returned directly", rs)
	}

	tr.stream = &fakeStream{rows: plainRows(2), total: 2}
	var inline *Rows
	if _, err := v.FetchAll(context.Background(), nil, func(got *Rows, err error) {
		inline = got
	}); err != nil {
		t.Fatal(err)
	}
	if inline == nil || inline.Len() != 2 {
		t.Fatalf("callback got %+v", inline)
	}
}

func TestFetchAllDeferred(t *testing.T) {
	ex, err := deferred.New(1)
	if err != nil {
		t.Fatal(err)
	}
	defer ex.Release()

	tr := &fakeTransport{stream: &fakeStream{rows: plainRows(3), total: 3}}
	v := newTestView(t, tr, WithDeferred(ex))

	var wg sync.WaitGroup
	wg.Add(1)
	var delivered *Rows
	rs, err := v.FetchAll(context.Background(), nil, func(got *Rows, err error) {
		defer wg.Done()
		if err != nil {
			t.Error(err)
			return
		}
		delivered = got
	})
	if err != nil {
		t.Fatal(err)
	}
	if rs != nil {
		t.Error("deferred FetchAll must not also return the collection")
	}
	wg.Wait()
	if delivered == nil || delivered.Len() != 3 {
		t.Fatalf("delivered = %+v", delivered)
	}
	if !delivered.Items[2].Last {
		t.Error("final buffered row must carry the last flag")
	}
}

func TestFetchAllDeferredNeedsCallback(t *testing.T) {
	ex, err := deferred.New(1)
	if err != nil {
		t.Fatal(err)
	}
	defer ex.Release()

	v := newTestView(t, &fakeTransport{stream: &fakeStream{}}, WithDeferred(ex))
	_, err = v.FetchAll(context.Background(), nil, nil)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v, want *ConfigError before any query is issued", err)
	}
}

func TestNewViewValidation(t *testing.T) {
	if _, err := NewView(nil, "blog/_view/recent", nil); err == nil {
		t.Error("nil transport accepted")
	}
	if _, err := NewView(&fakeTransport{}, "nonsense", nil); err == nil {
		t.Error("bad endpoint accepted")
	}
	if _, err := NewView(&fakeTransport{}, "blog/_view/recent", nil, WithWrapper(nil)); err == nil {
		t.Error("nil wrapper accepted")
	}
}

type upperWrapper struct{}

func (upperWrapper) Wrap(tr Transport, raw *wire.RawRow) (*Row, error) {
	row, err := StdWrapper{}.Wrap(tr, raw)
	if err != nil {
		return nil, err
	}
	row.Set("wrapped", true)
	return row, nil
}

func TestCustomWrapper(t *testing.T) {
	tr := &fakeTransport{stream: &fakeStream{rows: plainRows(1), total: 1}}
	v := newTestView(t, tr, WithWrapper(upperWrapper{}))

	rs, err := v.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := rs.First().Get("wrapped"); got != true {
		t.Errorf("custom wrapper bypassed: %v", got)
	}
}
