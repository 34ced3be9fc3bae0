package bunview

import (
	"context"

	"github.com/kartikbazzad/bunview/wire"
)

// Transport issues view queries against an index server (or an embedded
// engine) and produces row streams. Connection management, retries and
// authentication are the transport's own business.
type Transport interface {
	// View resolves a handle for the named view of a design document.
	View(ctx context.Context, designDoc, name string) (ViewHandle, error)
}

// ViewHandle is a resolved view ready to be queried.
type ViewHandle interface {
	Query(ctx context.Context, q *wire.Query) (RowStream, error)
}

// RowStream is a pull cursor over raw view rows: Next advances, Row
// retrieves, Err reports the terminal error once Next has returned false.
// Rows arrive strictly in server-delivery order.
type RowStream interface {
	Next() bool
	Row() *wire.RawRow
	Err() error

	// TotalRows is the index total reported by the server, independent of
	// how many rows the stream actually delivers.
	TotalRows() int

	Close() error
}
