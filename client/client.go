// Package client is the HTTP transport for querying views of a
// couch-style document database. It implements bunview.Transport and
// streams result rows incrementally instead of buffering whole responses.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kartikbazzad/bunview"
	"github.com/kartikbazzad/bunview/ddoc"
	"github.com/kartikbazzad/bunview/internal/logger"
	"github.com/kartikbazzad/bunview/wire"
)

// Config holds the connection settings for one bucket.
type Config struct {
	BaseURL  string // e.g. "http://127.0.0.1:8092"
	Bucket   string
	Username string
	Password string

	// InsecureSkipVerify disables TLS certificate verification. For
	// development setups only.
	InsecureSkipVerify bool

	// HTTPClient overrides the built-in client when set.
	HTTPClient *http.Client
}

// Client talks to the view REST API of one bucket. It implements
// bunview.Transport.
type Client struct {
	baseURL  string
	bucket   string
	username string
	password string
	http     *http.Client
	log      interface {
		Debug(msg string, args ...any)
		Error(msg string, args ...any)
	}
}

// New creates a client. The per-query connection_timeout option governs
// request deadlines, so the underlying http.Client carries none itself.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("client: base URL must be provided")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("client: bucket must be provided")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		transport := http.DefaultTransport
		if cfg.InsecureSkipVerify {
			transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
		hc = &http.Client{Transport: transport}
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		bucket:   cfg.Bucket,
		username: cfg.Username,
		password: cfg.Password,
		http:     hc,
		log:      logger.Component("client"),
	}, nil
}

// View implements bunview.Transport.
func (c *Client) View(ctx context.Context, designDoc, name string) (bunview.ViewHandle, error) {
	path := fmt.Sprintf("/%s/_design/%s/_view/%s",
		url.PathEscape(c.bucket), url.PathEscape(designDoc), url.PathEscape(name))
	return &viewHandle{client: c, designDoc: designDoc, view: name, path: path}, nil
}

// SpatialView resolves a handle for a geometry-indexed view.
func (c *Client) SpatialView(designDoc, name string) bunview.ViewHandle {
	path := fmt.Sprintf("/%s/_design/%s/_spatial/%s",
		url.PathEscape(c.bucket), url.PathEscape(designDoc), url.PathEscape(name))
	return &viewHandle{client: c, designDoc: designDoc, view: name, path: path}
}

type viewHandle struct {
	client    *Client
	designDoc string
	view      string
	path      string
}

func (h *viewHandle) Query(ctx context.Context, q *wire.Query) (bunview.RowStream, error) {
	method := http.MethodGet
	var body io.Reader
	if len(q.Body) > 0 {
		method = http.MethodPost
		body = bytes.NewReader(q.Body)
	}

	u := h.client.baseURL + h.path
	if enc := q.Values.Encode(); enc != "" {
		u += "?" + enc
	}

	timeout := q.Timeout
	if timeout <= 0 {
		timeout = wire.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if h.client.username != "" {
		req.SetBasicAuth(h.client.username, h.client.password)
	}

	start := time.Now()
	resp, err := h.client.http.Do(req)
	if err != nil {
		cancel()
		requestsTotal.WithLabelValues(h.designDoc, h.view, "error").Inc()
		return nil, err
	}
	requestDuration.WithLabelValues(h.designDoc, h.view).Observe(time.Since(start).Seconds())
	requestsTotal.WithLabelValues(h.designDoc, h.view, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		defer cancel()
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		errType, reason := wire.ParseErrorBody(payload)
		h.client.log.Error("view query failed",
			"design_doc", h.designDoc, "view", h.view,
			"status", resp.StatusCode, "error", errType, "reason", reason)
		return nil, &Error{StatusCode: resp.StatusCode, ErrorType: errType, Reason: reason}
	}

	h.client.log.Debug("view query", "design_doc", h.designDoc, "view", h.view, "method", method)
	return newRowStream(resp.Body, cancel), nil
}

// PutDesignDoc validates and publishes a design document. The document's
// ID must carry the "_design/" prefix.
func (c *Client) PutDesignDoc(ctx context.Context, d *ddoc.DesignDoc) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return c.doRequest(ctx, http.MethodPut, c.docPath(d.ID), d, nil)
}

// GetDesignDoc fetches a design document by its full ID.
func (c *Client) GetDesignDoc(ctx context.Context, id string) (*ddoc.DesignDoc, error) {
	var d ddoc.DesignDoc
	if err := c.doRequest(ctx, http.MethodGet, c.docPath(id), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDesignDoc removes a design document at the given revision.
func (c *Client) DeleteDesignDoc(ctx context.Context, id, rev string) error {
	path := c.docPath(id) + "?rev=" + url.QueryEscape(rev)
	return c.doRequest(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) docPath(id string) string {
	// _design/<name> keeps its slash un-escaped on the wire.
	escaped := url.PathEscape(id)
	if len(id) > len("_design/") && id[:len("_design/")] == "_design/" {
		escaped = "_design/" + url.PathEscape(id[len("_design/"):])
	}
	return fmt.Sprintf("/%s/%s", url.PathEscape(c.bucket), escaped)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		errType, reason := wire.ParseErrorBody(payload)
		c.log.Error("request failed", "method", method, "path", path, "status", resp.StatusCode)
		return &Error{StatusCode: resp.StatusCode, ErrorType: errType, Reason: reason}
	}
	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}
