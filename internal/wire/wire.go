// Package wire defines the symmetric request/response schema the remote
// client and the server agree on: one tagged variant per datastore operation,
// serialized as newline-delimited JSON on a byte-stream connection. Payloads
// are self-describing and round-trip every value-model type losslessly,
// including full-precision UTC timestamps and every identifier instantiation.
package wire

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/braidstore/braid/pkg/graph"
)

// Op codes beyond the datastore contract: a whole-sequence transaction and a
// liveness probe.
const (
	OpTransaction graph.OpCode = "transaction"
	OpPing        graph.OpCode = "ping"
)

// Request is one serialized datastore call. For single operations the
// embedded Op carries the payload; for OpTransaction the Ops sequence does.
type Request[I graph.Id] struct {
	graph.Op[I]
	Ops []graph.Op[I] `json:"ops,omitempty"`
}

// Error carries an operational failure across the wire as a kind tag plus a
// human-readable message. The opaque cause does not survive the crossing; a
// remote failure is indistinguishable from a local one.
type Error struct {
	Kind    graph.ErrorKind `json:"kind"`
	Message string          `json:"message,omitempty"`
}

// FromError renders any operational error for the wire. Unclassified errors
// are reported as storage failures.
func FromError(err error) *Error {
	var oe *graph.Error
	if errors.As(err, &oe) {
		return &Error{Kind: oe.Kind, Message: oe.Error()}
	}
	return &Error{Kind: graph.ErrorStorage, Message: err.Error()}
}

// Err rebuilds the operational error a local backend would have produced.
func (e *Error) Err() error {
	return &graph.Error{Kind: e.Kind, Cause: errors.New(e.Message)}
}

// Response is the outcome of one request: either an error, or the embedded
// single-operation result, or the per-op results of a transaction.
type Response[I graph.Id] struct {
	graph.OpResult[I]
	Results []graph.OpResult[I] `json:"results,omitempty"`
	Error   *Error              `json:"error,omitempty"`
}

// ErrResponse builds a failure response.
func ErrResponse[I graph.Id](err error) Response[I] {
	return Response[I]{Error: FromError(err)}
}

// OkResponse builds a success response around one op result.
func OkResponse[I graph.Id](res graph.OpResult[I]) Response[I] {
	return Response[I]{OpResult: res}
}

// Conn frames requests and responses on a byte stream. Each payload is one
// JSON value terminated by a newline; the json decoder makes the framing
// unambiguous in both directions.
type Conn[I graph.Id] struct {
	rwc io.ReadWriteCloser
	enc *json.Encoder
	dec *json.Decoder
}

// NewConn wraps a connection with the wire codec.
func NewConn[I graph.Id](rwc io.ReadWriteCloser) *Conn[I] {
	return &Conn[I]{
		rwc: rwc,
		enc: json.NewEncoder(rwc),
		dec: json.NewDecoder(rwc),
	}
}

// ReadRequest decodes the next request. io.EOF reports an orderly peer close.
func (c *Conn[I]) ReadRequest() (*Request[I], error) {
	var req Request[I]
	if err := c.dec.Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// WriteRequest encodes one request.
func (c *Conn[I]) WriteRequest(req *Request[I]) error {
	return c.enc.Encode(req)
}

// ReadResponse decodes the next response.
func (c *Conn[I]) ReadResponse() (*Response[I], error) {
	var resp Response[I]
	if err := c.dec.Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WriteResponse encodes one response.
func (c *Conn[I]) WriteResponse(resp *Response[I]) error {
	return c.enc.Encode(resp)
}

// Close closes the underlying connection.
func (c *Conn[I]) Close() error {
	return c.rwc.Close()
}
