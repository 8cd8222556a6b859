// Package rpcclient issues one-shot RPCs to overlay peers: dial, write one
// framed request, optionally read one framed response, close. There is no
// connection pooling — the maintenance tick's timeouts are short enough
// (200ms-1s) that a fresh TCP handshake per call is the simpler, more
// robust choice, and it sidesteps the half-open-connection bookkeeping a
// pool would need under constant churn.
package rpcclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"chordring/internal/ringid"
	"chordring/internal/telemetry/lookuptrace"
	"chordring/internal/wire"
)

// ErrLookupExceededMaxHops is returned by Lookup when the linear walk does
// not converge within the configured hop budget — a sign of a broken or
// looping ring rather than a transient failure.
var ErrLookupExceededMaxHops = errors.New("rpcclient: lookup exceeded max hops")

// ErrNoResponse is returned by calls that expect a response but the peer
// closed the connection before sending one.
var ErrNoResponse = errors.New("rpcclient: peer closed connection without responding")

// Client issues RPCs against a fixed identifier space.
type Client struct {
	codec   wire.Codec
	dialer  net.Dialer
}

// New builds a Client for the given identifier space.
func New(sp ringid.Space) *Client {
	return &Client{codec: wire.NewCodec(sp)}
}

// call dials addr, writes request, and — if wantResponse — reads back a
// header plus its body. ctx's deadline bounds the whole exchange.
func (c *Client) call(ctx context.Context, addr string, request []byte, wantResponse bool) (wire.Header, []byte, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return wire.Header{}, nil, fmt.Errorf("rpcclient: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(request); err != nil {
		return wire.Header{}, nil, fmt.Errorf("rpcclient: write to %s: %w", addr, err)
	}
	if !wantResponse {
		return wire.Header{}, nil, nil
	}

	r := bufio.NewReader(conn)
	headerBuf := make([]byte, wire.HeaderLen)
	if _, err := ioReadFull(r, headerBuf); err != nil {
		return wire.Header{}, nil, fmt.Errorf("%w: %s: %v", ErrNoResponse, addr, err)
	}
	h, err := wire.DecodeHeader(headerBuf)
	if err != nil {
		return wire.Header{}, nil, fmt.Errorf("rpcclient: response from %s: %w", addr, err)
	}

	if h.PayloadLen == 0 {
		return h, nil, nil
	}
	bodyLen := int(h.PayloadLen)
	if exp := c.codec.ExpectedBodyLen(h.Type); exp >= 0 && exp < bodyLen {
		bodyLen = exp
	}
	body := make([]byte, bodyLen)
	if _, err := ioReadFull(r, body); err != nil {
		return wire.Header{}, nil, fmt.Errorf("rpcclient: short body from %s: %w", addr, err)
	}
	return h, body, nil
}

// ioReadFull reads from r until buf is full or a read fails, returning the
// number of bytes read and the first error.
func ioReadFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Ping sends PING and waits for the echoed (empty) header.
func (c *Client) Ping(ctx context.Context, addr string) error {
	_, _, err := c.call(ctx, addr, c.codec.EncodePing(), true)
	return err
}

// FindSuccessor sends FIND_SUCCESSOR(target) and returns the responder's
// answer, per §4.2: always a NodeDescriptor, never empty.
func (c *Client) FindSuccessor(ctx context.Context, addr string, target ringid.ID) (ringid.NodeDescriptor, error) {
	h, body, err := c.call(ctx, addr, c.codec.EncodeFindSuccessor(target), true)
	if err != nil {
		return ringid.NodeDescriptor{}, err
	}
	if h.Type != wire.TypeFindSuccessorResponse {
		return ringid.NodeDescriptor{}, fmt.Errorf("rpcclient: unexpected response type %v to FIND_SUCCESSOR", h.Type)
	}
	return c.codec.DecodeDescriptor(body)
}

// GetPredecessor sends GET_PREDECESSOR and returns the responder's
// predecessor, or valid=false if the responder reported none.
func (c *Client) GetPredecessor(ctx context.Context, addr string) (n ringid.NodeDescriptor, valid bool, err error) {
	h, body, err := c.call(ctx, addr, c.codec.EncodeEmpty(wire.TypeGetPredecessor), true)
	if err != nil {
		return ringid.NodeDescriptor{}, false, err
	}
	if h.Type != wire.TypeGetPredecessorResponse {
		return ringid.NodeDescriptor{}, false, fmt.Errorf("rpcclient: unexpected response type %v to GET_PREDECESSOR", h.Type)
	}
	return c.codec.DecodeGetPredecessorResponse(body)
}

// GetSuccessorList sends GET_SUCLIST and returns the responder's successor
// list, always of the responder's configured length L.
func (c *Client) GetSuccessorList(ctx context.Context, addr string) ([]ringid.NodeDescriptor, error) {
	h, body, err := c.call(ctx, addr, c.codec.EncodeEmpty(wire.TypeGetSucList), true)
	if err != nil {
		return nil, err
	}
	if h.Type != wire.TypeGetSucListResponse {
		return nil, fmt.Errorf("rpcclient: unexpected response type %v to GET_SUCLIST", h.Type)
	}
	return c.codec.DecodeSucListResponse(body)
}

// GetCert sends GET_CERT and returns the responder's attached blob.
func (c *Client) GetCert(ctx context.Context, addr string) ([]byte, error) {
	h, body, err := c.call(ctx, addr, c.codec.EncodeEmpty(wire.TypeGetCert), true)
	if err != nil {
		return nil, err
	}
	if h.Type != wire.TypeCertResponse {
		return nil, fmt.Errorf("rpcclient: unexpected response type %v to GET_CERT", h.Type)
	}
	return c.codec.DecodeCertResponse(body)
}

// Notify sends NOTIFY(self) fire-and-forget: no response is read.
func (c *Client) Notify(ctx context.Context, addr string, self ringid.NodeDescriptor) error {
	_, _, err := c.call(ctx, addr, c.codec.EncodeDescriptorMessage(wire.TypeNotify, self), false)
	return err
}

// SetSuccessor sends SET_SUCCESSOR(x) fire-and-forget, used during a
// graceful-leave hand-off.
func (c *Client) SetSuccessor(ctx context.Context, addr string, x ringid.NodeDescriptor) error {
	_, _, err := c.call(ctx, addr, c.codec.EncodeDescriptorMessage(wire.TypeSetSuccessor, x), false)
	return err
}

// SetPredecessor sends SET_PREDECESSOR(x) fire-and-forget, used during a
// graceful-leave hand-off.
func (c *Client) SetPredecessor(ctx context.Context, addr string, x ringid.NodeDescriptor) error {
	_, _, err := c.call(ctx, addr, c.codec.EncodeDescriptorMessage(wire.TypeSetPredecessor, x), false)
	return err
}

// Lookup resolves target starting from startAddr by walking the ring one
// hop at a time, per §4.4's note that find_successor_next_hop always
// forwards to the responder's own successor: each hop is asked in turn
// until a hop returns itself (the alone/responsible case) or repeats the
// previous hop's descriptor (the walk has converged on the owning node).
// perHopTimeout bounds each individual FIND_SUCCESSOR call.
func (c *Client) Lookup(ctx context.Context, startAddr string, target ringid.ID, perHopTimeout time.Duration, maxHops int) (ringid.NodeDescriptor, int, error) {
	lookupCtx, span := lookuptrace.StartLookup(ctx, target, startAddr)
	result, hops, err := c.lookup(lookupCtx, startAddr, target, perHopTimeout, maxHops)
	lookuptrace.EndLookup(span, result, hops, err)
	return result, hops, err
}

func (c *Client) lookup(ctx context.Context, startAddr string, target ringid.ID, perHopTimeout time.Duration, maxHops int) (ringid.NodeDescriptor, int, error) {
	addr := startAddr
	var last ringid.NodeDescriptor
	for hop := 0; hop < maxHops; hop++ {
		hopCtx, hopSpan := lookuptrace.StartHop(ctx, hop, addr)
		callCtx, cancel := context.WithTimeout(hopCtx, perHopTimeout)
		next, err := c.FindSuccessor(callCtx, addr, target)
		cancel()
		hopSpan.End()
		if err != nil {
			return ringid.NodeDescriptor{}, hop, fmt.Errorf("rpcclient: lookup hop %d (%s): %w", hop, addr, err)
		}
		if next.Addr() == addr {
			return next, hop + 1, nil
		}
		if hop > 0 && next.Equal(last) {
			return next, hop + 1, nil
		}
		last = next
		addr = next.Addr()
	}
	return ringid.NodeDescriptor{}, maxHops, ErrLookupExceededMaxHops
}

// WithTimeout is a small convenience around context.WithTimeout, kept here
// so call sites in the maintenance loop read as "rpcclient.WithTimeout(...)"
// rather than importing "context" just for this one idiom.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}
