// Package server hosts the raw TCP listener every peer accepts maintenance
// and lookup connections on. The constructor/functional-option/lifecycle
// shape (New/Start/Stop/GracefulStop) is carried over from the teacher's
// gRPC-backed server; the transport underneath is a plain net.Listener
// because the wire protocol is a fixed binary header, not gRPC framing.
package server

import (
	"fmt"
	"net"
	"sync"

	"chordring/internal/logger"
	"chordring/internal/ringid"
	"chordring/internal/ringstate"
	"chordring/internal/wire"
)

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger attaches lgr to the server.
func WithLogger(lgr logger.Logger) Option {
	return func(s *Server) { s.lgr = lgr }
}

// Server accepts connections and dispatches each one's single request to
// the ring state per §4.5's handler table.
type Server struct {
	listener net.Listener
	state    *ringstate.State
	codec    wire.Codec
	lgr      logger.Logger

	wg       sync.WaitGroup
	closed   chan struct{}
	closeOne sync.Once
}

// New builds a Server bound to lis, dispatching inbound requests against
// state.
func New(lis net.Listener, state *ringstate.State, sp ringid.Space, opts ...Option) *Server {
	s := &Server{
		listener: lis,
		state:    state,
		codec:    wire.NewCodec(sp),
		lgr:      &logger.NopLogger{},
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start accepts connections until Stop is called, handling each on its own
// goroutine. It blocks until the listener is closed, then waits for
// in-flight handlers to finish and returns nil.
func (s *Server) Start() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("server: accept: %w", err)
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Stop closes the listener immediately. In-flight handlers are not waited
// on; use GracefulStop for that.
func (s *Server) Stop() {
	s.closeOne.Do(func() { close(s.closed) })
	s.listener.Close()
}

// GracefulStop closes the listener and waits for every in-flight request
// handler to finish.
func (s *Server) GracefulStop() {
	s.Stop()
	s.wg.Wait()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	headerBuf := make([]byte, wire.HeaderLen)
	if _, err := readFull(conn, headerBuf); err != nil {
		return
	}
	h, err := wire.DecodeHeader(headerBuf)
	if err != nil {
		s.lgr.Warn("server: framing error, closing connection", logger.F("err", err))
		return
	}

	var body []byte
	if h.PayloadLen > 0 {
		body = make([]byte, h.PayloadLen)
		if _, err := readFull(conn, body); err != nil {
			s.lgr.Warn("server: short body, closing connection", logger.F("err", err))
			return
		}
	}

	resp := s.dispatch(h.Type, body)
	if resp != nil {
		conn.Write(resp)
	}
}

// dispatch implements the handler table from §4.5. It never mutates state
// on a framing error — by construction, handleConn already closed the
// connection before reaching here in that case.
func (s *Server) dispatch(typ wire.Type, body []byte) []byte {
	switch typ {
	case wire.TypePing:
		return s.codec.Frame(wire.TypePing, nil)

	case wire.TypeFindSuccessor:
		target, err := s.codec.DecodeFindSuccessor(body)
		if err != nil {
			s.lgr.Warn("server: bad FIND_SUCCESSOR body", logger.F("err", err))
			return nil
		}
		next := s.state.FindSuccessorNextHop(target)
		return s.codec.EncodeDescriptorMessage(wire.TypeFindSuccessorResponse, next)

	case wire.TypeGetPredecessor:
		pred, valid := s.state.Predecessor()
		return s.codec.EncodeGetPredecessorResponse(pred, valid)

	case wire.TypeNotify:
		n, err := s.codec.DecodeDescriptor(body)
		if err != nil {
			s.lgr.Warn("server: bad NOTIFY body", logger.F("err", err))
			return nil
		}
		s.state.HandleNotify(n)
		return nil

	case wire.TypeGetSucList:
		return s.codec.EncodeSucListResponse(s.state.SuccessorList())

	case wire.TypeGetCert:
		return s.codec.EncodeCertResponse(s.state.Cert())

	case wire.TypeSetSuccessor:
		n, err := s.codec.DecodeDescriptor(body)
		if err != nil {
			s.lgr.Warn("server: bad SET_SUCCESSOR body", logger.F("err", err))
			return nil
		}
		s.state.SetSuccessor(n)
		return nil

	case wire.TypeSetPredecessor:
		n, err := s.codec.DecodeDescriptor(body)
		if err != nil {
			s.lgr.Warn("server: bad SET_PREDECESSOR body", logger.F("err", err))
			return nil
		}
		s.state.HandleSetPredecessor(n)
		return nil

	default:
		s.lgr.Warn("server: unrecognized message type, ignoring", logger.F("type", typ))
		return nil
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
