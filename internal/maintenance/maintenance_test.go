package maintenance

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"chordring/internal/ringid"
	"chordring/internal/ringstate"
	"chordring/internal/rpcclient"
	"chordring/internal/wire"
)

// peerServer answers every connection with exactly one request/response
// pair, using respond to build the reply bytes (nil means send nothing).
// It keeps running, accepting connections, until the test ends.
func peerServer(t *testing.T, respond func(h wire.Header, body []byte) []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				headerBuf := make([]byte, wire.HeaderLen)
				if _, err := readFullConn(conn, headerBuf); err != nil {
					return
				}
				h, err := wire.DecodeHeader(headerBuf)
				if err != nil {
					return
				}
				body := make([]byte, h.PayloadLen)
				if h.PayloadLen > 0 {
					if _, err := readFullConn(conn, body); err != nil {
						return
					}
				}
				if out := respond(h, body); out != nil {
					conn.Write(out)
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func readFullConn(conn net.Conn, buf []byte) (int, error) {
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

func testSpace(t *testing.T) ringid.Space {
	t.Helper()
	sp, err := ringid.NewSpace(160)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return sp
}

func descAt(t *testing.T, sp ringid.Space, tag byte, addr string) ringid.NodeDescriptor {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	ip, err := ringid.IPFromString(host)
	if err != nil {
		t.Fatalf("IPFromString: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return ringid.NodeDescriptor{ID: sp.FromBytes([]byte{tag}), IP: ip, Port: uint16(port)}
}

func baseConfig() Config {
	return Config{
		StabilizeInterval:     20 * time.Millisecond,
		JoinRetryInterval:     20 * time.Millisecond,
		RPCTimeoutMaintenance: 200 * time.Millisecond,
		RPCTimeoutJoin:        500 * time.Millisecond,
		RPCTimeoutCert:        500 * time.Millisecond,
	}
}

func TestStabilizeTickPromotesPredecessorWhenAlone(t *testing.T) {
	sp := testSpace(t)
	self := ringid.NodeDescriptor{ID: sp.FromBytes([]byte{10}), IP: 0x7F000001, Port: 9000}
	state := ringstate.New(self, 3, nil)

	other := ringid.NodeDescriptor{ID: sp.FromBytes([]byte{5}), IP: 0x7F000001, Port: 9001}
	state.HandleNotify(other)

	r := New(state, rpcclient.New(sp), nil, baseConfig())
	r.stabilizeTick(context.Background())

	if !state.Successor().Equal(other) {
		t.Fatalf("expected successor promoted to %v, got %v", other, state.Successor())
	}
}

func TestStabilizeTickHandlesSuccessorFailure(t *testing.T) {
	sp := testSpace(t)
	self := ringid.NodeDescriptor{ID: sp.FromBytes([]byte{10}), IP: 0x7F000001, Port: 9000}
	state := ringstate.New(self, 3, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	ln.Close() // nothing listens here: every dial should fail

	succ := descAt(t, sp, 20, ln.Addr().String())
	state.SetSuccessor(succ)

	// SetSuccessor filled every slot with succ, so it takes one failed tick
	// per slot (L ticks) before the list rotates back to self.
	r := New(state, rpcclient.New(sp), nil, baseConfig())
	for i := 0; i < state.L(); i++ {
		r.stabilizeTick(context.Background())
	}

	if !state.Successor().Equal(self) {
		t.Fatalf("expected rotation back to self after failure, got %v", state.Successor())
	}
	if _, valid := state.Predecessor(); valid {
		t.Fatalf("expected predecessor invalidated after successor failure")
	}
}

func TestStabilizeTickAdoptsCloserSuccessorAndGraftsList(t *testing.T) {
	sp := testSpace(t)
	codec := wire.NewCodec(sp)
	self := ringid.NodeDescriptor{ID: sp.FromBytes([]byte{10}), IP: 0x7F000001, Port: 9000}
	state := ringstate.New(self, 3, nil)

	// closer is served by the same fake peer, so the GET_SUCLIST and NOTIFY
	// sent to the adopted successor reach it too.
	var closer ringid.NodeDescriptor
	suclist := []ringid.NodeDescriptor{
		{ID: sp.FromBytes([]byte{60}), IP: 1, Port: 1},
		{ID: sp.FromBytes([]byte{70}), IP: 2, Port: 2},
		{ID: sp.FromBytes([]byte{80}), IP: 3, Port: 3},
	}

	addr := peerServer(t, func(h wire.Header, body []byte) []byte {
		switch h.Type {
		case wire.TypeGetPredecessor:
			return codec.EncodeGetPredecessorResponse(closer, true)
		case wire.TypeGetSucList:
			return codec.EncodeSucListResponse(suclist)
		case wire.TypeNotify:
			return nil
		}
		return nil
	})

	closer = descAt(t, sp, 50, addr)
	farSucc := descAt(t, sp, 200, addr)
	state.SetSuccessor(farSucc)

	r := New(state, rpcclient.New(sp), nil, baseConfig())
	r.stabilizeTick(context.Background())

	if !state.Successor().Equal(closer) {
		t.Fatalf("expected successor replaced by closer peer, got %v", state.Successor())
	}
	list := state.SuccessorList()
	if !list[1].Equal(suclist[0]) || !list[2].Equal(suclist[1]) {
		t.Fatalf("expected successor list grafted behind closer, got %v", list)
	}
}

func TestTryJoinAdoptsBootstrapSuccessorAndCert(t *testing.T) {
	sp := testSpace(t)
	codec := wire.NewCodec(sp)
	self := ringid.NodeDescriptor{ID: sp.FromBytes([]byte{10}), IP: 0x7F000001, Port: 9000}
	state := ringstate.New(self, 3, nil)

	// The bootstrap peer names itself as successor, so the follow-up
	// GET_CERT to the new successor reaches the same fake peer.
	var bootstrapReply ringid.NodeDescriptor
	cert := []byte("certificate-blob")

	addr := peerServer(t, func(h wire.Header, body []byte) []byte {
		switch h.Type {
		case wire.TypeFindSuccessor:
			return codec.EncodeDescriptorMessage(wire.TypeFindSuccessorResponse, bootstrapReply)
		case wire.TypeGetCert:
			return codec.EncodeCertResponse(cert)
		}
		return nil
	})
	bootstrapReply = descAt(t, sp, 99, addr)

	cfg := baseConfig()
	cfg.BootstrapAddr = addr
	r := New(state, rpcclient.New(sp), nil, cfg)
	r.tryJoin(context.Background())

	if !state.Successor().Equal(bootstrapReply) {
		t.Fatalf("expected successor == bootstrap reply, got %v", state.Successor())
	}
	if string(state.Cert()) != string(cert) {
		t.Fatalf("expected cert installed, got %q", state.Cert())
	}
}

func TestTryJoinNoOpWhenNotAlone(t *testing.T) {
	sp := testSpace(t)
	self := ringid.NodeDescriptor{ID: sp.FromBytes([]byte{10}), IP: 0x7F000001, Port: 9000}
	state := ringstate.New(self, 3, nil)
	other := ringid.NodeDescriptor{ID: sp.FromBytes([]byte{20}), IP: 0x7F000001, Port: 9001}
	state.SetSuccessor(other)

	cfg := baseConfig()
	cfg.BootstrapAddr = "127.0.0.1:1" // would fail to connect if actually dialed
	r := New(state, rpcclient.New(sp), nil, cfg)
	r.tryJoin(context.Background())

	if !state.Successor().Equal(other) {
		t.Fatalf("expected successor unchanged, got %v", state.Successor())
	}
}

func TestGracefulLeaveHandsOffToBothNeighbors(t *testing.T) {
	sp := testSpace(t)
	self := ringid.NodeDescriptor{ID: sp.FromBytes([]byte{10}), IP: 0x7F000001, Port: 9000}
	state := ringstate.New(self, 3, nil)

	predSetSuccessor := make(chan wire.Type, 1)
	predAddr := peerServer(t, func(h wire.Header, body []byte) []byte {
		if h.Type == wire.TypeSetSuccessor {
			predSetSuccessor <- h.Type
		}
		return nil
	})
	succSetPredecessor := make(chan wire.Type, 1)
	succAddr := peerServer(t, func(h wire.Header, body []byte) []byte {
		if h.Type == wire.TypeSetPredecessor {
			succSetPredecessor <- h.Type
		}
		return nil
	})

	pred := descAt(t, sp, 1, predAddr)
	succ := descAt(t, sp, 99, succAddr)
	state.HandleNotify(pred)
	state.SetSuccessor(succ)

	r := New(state, rpcclient.New(sp), nil, baseConfig())
	r.GracefulLeave(context.Background())

	select {
	case <-predSetSuccessor:
	case <-time.After(time.Second):
		t.Fatalf("predecessor never received SET_SUCCESSOR")
	}
	select {
	case <-succSetPredecessor:
	case <-time.After(time.Second):
		t.Fatalf("successor never received SET_PREDECESSOR")
	}
}
