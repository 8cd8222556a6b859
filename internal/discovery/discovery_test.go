package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"chordring/internal/ringid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	buf := encode(0xDEADBEEF)
	id, ok := decode(buf)
	if !ok {
		t.Fatalf("decode: ok=false")
	}
	if id != 0xDEADBEEF {
		t.Fatalf("id = %x, want DEADBEEF", id)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := encode(1)
	buf[0] ^= 0xFF
	if _, ok := decode(buf); ok {
		t.Fatalf("decode accepted a corrupted magic")
	}
}

func TestDecodeRejectsShortPacket(t *testing.T) {
	if _, ok := decode([]byte{1, 2, 3}); ok {
		t.Fatalf("decode accepted a short packet")
	}
}

func TestIDSeed(t *testing.T) {
	sp, err := ringid.NewSpace(160)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	a := sp.FromAddress("10.0.0.1:5000")
	b := sp.FromAddress("10.0.0.2:5000")
	if IDSeed(a) == IDSeed(b) {
		t.Fatalf("distinct ids collapsed to the same seed: %x", IDSeed(a))
	}
}

func TestResponderIgnoresOwnProbe(t *testing.T) {
	r, err := NewResponder(0, 42, nil)
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	addr := r.conn.LocalAddr()
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		t.Fatalf("unexpected local addr type %T", addr)
	}

	probeConn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer probeConn.Close()

	if _, err := probeConn.WriteToUDP(encode(42), udpAddr); err != nil {
		t.Fatalf("WriteToUDP: %v", err)
	}

	probeConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, packetLen)
	if _, _, err := probeConn.ReadFromUDP(buf); err == nil {
		t.Fatalf("responder answered its own id, expected silence")
	}
}
