package wire

import (
	"bytes"
	"testing"

	"chordring/internal/ringid"
)

func testCodec(t *testing.T) (Codec, ringid.Space) {
	t.Helper()
	sp, err := ringid.NewSpace(160)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return NewCodec(sp), sp
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Magic: Magic, Type: TypeFindSuccessor, PayloadLen: 20}
	encoded := EncodeHeader(h)
	if len(encoded) != HeaderLen {
		t.Fatalf("encoded header length = %d, want %d", len(encoded), HeaderLen)
	}
	decoded, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if decoded != h {
		t.Fatalf("decoded header = %+v, want %+v", decoded, h)
	}
}

func TestDecodeHeaderBadMagic(t *testing.T) {
	encoded := EncodeHeader(Header{Magic: Magic, Type: TypePing, PayloadLen: 0})
	encoded[0] = 0xAB
	if _, err := DecodeHeader(encoded); err == nil {
		t.Fatalf("expected error for bad magic byte")
	}
}

// Concrete scenario: FIND_SUCCESSOR with an all-zero target id round-trips,
// with the header's magic and type byte intact.
func TestFindSuccessorAllZeroTarget(t *testing.T) {
	c, sp := testCodec(t)
	target := sp.Zero()

	frame := c.EncodeFindSuccessor(target)
	h, err := DecodeHeader(frame[:HeaderLen])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.Magic != Magic {
		t.Fatalf("magic = 0x%02X, want 0x%02X", h.Magic, Magic)
	}
	if h.Type != TypeFindSuccessor {
		t.Fatalf("type = 0x%02X, want 0x%02X", byte(h.Type), byte(TypeFindSuccessor))
	}

	payload := frame[HeaderLen : HeaderLen+int(h.PayloadLen)]
	got, err := c.DecodeFindSuccessor(payload)
	if err != nil {
		t.Fatalf("DecodeFindSuccessor: %v", err)
	}
	if !got.Equal(target) {
		t.Fatalf("recovered target = %v, want all-zero", got)
	}
}

func TestDescriptorMessageRoundTrip(t *testing.T) {
	c, sp := testCodec(t)
	n := ringid.NodeDescriptor{ID: sp.FromBytes([]byte{0x42}), IP: 0xC0A80001, Port: 5000}

	frame := c.EncodeDescriptorMessage(TypeNotify, n)
	h, err := DecodeHeader(frame[:HeaderLen])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	payload := frame[HeaderLen : HeaderLen+int(h.PayloadLen)]

	got, err := c.DecodeDescriptor(payload)
	if err != nil {
		t.Fatalf("DecodeDescriptor: %v", err)
	}
	if !got.Equal(n) || got.IP != n.IP || got.Port != n.Port {
		t.Fatalf("recovered descriptor = %+v, want %+v", got, n)
	}
}

func TestGetPredecessorResponseEmptyMeansInvalid(t *testing.T) {
	c, _ := testCodec(t)

	frame := c.EncodeGetPredecessorResponse(ringid.NodeDescriptor{}, false)
	h, err := DecodeHeader(frame[:HeaderLen])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.PayloadLen != 0 {
		t.Fatalf("payload_len = %d, want 0 for invalid predecessor", h.PayloadLen)
	}
	_, valid, err := c.DecodeGetPredecessorResponse(frame[HeaderLen:])
	if err != nil {
		t.Fatalf("DecodeGetPredecessorResponse: %v", err)
	}
	if valid {
		t.Fatalf("expected valid=false for empty body")
	}
}

func TestGetPredecessorResponseValid(t *testing.T) {
	c, sp := testCodec(t)
	n := ringid.NodeDescriptor{ID: sp.FromBytes([]byte{0x07}), IP: 0x0A000001, Port: 6000}

	frame := c.EncodeGetPredecessorResponse(n, true)
	h, err := DecodeHeader(frame[:HeaderLen])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	payload := frame[HeaderLen : HeaderLen+int(h.PayloadLen)]
	got, valid, err := c.DecodeGetPredecessorResponse(payload)
	if err != nil {
		t.Fatalf("DecodeGetPredecessorResponse: %v", err)
	}
	if !valid || !got.Equal(n) {
		t.Fatalf("recovered (%v, %v), want (%v, true)", got, valid, n)
	}
}

func TestSucListResponseRoundTrip(t *testing.T) {
	c, sp := testCodec(t)
	nodes := []ringid.NodeDescriptor{
		{ID: sp.FromBytes([]byte{1}), IP: 1, Port: 1},
		{ID: sp.FromBytes([]byte{2}), IP: 2, Port: 2},
		{ID: sp.FromBytes([]byte{3}), IP: 3, Port: 3},
	}

	frame := c.EncodeSucListResponse(nodes)
	h, err := DecodeHeader(frame[:HeaderLen])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	payload := frame[HeaderLen : HeaderLen+int(h.PayloadLen)]
	got, err := c.DecodeSucListResponse(payload)
	if err != nil {
		t.Fatalf("DecodeSucListResponse: %v", err)
	}
	if len(got) != len(nodes) {
		t.Fatalf("got %d nodes, want %d", len(got), len(nodes))
	}
	for i := range nodes {
		if !got[i].Equal(nodes[i]) || got[i].IP != nodes[i].IP || got[i].Port != nodes[i].Port {
			t.Fatalf("node[%d] = %+v, want %+v", i, got[i], nodes[i])
		}
	}
}

func TestSucListResponseEmpty(t *testing.T) {
	c, _ := testCodec(t)
	frame := c.EncodeSucListResponse(nil)
	h, err := DecodeHeader(frame[:HeaderLen])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	got, err := c.DecodeSucListResponse(frame[HeaderLen : HeaderLen+int(h.PayloadLen)])
	if err != nil {
		t.Fatalf("DecodeSucListResponse: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d nodes, want 0", len(got))
	}
}

func TestCertResponseRoundTrip(t *testing.T) {
	c, _ := testCodec(t)
	cert := bytes.Repeat([]byte{0xAB}, 37)

	frame := c.EncodeCertResponse(cert)
	h, err := DecodeHeader(frame[:HeaderLen])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if int(h.PayloadLen) != 4+MaxCertSize {
		t.Fatalf("payload_len = %d, want %d", h.PayloadLen, 4+MaxCertSize)
	}
	got, err := c.DecodeCertResponse(frame[HeaderLen : HeaderLen+int(h.PayloadLen)])
	if err != nil {
		t.Fatalf("DecodeCertResponse: %v", err)
	}
	if !bytes.Equal(got, cert) {
		t.Fatalf("recovered cert = %x, want %x", got, cert)
	}
}

func TestCertResponseTruncatesOversizedInput(t *testing.T) {
	c, _ := testCodec(t)
	cert := bytes.Repeat([]byte{0x01}, MaxCertSize+500)

	frame := c.EncodeCertResponse(cert)
	h, _ := DecodeHeader(frame[:HeaderLen])
	got, err := c.DecodeCertResponse(frame[HeaderLen : HeaderLen+int(h.PayloadLen)])
	if err != nil {
		t.Fatalf("DecodeCertResponse: %v", err)
	}
	if len(got) != MaxCertSize {
		t.Fatalf("recovered cert length = %d, want %d", len(got), MaxCertSize)
	}
}

func TestEmptyRequestsCarryNoPayload(t *testing.T) {
	c, _ := testCodec(t)
	for _, typ := range []Type{TypePing, TypeGetPredecessor, TypeGetSucList, TypeGetCert} {
		frame := c.EncodeEmpty(typ)
		h, err := DecodeHeader(frame[:HeaderLen])
		if err != nil {
			t.Fatalf("%v: DecodeHeader: %v", typ, err)
		}
		if h.PayloadLen != 0 {
			t.Fatalf("%v: payload_len = %d, want 0", typ, h.PayloadLen)
		}
	}
}
