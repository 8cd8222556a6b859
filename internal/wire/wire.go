// Package wire implements the fixed binary framing the overlay's peers speak
// to each other: a 6-byte header (magic, type, payload length) followed by a
// per-type payload. Marshal/Unmarshal are hand-rolled over encoding/binary
// and bytes.Buffer rather than a reflection-based codec — every message is a
// handful of fixed-width fields, and the header's own magic byte is the only
// framing check a peer gets before it must decide whether to trust the rest
// of the connection.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"chordring/internal/ringid"
)

// Magic identifies the start of a frame. A header whose first byte is not
// Magic is a framing error; the connection it arrived on must be closed
// without touching ring state.
const Magic = 0xCC

// MaxCertSize bounds the CERT_RESPONSE payload's fixed data field.
const MaxCertSize = 2048

// HeaderLen is the fixed size, in bytes, of every frame's header.
const HeaderLen = 6

// Type enumerates the message types carried over the wire. Gaps in the
// numbering (0x05) are deliberate and reserved.
type Type byte

const (
	TypePing                   Type = 0x01
	TypeFindSuccessor          Type = 0x02
	TypeFindSuccessorResponse  Type = 0x03
	TypeNotify                 Type = 0x04
	TypeGetPredecessor         Type = 0x06
	TypeGetPredecessorResponse Type = 0x07
	TypeSetSuccessor           Type = 0x08
	TypeSetPredecessor         Type = 0x09
	TypeGetSucList             Type = 0x0A
	TypeGetSucListResponse     Type = 0x0B
	TypeGetCert                Type = 0x0C
	TypeCertResponse           Type = 0x0D
)

func (t Type) String() string {
	switch t {
	case TypePing:
		return "PING"
	case TypeFindSuccessor:
		return "FIND_SUCCESSOR"
	case TypeFindSuccessorResponse:
		return "FIND_SUCCESSOR_RESPONSE"
	case TypeNotify:
		return "NOTIFY"
	case TypeGetPredecessor:
		return "GET_PREDECESSOR"
	case TypeGetPredecessorResponse:
		return "GET_PREDECESSOR_RESPONSE"
	case TypeSetSuccessor:
		return "SET_SUCCESSOR"
	case TypeSetPredecessor:
		return "SET_PREDECESSOR"
	case TypeGetSucList:
		return "GET_SUCLIST"
	case TypeGetSucListResponse:
		return "GET_SUCLIST_RESPONSE"
	case TypeGetCert:
		return "GET_CERT"
	case TypeCertResponse:
		return "CERT_RESPONSE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(t))
	}
}

// ErrBadMagic is returned when a decoded header's magic byte is not Magic.
var ErrBadMagic = errors.New("wire: bad magic byte")

// ErrShortBody is returned when a payload is shorter than its type requires.
var ErrShortBody = errors.New("wire: short body")

// Header is the fixed 6-byte frame preamble.
type Header struct {
	Magic      byte
	Type       Type
	PayloadLen uint32
}

// EncodeHeader writes h in wire order.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	buf[0] = h.Magic
	buf[1] = byte(h.Type)
	binary.LittleEndian.PutUint32(buf[2:], h.PayloadLen)
	return buf
}

// DecodeHeader parses exactly HeaderLen bytes of b into a Header.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("wire: short header: got %d bytes, want %d", len(b), HeaderLen)
	}
	h := Header{
		Magic:      b[0],
		Type:       Type(b[1]),
		PayloadLen: binary.LittleEndian.Uint32(b[2:6]),
	}
	if h.Magic != Magic {
		return Header{}, fmt.Errorf("%w: got 0x%02X", ErrBadMagic, h.Magic)
	}
	return h, nil
}

// Codec marshals and unmarshals payloads for a fixed identifier byte width.
// Every NodeDescriptor field on the wire carries exactly IDLen bytes of id,
// so a Codec must be built against the same Space every peer in the ring
// runs with.
type Codec struct {
	IDLen int
}

// NewCodec builds a Codec for the given identifier space.
func NewCodec(sp ringid.Space) Codec {
	return Codec{IDLen: sp.ByteLen}
}

func (c Codec) descriptorSize() int {
	return c.IDLen + 4 + 2 // id + ip(u32) + port(u16)
}

func (c Codec) putDescriptor(buf *bytes.Buffer, n ringid.NodeDescriptor) {
	id := make([]byte, c.IDLen)
	copy(id, n.ID)
	buf.Write(id)
	binary.Write(buf, binary.BigEndian, n.IP)
	binary.Write(buf, binary.LittleEndian, n.Port)
}

func (c Codec) getDescriptor(b []byte) (ringid.NodeDescriptor, error) {
	want := c.descriptorSize()
	if len(b) < want {
		return ringid.NodeDescriptor{}, fmt.Errorf("%w: got %d bytes, want %d", ErrShortBody, len(b), want)
	}
	id := make(ringid.ID, c.IDLen)
	copy(id, b[:c.IDLen])
	ip := binary.BigEndian.Uint32(b[c.IDLen : c.IDLen+4])
	port := binary.LittleEndian.Uint16(b[c.IDLen+4 : c.IDLen+6])
	return ringid.NodeDescriptor{ID: id, IP: ip, Port: port}, nil
}

// Frame encodes typ with payload into a header-prefixed byte slice ready to
// write to a connection.
func (c Codec) Frame(typ Type, payload []byte) []byte {
	h := EncodeHeader(Header{Magic: Magic, Type: typ, PayloadLen: uint32(len(payload))})
	return append(h, payload...)
}

// EncodePing encodes the empty PING payload.
func (c Codec) EncodePing() []byte { return c.Frame(TypePing, nil) }

// EncodeFindSuccessor encodes a FIND_SUCCESSOR request carrying target.
func (c Codec) EncodeFindSuccessor(target ringid.ID) []byte {
	payload := make([]byte, c.IDLen)
	copy(payload, target)
	return c.Frame(TypeFindSuccessor, payload)
}

// DecodeFindSuccessor recovers the target id from a FIND_SUCCESSOR payload.
func (c Codec) DecodeFindSuccessor(payload []byte) (ringid.ID, error) {
	if len(payload) < c.IDLen {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortBody, len(payload), c.IDLen)
	}
	id := make(ringid.ID, c.IDLen)
	copy(id, payload[:c.IDLen])
	return id, nil
}

// EncodeDescriptorMessage encodes any message whose payload is a single
// NodeDescriptor: FIND_SUCCESSOR_RESPONSE, NOTIFY, SET_SUCCESSOR,
// SET_PREDECESSOR, and a present GET_PREDECESSOR_RESPONSE.
func (c Codec) EncodeDescriptorMessage(typ Type, n ringid.NodeDescriptor) []byte {
	var buf bytes.Buffer
	c.putDescriptor(&buf, n)
	return c.Frame(typ, buf.Bytes())
}

// DecodeDescriptor recovers a NodeDescriptor from a payload of exactly one
// descriptor's size.
func (c Codec) DecodeDescriptor(payload []byte) (ringid.NodeDescriptor, error) {
	return c.getDescriptor(payload)
}

// EncodeGetPredecessorResponse encodes GET_PREDECESSOR_RESPONSE. An invalid
// predecessor is carried as an empty payload, per §4.2.
func (c Codec) EncodeGetPredecessorResponse(n ringid.NodeDescriptor, valid bool) []byte {
	if !valid {
		return c.Frame(TypeGetPredecessorResponse, nil)
	}
	return c.EncodeDescriptorMessage(TypeGetPredecessorResponse, n)
}

// DecodeGetPredecessorResponse recovers the predecessor, if any, from a
// GET_PREDECESSOR_RESPONSE payload. An empty payload means "no predecessor".
func (c Codec) DecodeGetPredecessorResponse(payload []byte) (n ringid.NodeDescriptor, valid bool, err error) {
	if len(payload) == 0 {
		return ringid.NodeDescriptor{}, false, nil
	}
	n, err = c.getDescriptor(payload)
	if err != nil {
		return ringid.NodeDescriptor{}, false, err
	}
	return n, true, nil
}

// EncodeEmpty encodes a request with no payload: GET_PREDECESSOR,
// GET_SUCLIST, and GET_CERT.
func (c Codec) EncodeEmpty(typ Type) []byte {
	return c.Frame(typ, nil)
}

// EncodeSucListResponse encodes GET_SUCLIST_RESPONSE: a one-byte count
// followed by that many fixed-width descriptors.
func (c Codec) EncodeSucListResponse(nodes []ringid.NodeDescriptor) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(len(nodes)))
	for _, n := range nodes {
		c.putDescriptor(&buf, n)
	}
	return c.Frame(TypeGetSucListResponse, buf.Bytes())
}

// DecodeSucListResponse recovers the successor list from a
// GET_SUCLIST_RESPONSE payload.
func (c Codec) DecodeSucListResponse(payload []byte) ([]ringid.NodeDescriptor, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: empty GET_SUCLIST_RESPONSE body", ErrShortBody)
	}
	count := int(payload[0])
	body := payload[1:]
	want := count * c.descriptorSize()
	if len(body) < want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d for %d nodes", ErrShortBody, len(body), want, count)
	}
	out := make([]ringid.NodeDescriptor, 0, count)
	for i := 0; i < count; i++ {
		n, err := c.getDescriptor(body[i*c.descriptorSize():])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// EncodeCertResponse encodes CERT_RESPONSE: a 4-byte length followed by a
// fixed MaxCertSize-byte data field, per §4.2's `data: [u8; 2048]`. cert is
// zero-padded or truncated to fit.
func (c Codec) EncodeCertResponse(cert []byte) []byte {
	var buf bytes.Buffer
	n := len(cert)
	if n > MaxCertSize {
		n = MaxCertSize
	}
	binary.Write(&buf, binary.LittleEndian, uint32(n))
	data := make([]byte, MaxCertSize)
	copy(data, cert[:n])
	buf.Write(data)
	return c.Frame(TypeCertResponse, buf.Bytes())
}

// DecodeCertResponse recovers the certificate blob from a CERT_RESPONSE
// payload, trimmed to its declared length.
func (c Codec) DecodeCertResponse(payload []byte) ([]byte, error) {
	if len(payload) < 4+MaxCertSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortBody, len(payload), 4+MaxCertSize)
	}
	certLen := binary.LittleEndian.Uint32(payload[:4])
	if certLen > MaxCertSize {
		certLen = MaxCertSize
	}
	data := payload[4 : 4+MaxCertSize]
	out := make([]byte, certLen)
	copy(out, data[:certLen])
	return out, nil
}

// ExpectedBodyLen reports how many bytes the receiver should read for a
// response of the given type, used by a caller that has already read the
// header and must decide how much more to pull off the connection. A
// negative result means "variable, trust the header's payload_len" (used
// only for GET_PREDECESSOR_RESPONSE, whose body is either empty or one
// descriptor).
func (c Codec) ExpectedBodyLen(typ Type) int {
	switch typ {
	case TypePing, TypeFindSuccessor, TypeGetPredecessor, TypeSetSuccessor,
		TypeSetPredecessor, TypeGetSucList, TypeGetCert, TypeNotify:
		return -1
	case TypeFindSuccessorResponse:
		return c.descriptorSize()
	case TypeGetPredecessorResponse:
		return -1
	case TypeGetSucListResponse:
		return -1
	case TypeCertResponse:
		return 4 + MaxCertSize
	default:
		return -1
	}
}
