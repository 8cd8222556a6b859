// Package ringid implements the fixed-width circular identifier space the
// overlay is addressed by, and the single interval predicate routing and
// ring-membership decisions are built on.
package ringid

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidID is returned when an ID does not match the byte length of a Space.
var ErrInvalidID = errors.New("ringid: invalid identifier")

// Space describes the identifier keyspace: [0, 2^Bits) addressed with
// ByteLen = ceil(Bits/8) bytes, big-endian.
type Space struct {
	Bits    int
	ByteLen int
}

// NewSpace builds a Space for the given bit width.
func NewSpace(bits int) (Space, error) {
	if bits <= 0 {
		return Space{}, fmt.Errorf("ringid: invalid bit width %d (must be > 0)", bits)
	}
	return Space{Bits: bits, ByteLen: (bits + 7) / 8}, nil
}

// ID is a big-endian, fixed-width identifier. It is compared byte-wise as an
// unsigned integer modulo 2^Bits.
type ID []byte

// Zero returns the all-zero identifier for this space.
func (sp Space) Zero() ID {
	return make(ID, sp.ByteLen)
}

// IsValidID reports whether id has the byte length this space expects.
func (sp Space) IsValidID(id ID) error {
	if len(id) != sp.ByteLen {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidID, len(id), sp.ByteLen)
	}
	return nil
}

// FromAddress derives a stable identifier from a peer's "ip:port" string via
// SHA-1, truncating to the space's byte length (or zero-filling the bytes
// past the 20-byte digest when the space is wider than 160 bits) and masking
// any unused high-order bits when Bits is not a multiple of 8. This is an
// implementation choice — any stable, well-distributed hash works — but
// once chosen it must be stable for the lifetime of a peer.
func (sp Space) FromAddress(addr string) ID {
	sum := sha1.Sum([]byte(addr))
	id := make(ID, sp.ByteLen)
	copy(id, sum[:])
	sp.mask(id)
	return id
}

// FromBytes copies b into a new ID truncated/zero-extended to the space's
// byte length, then masks unused high-order bits.
func (sp Space) FromBytes(b []byte) ID {
	id := make(ID, sp.ByteLen)
	if len(b) >= sp.ByteLen {
		copy(id, b[:sp.ByteLen])
	} else {
		copy(id[sp.ByteLen-len(b):], b)
	}
	sp.mask(id)
	return id
}

// FromHex decodes a hex-encoded identifier and applies FromBytes' truncation
// and masking rules, for configuration overrides that fix a node's id.
func (sp Space) FromHex(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("ringid: invalid hex identifier %q: %w", s, err)
	}
	return sp.FromBytes(b), nil
}

func (sp Space) mask(id ID) {
	extraBits := sp.ByteLen*8 - sp.Bits
	if extraBits > 0 && len(id) > 0 {
		id[0] &= byte(0xFF >> uint(extraBits))
	}
}

// Cmp compares two identifiers as unsigned big-endian integers.
func (x ID) Cmp(b ID) int {
	return bytes.Compare(x, b)
}

// Equal reports whether x and b are the same identifier.
func (x ID) Equal(b ID) bool {
	return bytes.Equal(x, b)
}

// Between reports whether x lies on the circular arc (a, b]: strictly past a,
// up to and including b, going clockwise around the ring.
//
//   - a == b: the interval is the whole ring, always true.
//   - a < b:  linear arc, true iff a < x && x <= b.
//   - a > b:  the arc wraps past the zero point, true iff a < x || x <= b.
func (x ID) Between(a, b ID) bool {
	acmp := a.Cmp(x)
	xbcmp := x.Cmp(b)
	abcmp := a.Cmp(b)

	if abcmp == 0 {
		return true
	}
	if abcmp < 0 {
		return acmp < 0 && xbcmp <= 0
	}
	return acmp < 0 || xbcmp <= 0
}

// String renders x as a hex string.
func (x ID) String() string {
	return hex.EncodeToString(x)
}

// Tiny returns the low-order byte of x, for compact human-readable logging.
func (x ID) Tiny() byte {
	if len(x) == 0 {
		return 0
	}
	return x[len(x)-1]
}

// ToBigInt returns x as a big-endian unsigned integer.
func (x ID) ToBigInt() *big.Int {
	return new(big.Int).SetBytes(x)
}

// NodeDescriptor identifies one overlay peer: its ring identifier plus the
// IPv4 address and port it can be reached on. Two descriptors are equal iff
// their ids are equal.
type NodeDescriptor struct {
	ID   ID
	IP   uint32 // network byte order (big-endian), per the IP convention
	Port uint16
}

// Equal compares descriptors by id only, per the data model.
func (n NodeDescriptor) Equal(o NodeDescriptor) bool {
	return n.ID.Equal(o.ID)
}

// Addr renders the descriptor's reachable address as "host:port".
func (n NodeDescriptor) Addr() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n.IP)
	return fmt.Sprintf("%d.%d.%d.%d:%d", b[0], b[1], b[2], b[3], n.Port)
}

// IPFromString parses a dotted-quad IPv4 address into network-byte-order
// uint32 form, as stored on a NodeDescriptor.
func IPFromString(ip string) (uint32, error) {
	var a, b, c, d int
	if _, err := fmt.Sscanf(ip, "%d.%d.%d.%d", &a, &b, &c, &d); err != nil {
		return 0, fmt.Errorf("ringid: invalid IPv4 address %q: %w", ip, err)
	}
	for _, octet := range []int{a, b, c, d} {
		if octet < 0 || octet > 255 {
			return 0, fmt.Errorf("ringid: invalid IPv4 address %q", ip)
		}
	}
	return binary.BigEndian.Uint32([]byte{byte(a), byte(b), byte(c), byte(d)}), nil
}
