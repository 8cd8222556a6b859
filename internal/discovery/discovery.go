// Package discovery implements the LAN broadcast-discovery mechanism used
// to locate a bootstrap peer when no address is configured: a UDP
// datagram responder answers probe packets with its own id, and a prober
// broadcasts a probe and waits for the first non-self reply. Grounded on
// the example pack's dependency-free UDP broadcast beacon
// (zeromq-gyre/pkg/beacon), adapted from its multicast-address trick to a
// literal subnet broadcast address per this system's own wire format.
package discovery

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"chordring/internal/logger"
	"chordring/internal/ringid"
)

// Magic identifies a discovery probe/reply packet: {magic: u32, sender_id: u32}.
const Magic uint32 = 0x50434844

const packetLen = 8

// ErrNoInterface is returned when no broadcast-capable, non-loopback IPv4
// interface can be found to derive the subnet broadcast address from.
var ErrNoInterface = errors.New("discovery: no broadcast-capable interface found")

func encode(senderID uint32) []byte {
	buf := make([]byte, packetLen)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint32(buf[4:8], senderID)
	return buf
}

func decode(buf []byte) (senderID uint32, ok bool) {
	if len(buf) < packetLen {
		return 0, false
	}
	if binary.BigEndian.Uint32(buf[0:4]) != Magic {
		return 0, false
	}
	return binary.BigEndian.Uint32(buf[4:8]), true
}

// IDSeed collapses a ring ID into the u32 identity discovery packets carry,
// enough to distinguish "this is one of my own probes" from a peer's.
func IDSeed(id ringid.ID) uint32 {
	var b [4]byte
	if len(id) >= 4 {
		copy(b[:], id[len(id)-4:])
	} else {
		copy(b[4-len(id):], id)
	}
	return binary.BigEndian.Uint32(b[:])
}

func subnetBroadcast() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagBroadcast == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			mask := ipnet.Mask
			bcast := make(net.IP, 4)
			for i := range ip4 {
				bcast[i] = ip4[i] | ^mask[i]
			}
			return bcast, nil
		}
	}
	return nil, ErrNoInterface
}

// Responder answers discovery probes on a UDP socket with this peer's id.
// It never touches ring state.
type Responder struct {
	conn *net.UDPConn
	id   uint32
	lgr  logger.Logger
}

// NewResponder binds a UDP responder on port, identifying itself as id.
func NewResponder(port int, id uint32, lgr logger.Logger) (*Responder, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("discovery: listen on port %d: %w", port, err)
	}
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Responder{conn: conn, id: id, lgr: lgr}, nil
}

// Run answers probes until ctx is canceled, at which point it closes its
// socket and returns. Intended to run as a background goroutine.
func (r *Responder) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	buf := make([]byte, packetLen)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		senderID, ok := decode(buf[:n])
		if !ok {
			continue
		}
		if senderID == r.id {
			continue // loopback suppression: don't answer our own probes
		}
		if _, err := r.conn.WriteToUDP(encode(r.id), addr); err != nil {
			r.lgr.Debug("discovery: reply failed", logger.F("err", err))
		}
	}
}

// Prober broadcasts discovery probes and reports the first peer that
// answers.
type Prober struct {
	port     int
	id       uint32
	interval time.Duration
	timeout  time.Duration
}

// NewProber builds a Prober broadcasting on port, identifying itself as id.
func NewProber(port int, id uint32, interval, timeout time.Duration) *Prober {
	if interval <= 0 {
		interval = time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Prober{port: port, id: id, interval: interval, timeout: timeout}
}

// Probe broadcasts a probe on the LAN and returns the IP of the first peer
// to answer with a different id, or "" if none answers before the
// configured timeout. A peer's own echoed probe is ignored.
func (p *Prober) Probe(ctx context.Context) (string, error) {
	bcast, err := subnetBroadcast()
	if err != nil {
		return "", err
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return "", fmt.Errorf("discovery: open probe socket: %w", err)
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: bcast, Port: p.port}
	probe := encode(p.id)

	deadline := time.Now().Add(p.timeout)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if _, err := conn.WriteToUDP(probe, dst); err != nil {
		return "", fmt.Errorf("discovery: broadcast probe: %w", err)
	}

	buf := make([]byte, packetLen)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			conn.WriteToUDP(probe, dst)
		default:
		}

		conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		senderID, ok := decode(buf[:n])
		if !ok {
			continue
		}
		if senderID == p.id {
			continue // our own probe looped back
		}
		return addr.IP.String(), nil
	}
	return "", nil
}
