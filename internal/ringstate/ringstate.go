// Package ringstate holds the per-peer ring membership record — self,
// predecessor, and successor list — and the pure mutation operations the
// maintenance loop and inbound dispatch drive it with.
package ringstate

import (
	"sync"

	"chordring/internal/logger"
	"chordring/internal/ringid"
)

// MaxCertSize bounds the opaque certificate blob attached to GET_CERT
// responses. It carries no verification semantics.
const MaxCertSize = 2048

// State is the mutable ring-membership record for one peer. Every mutator
// is safe for concurrent use: the join-retry and stabilize loops each drive
// it from their own goroutine, and inbound connections are each dispatched
// on their own goroutine, so a single lock guards the whole record.
type State struct {
	mu sync.RWMutex

	self              ringid.NodeDescriptor
	predecessor       ringid.NodeDescriptor
	predecessorValid  bool
	successors        []ringid.NodeDescriptor
	cert              []byte

	lgr logger.Logger
}

// New creates a ring state for self with a successor list of the given
// length. Per invariant 1, every slot starts pointing at self and the
// predecessor starts invalid — the peer begins alone.
func New(self ringid.NodeDescriptor, successorListLen int, lgr logger.Logger) *State {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	successors := make([]ringid.NodeDescriptor, successorListLen)
	for i := range successors {
		successors[i] = self
	}
	s := &State{
		self:       self,
		successors: successors,
		lgr:        lgr,
	}
	s.lgr.Debug("ring state initialized alone", logger.FDescriptor("self", self))
	return s
}

// Self returns this peer's own descriptor. It never changes.
func (s *State) Self() ringid.NodeDescriptor {
	return s.self
}

// L returns the configured successor-list length.
func (s *State) L() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.successors)
}

// Successor returns successors[0], the current immediate successor.
func (s *State) Successor() ringid.NodeDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.successors[0]
}

// SuccessorList returns a copy of the full successor list, always of
// length L.
func (s *State) SuccessorList() []ringid.NodeDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ringid.NodeDescriptor, len(s.successors))
	copy(out, s.successors)
	return out
}

// Predecessor returns the current predecessor and whether it is valid.
func (s *State) Predecessor() (ringid.NodeDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.predecessor, s.predecessorValid
}

// Cert returns the opaque certificate blob currently attached to this peer.
func (s *State) Cert() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]byte, len(s.cert))
	copy(out, s.cert)
	return out
}

// SetCert installs an opaque certificate blob, truncating to MaxCertSize.
// The blob is never parsed or verified.
func (s *State) SetCert(blob []byte) {
	if len(blob) > MaxCertSize {
		blob = blob[:MaxCertSize]
	}
	s.mu.Lock()
	s.cert = append([]byte(nil), blob...)
	s.mu.Unlock()
}

// IsAlone reports whether this peer is its own successor — a one-node ring.
func (s *State) IsAlone() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.successors[0].Equal(s.self)
}

// FindSuccessorNextHop is the handler for FIND_SUCCESSOR: the core
// deliberately forwards linearly, always to the immediate successor,
// regardless of where target falls. A caller walks the ring one hop at a
// time until a node answers with itself or its immediate successor.
func (s *State) FindSuccessorNextHop(target ringid.ID) ringid.NodeDescriptor {
	return s.Successor()
}

// HandleNotify accepts x as predecessor iff there is none yet, or x falls
// in the open-closed arc (predecessor, self]. Idempotent: re-applying the
// same accepted x is a no-op on state beyond reconfirming it.
func (s *State) HandleNotify(x ringid.NodeDescriptor) {
	s.mu.Lock()
	accept := !s.predecessorValid || x.ID.Between(s.predecessor.ID, s.self.ID)
	if accept {
		s.predecessor = x
		s.predecessorValid = true
	}
	s.mu.Unlock()
	if accept {
		s.lgr.Debug("notify accepted", logger.FDescriptor("candidate", x))
	} else {
		s.lgr.Debug("notify ignored", logger.FDescriptor("candidate", x))
	}
}

// HandleStabilizeResponse processes x, the predecessor successors[0]
// reported of itself. If x falls strictly between self and the current
// successor (and differs from it), x becomes the new successor[0]; slots
// [1..L) are left for UpdateSuccessorList to refresh.
func (s *State) HandleStabilizeResponse(x ringid.NodeDescriptor) {
	s.mu.Lock()
	cur := s.successors[0]
	replace := x.ID.Between(s.self.ID, cur.ID) && !x.ID.Equal(cur.ID)
	if replace {
		s.successors[0] = x
	}
	s.mu.Unlock()
	if replace {
		s.lgr.Info("stabilize: adopted closer successor", logger.FDescriptor("successor", x))
	}
}

// UpdateSuccessorList grafts received (the successor's own successor list)
// behind our own successor, filling slots [1..L).
func (s *State) UpdateSuccessorList(received []ringid.NodeDescriptor) {
	s.mu.Lock()
	n := len(s.successors) - 1
	if n > len(received) {
		n = len(received)
	}
	for i := 0; i < n; i++ {
		s.successors[i+1] = received[i]
	}
	s.mu.Unlock()
}

// HandleSuccessorFailure rotates the successor list toward the front,
// appends self at the tail, and invalidates the predecessor — forcing a
// fresh NOTIFY cycle rather than keeping a relationship that is likely
// already broken.
func (s *State) HandleSuccessorFailure() {
	s.mu.Lock()
	for i := 0; i < len(s.successors)-1; i++ {
		s.successors[i] = s.successors[i+1]
	}
	s.successors[len(s.successors)-1] = s.self
	s.predecessorValid = false
	s.predecessor = ringid.NodeDescriptor{}
	s.mu.Unlock()
	s.lgr.Info("successor unreachable, rotated list and invalidated predecessor")
}

// SetSuccessor replaces every slot with x. Deliberately resets all slots,
// not just [0]: right after a join or graceful hand-off the backup slots
// would otherwise still point at self, causing a spurious fallback to
// alone-mode on the next failover.
func (s *State) SetSuccessor(x ringid.NodeDescriptor) {
	s.mu.Lock()
	for i := range s.successors {
		s.successors[i] = x
	}
	s.mu.Unlock()
	s.lgr.Info("successor set", logger.FDescriptor("successor", x))
}

// HandleSetPredecessor unconditionally installs x as predecessor. Called
// only during a peer's graceful departure, which vouches for the new
// neighbor.
func (s *State) HandleSetPredecessor(x ringid.NodeDescriptor) {
	s.mu.Lock()
	s.predecessor = x
	s.predecessorValid = true
	s.mu.Unlock()
	s.lgr.Info("predecessor set by hand-off", logger.FDescriptor("predecessor", x))
}

// PromotePredecessorAsSuccessor is step 2 of the stabilize tick for a
// solitary peer: if a valid predecessor differs from self, it becomes the
// new successor via SetSuccessor. This is how a lone node that has just
// learned of a predecessor rejoins a two-node ring.
func (s *State) PromotePredecessorAsSuccessor() (ringid.NodeDescriptor, bool) {
	pred, valid := s.Predecessor()
	if !valid || pred.Equal(s.self) {
		return ringid.NodeDescriptor{}, false
	}
	s.SetSuccessor(pred)
	return pred, true
}
