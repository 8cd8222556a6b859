package ringstate

import (
	"testing"

	"chordring/internal/ringid"
)

func descriptor(t *testing.T, sp ringid.Space, tag byte, port uint16) ringid.NodeDescriptor {
	t.Helper()
	return ringid.NodeDescriptor{ID: sp.FromBytes([]byte{tag}), IP: 0x0A000001, Port: port}
}

func TestNewStateStartsAlone(t *testing.T) {
	sp, _ := ringid.NewSpace(8)
	self := descriptor(t, sp, 10, 5000)
	s := New(self, 3, nil)

	if !s.IsAlone() {
		t.Fatalf("expected new state to be alone")
	}
	if _, valid := s.Predecessor(); valid {
		t.Fatalf("expected predecessor invalid when alone")
	}
	if got := len(s.SuccessorList()); got != 3 {
		t.Fatalf("expected successor list length 3, got %d", got)
	}
	for i, succ := range s.SuccessorList() {
		if !succ.Equal(self) {
			t.Fatalf("successor[%d] = %v, want self", i, succ)
		}
	}
}

func TestHandleNotifyAcceptsWhenInvalid(t *testing.T) {
	sp, _ := ringid.NewSpace(8)
	self := descriptor(t, sp, 10, 5000)
	other := descriptor(t, sp, 5, 5001)
	s := New(self, 3, nil)

	s.HandleNotify(other)
	pred, valid := s.Predecessor()
	if !valid || !pred.Equal(other) {
		t.Fatalf("expected predecessor accepted unconditionally when invalid")
	}
}

func TestHandleNotifyIdempotent(t *testing.T) {
	sp, _ := ringid.NewSpace(8)
	self := descriptor(t, sp, 10, 5000)
	candidate := descriptor(t, sp, 5, 5001)
	s := New(self, 3, nil)

	s.HandleNotify(candidate)
	first, _ := s.Predecessor()
	s.HandleNotify(candidate)
	second, _ := s.Predecessor()

	if !first.Equal(second) {
		t.Fatalf("applying handle_notify twice changed state: %v vs %v", first, second)
	}
}

func TestHandleNotifyRejectsFartherCandidate(t *testing.T) {
	sp, _ := ringid.NewSpace(8)
	self := descriptor(t, sp, 10, 5000)
	closeCandidate := descriptor(t, sp, 8, 5001)
	farCandidate := descriptor(t, sp, 2, 5002)
	s := New(self, 3, nil)

	s.HandleNotify(closeCandidate)
	s.HandleNotify(farCandidate)

	pred, _ := s.Predecessor()
	if !pred.Equal(closeCandidate) {
		t.Fatalf("expected predecessor to stay at closer candidate, got %v", pred)
	}
}

func TestHandleSuccessorFailureRotatesAndInvalidatesPredecessor(t *testing.T) {
	sp, _ := ringid.NewSpace(8)
	self := descriptor(t, sp, 10, 5000)
	s := New(self, 3, nil)

	backup1 := descriptor(t, sp, 20, 5001)
	backup2 := descriptor(t, sp, 30, 5002)
	s.UpdateSuccessorList([]ringid.NodeDescriptor{backup1, backup2})
	s.HandleNotify(descriptor(t, sp, 1, 5003))

	s.HandleSuccessorFailure()

	list := s.SuccessorList()
	if !list[0].Equal(backup1) {
		t.Fatalf("expected rotated successor[0] == backup1, got %v", list[0])
	}
	if !list[len(list)-1].Equal(self) {
		t.Fatalf("expected tail slot reset to self, got %v", list[len(list)-1])
	}
	if _, valid := s.Predecessor(); valid {
		t.Fatalf("expected predecessor invalidated after successor failure")
	}
}

func TestSetSuccessorResetsAllSlots(t *testing.T) {
	sp, _ := ringid.NewSpace(8)
	self := descriptor(t, sp, 10, 5000)
	s := New(self, 3, nil)

	joiner := descriptor(t, sp, 20, 5001)
	s.SetSuccessor(joiner)

	for i, succ := range s.SuccessorList() {
		if !succ.Equal(joiner) {
			t.Fatalf("successor[%d] = %v, want %v (all slots reset)", i, succ, joiner)
		}
	}
}

func TestPromotePredecessorAsSuccessor(t *testing.T) {
	sp, _ := ringid.NewSpace(8)
	self := descriptor(t, sp, 10, 5000)
	s := New(self, 3, nil)

	// Alone, no predecessor: nothing to promote.
	if _, promoted := s.PromotePredecessorAsSuccessor(); promoted {
		t.Fatalf("expected no promotion with no valid predecessor")
	}

	newPeer := descriptor(t, sp, 5, 5001)
	s.HandleNotify(newPeer)
	promotedTo, promoted := s.PromotePredecessorAsSuccessor()
	if !promoted || !promotedTo.Equal(newPeer) {
		t.Fatalf("expected predecessor promoted to successor, got %v, %v", promotedTo, promoted)
	}
	if !s.Successor().Equal(newPeer) {
		t.Fatalf("expected successor == newPeer after promotion")
	}
}

func TestHandleStabilizeResponseAdoptsCloserSuccessor(t *testing.T) {
	sp, _ := ringid.NewSpace(8)
	self := descriptor(t, sp, 10, 5000)
	s := New(self, 3, nil)

	farSucc := descriptor(t, sp, 200, 5001)
	s.SetSuccessor(farSucc)

	closer := descriptor(t, sp, 50, 5002)
	s.HandleStabilizeResponse(closer)

	if !s.Successor().Equal(closer) {
		t.Fatalf("expected successor replaced with closer node, got %v", s.Successor())
	}
}

func TestHandleStabilizeResponseIgnoresSameSuccessor(t *testing.T) {
	sp, _ := ringid.NewSpace(8)
	self := descriptor(t, sp, 10, 5000)
	s := New(self, 3, nil)

	succ := descriptor(t, sp, 50, 5001)
	s.SetSuccessor(succ)
	s.HandleStabilizeResponse(succ)

	if !s.Successor().Equal(succ) {
		t.Fatalf("expected successor unchanged when x == successor")
	}
}

func TestCertTruncatedToMax(t *testing.T) {
	sp, _ := ringid.NewSpace(8)
	self := descriptor(t, sp, 10, 5000)
	s := New(self, 3, nil)

	blob := make([]byte, MaxCertSize+100)
	for i := range blob {
		blob[i] = byte(i)
	}
	s.SetCert(blob)
	if got := len(s.Cert()); got != MaxCertSize {
		t.Fatalf("expected cert truncated to %d bytes, got %d", MaxCertSize, got)
	}
}
