package ts

// syncValidationDepth is the "k" in k-of-n sync acquisition: the
// number of consecutive, consistent candidates required before a
// position is trusted as the true packet boundary.
const syncValidationDepth = 3

// synchronizer locates and holds a sync point over a sliding buffer
// using the byte-level k-of-n validation rule from the original
// implementation: a position is a valid sync iff 3 packets parsed
// from it, 188 bytes apart (falling back to byte-by-byte search when
// that assumption breaks), pairwise satisfy belongsToSameIteration.
type synchronizer struct {
	acquired bool
	offset   int
}

func newSynchronizer() *synchronizer {
	return &synchronizer{}
}

// acquire scans buf for a valid sync offset. It returns false if the
// buffer does not yet hold enough data or no position validates.
func (s *synchronizer) acquire(buf []byte) bool {
	minForSync := PacketSize * syncValidationDepth
	if len(buf) < minForSync {
		return false
	}

	for start := 0; start+minForSync <= len(buf); start++ {
		if buf[start] != SyncByte {
			continue
		}

		first, ok := ParsePacket(buf[start : start+PacketSize])
		if !ok {
			continue
		}

		candidates := []TSPacket{first}
		searchPos := start + PacketSize
		maxSearch := start + PacketSize*10
		if maxSearch > len(buf) {
			maxSearch = len(buf)
		}

		for len(candidates) < syncValidationDepth && searchPos+PacketSize <= maxSearch {
			if buf[searchPos] == SyncByte {
				cand, ok := ParsePacket(buf[searchPos : searchPos+PacketSize])
				if ok && belongsToSameIteration(candidates[len(candidates)-1], cand) {
					candidates = append(candidates, cand)
					searchPos += PacketSize
					continue
				}
			}
			searchPos++
		}

		if len(candidates) < syncValidationDepth {
			continue
		}

		consistent := true
		for i := 1; i < len(candidates); i++ {
			if !belongsToSameIteration(candidates[i-1], candidates[i]) {
				consistent = false
				break
			}
		}
		if !consistent {
			continue
		}

		s.offset = start
		s.acquired = true
		return true
	}

	return false
}

// belongsToSameIteration is the consistent-sequence predicate: p2 must
// continue p1's continuity counter (or explicitly flag a
// discontinuity), and if p1 carries a payload, p1 and p2 must share a
// PID. The PID check is skipped for adaptation-only p1 by design: CC
// divergence across such boundaries is permitted, not tightened.
func belongsToSameIteration(p1, p2 TSPacket) bool {
	expected := (p1.Header.ContinuityCounter + 1) % 16
	if p2.Header.ContinuityCounter != expected {
		if p2.Adaptation == nil || !p2.Adaptation.DiscontinuityIndicator {
			return false
		}
	}

	if p1.HasPayload && p1.Header.PID != p2.Header.PID {
		return false
	}

	return true
}

func (s *synchronizer) lost() {
	s.acquired = false
	s.offset = 0
}
