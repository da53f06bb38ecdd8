package ts

import "math"

const (
	pcrMaxSamples           = 1000
	expectedPCRIntervalMs   = 40.0
	discontinuityThresholdMs = 100.0
	pcrWrapModulus27MHz     = int64(1<<33) * 300
)

// PCR is a Program Clock Reference value: a 33-bit, 90 kHz base plus a
// 9-bit, 27 MHz remainder.
type PCR struct {
	Base      uint64
	Extension uint16
}

// Value27MHz returns the full PCR value in 27 MHz ticks.
func (p PCR) Value27MHz() uint64 { return p.Base*300 + uint64(p.Extension) }

// Value90kHz returns the 90 kHz (PTS/DTS-compatible) component.
func (p PCR) Value90kHz() uint64 { return p.Base }

// Seconds returns the PCR value converted to seconds.
func (p PCR) Seconds() float64 { return float64(p.Value27MHz()) / 27000000.0 }

// IsValid reports whether the PCR is within its defined bit ranges.
func (p PCR) IsValid() bool { return p.Base < (1<<33) && p.Extension < 300 }

// pcrDifference returns v2-v1 in 27 MHz ticks, wrap-aware modulo 2^33*300.
func pcrDifference(v1, v2 PCR) int64 {
	diff := int64(v2.Value27MHz()) - int64(v1.Value27MHz())
	half := pcrWrapModulus27MHz / 2
	if diff > half {
		diff -= pcrWrapModulus27MHz
	} else if diff < -half {
		diff += pcrWrapModulus27MHz
	}
	return diff
}

func pcrDifferenceMs(v1, v2 PCR) float64 {
	return float64(pcrDifference(v1, v2)) / 27000.0
}

// PCRSample is one recorded PCR value tied to the packet that carried it.
type PCRSample struct {
	PCR               PCR
	PacketNumber      uint64
	ContinuityCounter uint8
}

// PCRStats is a snapshot of a PID's PCR tracking state.
type PCRStats struct {
	PID                   uint16
	PCRCount              int
	FirstPCR              *PCR
	LastPCR               *PCR
	AverageIntervalMs     float64
	MaxJitterMs           float64
	DiscontinuityDetected bool
}

// PCRTracker records up to pcrMaxSamples most-recent PCR samples for
// one PID and derives jitter/discontinuity/interpolation from them.
type PCRTracker struct {
	pid     uint16
	samples []PCRSample

	averageIntervalMs     float64
	maxJitterMs           float64
	discontinuityDetected bool
}

func newPCRTracker(pid uint16) *PCRTracker {
	return &PCRTracker{pid: pid}
}

// Add records a new PCR sample, updating jitter and discontinuity
// statistics against the immediately preceding sample.
func (t *PCRTracker) Add(pcr PCR, packetNumber uint64, cc uint8) {
	sample := PCRSample{PCR: pcr, PacketNumber: packetNumber, ContinuityCounter: cc}

	if len(t.samples) > 0 {
		last := t.samples[len(t.samples)-1]
		interval := pcrDifferenceMs(last.PCR, pcr)

		if interval < 0 || interval > discontinuityThresholdMs {
			t.discontinuityDetected = true
		} else {
			jitter := math.Abs(interval - expectedPCRIntervalMs)
			if jitter > t.maxJitterMs {
				t.maxJitterMs = jitter
			}
		}
	}

	t.samples = append(t.samples, sample)
	if len(t.samples) > pcrMaxSamples {
		t.samples = t.samples[1:]
	}

	t.updateStatistics()
}

func (t *PCRTracker) updateStatistics() {
	if len(t.samples) < 2 {
		return
	}

	sampleCount := len(t.samples)
	if sampleCount > 100 {
		sampleCount = 100
	}

	start := len(t.samples) - sampleCount
	var total float64
	var valid int
	for i := start; i < len(t.samples)-1; i++ {
		interval := pcrDifferenceMs(t.samples[i].PCR, t.samples[i+1].PCR)
		if interval > 0 && interval < discontinuityThresholdMs {
			total += interval
			valid++
		}
	}

	if valid > 0 {
		t.averageIntervalMs = total / float64(valid)
	}
}

// Stats returns a snapshot of this tracker's current statistics.
func (t *PCRTracker) Stats() PCRStats {
	stats := PCRStats{
		PID:                   t.pid,
		PCRCount:              len(t.samples),
		AverageIntervalMs:     t.averageIntervalMs,
		MaxJitterMs:           t.maxJitterMs,
		DiscontinuityDetected: t.discontinuityDetected,
	}
	if len(t.samples) > 0 {
		first := t.samples[0].PCR
		last := t.samples[len(t.samples)-1].PCR
		stats.FirstPCR = &first
		stats.LastPCR = &last
	}
	return stats
}

// LastPCR returns the most recently recorded PCR, if any.
func (t *PCRTracker) LastPCR() (PCR, bool) {
	if len(t.samples) == 0 {
		return PCR{}, false
	}
	return t.samples[len(t.samples)-1].PCR, true
}

// InterpolateAt returns the PCR expected at packetNumber, linearly
// interpolating between the bracketing samples, or extrapolating from
// the rate of the last two samples when packetNumber lies beyond the
// last recorded sample. It returns ok=false when fewer than 2 samples
// are available or no bracket/extrapolation basis exists.
func (t *PCRTracker) InterpolateAt(packetNumber uint64) (PCR, bool) {
	if len(t.samples) < 2 {
		return PCR{}, false
	}

	var before, after *PCRSample
	for i := range t.samples {
		if t.samples[i].PacketNumber <= packetNumber {
			before = &t.samples[i]
		} else {
			after = &t.samples[i]
			break
		}
	}

	if before != nil && after != nil {
		totalPackets := after.PacketNumber - before.PacketNumber
		targetOffset := packetNumber - before.PacketNumber
		if totalPackets == 0 {
			return before.PCR, true
		}

		ratio := float64(targetOffset) / float64(totalPackets)
		diff := pcrDifference(before.PCR, after.PCR)
		interpolated := int64(before.PCR.Value27MHz()) + int64(math.Round(float64(diff)*ratio))

		return pcrFrom27MHz(interpolated), true
	}

	if before != nil {
		idx := -1
		for i := range t.samples {
			if &t.samples[i] == before {
				idx = i
				break
			}
		}
		if idx > 0 {
			s1 := t.samples[idx-1]
			s2 := t.samples[idx]

			interval := pcrDifferenceMs(s1.PCR, s2.PCR)
			packetDiff := s2.PacketNumber - s1.PacketNumber

			if packetDiff > 0 && interval > 0 {
				msPerPacket := interval / float64(packetDiff)
				extrapolationMs := msPerPacket * float64(packetNumber-s2.PacketNumber)

				extrapolated := int64(s2.PCR.Value27MHz()) + int64(extrapolationMs*27000.0)
				return pcrFrom27MHz(extrapolated), true
			}
		}
	}

	return PCR{}, false
}

func pcrFrom27MHz(v int64) PCR {
	if v < 0 {
		v = 0
	}
	return PCR{Base: uint64(v) / 300, Extension: uint16(uint64(v) % 300)}
}

// Samples returns the recorded samples, most recent last.
func (t *PCRTracker) Samples() []PCRSample { return t.samples }

// PCRManager multiplexes PCRTrackers by PID.
type PCRManager struct {
	trackers map[uint16]*PCRTracker
}

func newPCRManager() *PCRManager {
	return &PCRManager{trackers: make(map[uint16]*PCRTracker)}
}

// Add records a PCR sample for pid, creating its tracker on first use.
func (m *PCRManager) Add(pid uint16, pcr PCR, packetNumber uint64, cc uint8) {
	t, ok := m.trackers[pid]
	if !ok {
		t = newPCRTracker(pid)
		m.trackers[pid] = t
	}
	t.Add(pcr, packetNumber, cc)
}

// Tracker returns the tracker for pid, or nil if no PCR has been seen
// on that PID.
func (m *PCRManager) Tracker(pid uint16) *PCRTracker {
	return m.trackers[pid]
}

// AllStats returns statistics for every tracked PID.
func (m *PCRManager) AllStats() []PCRStats {
	result := make([]PCRStats, 0, len(m.trackers))
	for _, t := range m.trackers {
		result = append(result, t.Stats())
	}
	return result
}

// PIDsWithPCR returns every PID that has recorded at least one PCR.
func (m *PCRManager) PIDsWithPCR() []uint16 {
	result := make([]uint16, 0, len(m.trackers))
	for pid := range m.trackers {
		result = append(result, pid)
	}
	return result
}

func (m *PCRManager) clear() {
	m.trackers = make(map[uint16]*PCRTracker)
}
