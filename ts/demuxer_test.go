package ts

import "testing"

func TestDemuxerScenarioFiveValidPackets(t *testing.T) {
	cfg := defaultGeneratorConfig()
	cfg.pid = 0x100
	cfg.setPUSI = true
	stream := generateSequence(5, cfg)

	d := NewDemuxer()
	d.Feed(stream)

	if !d.IsSynchronized() {
		t.Fatal("expected synchronization on 5 valid packets")
	}

	pids := d.GetDiscoveredPIDs()
	if len(pids) != 1 || pids[0] != 0x100 {
		t.Fatalf("discovered PIDs = %v, want [0x100]", pids)
	}

	summary := d.GetIterationsSummary(0x100)
	if len(summary) != 1 {
		t.Fatalf("iteration count = %d, want 1", len(summary))
	}
	info := summary[0]
	if info.CCStart != 0 || info.CCEnd != 4 || info.PacketCount != 5 || info.HasDiscontinuity {
		t.Errorf("iteration summary = %+v, want cc 0..4, count 5, no discontinuity", info)
	}

	payload := d.GetPayload(0x100, info.IterationID, PayloadNormal)
	if len(payload.Data) == 0 || payload.Data[0] != cfg.payloadPattern {
		t.Errorf("payload[0] = %v, want %#x", payload.Data, cfg.payloadPattern)
	}
}

func TestDemuxerScenarioInterleavedPIDs(t *testing.T) {
	cfgA := defaultGeneratorConfig()
	cfgA.pid = 0x100
	cfgA.setPUSI = true
	cfgB := defaultGeneratorConfig()
	cfgB.pid = 0x101
	cfgB.setPUSI = true

	var stream []byte
	for i := 0; i < 3; i++ {
		ca, cb := cfgA, cfgB
		ca.startingCC = byte(i)
		cb.startingCC = byte(i)
		if i > 0 {
			ca.setPUSI, cb.setPUSI = false, false
		}
		stream = append(stream, generatePacket(ca)...)
		stream = append(stream, generatePacket(cb)...)
	}

	d := NewDemuxer()
	d.Feed(stream)

	pids := d.GetDiscoveredPIDs()
	if len(pids) != 2 {
		t.Fatalf("discovered PIDs = %v, want 2 entries", pids)
	}

	for _, pid := range []uint16{0x100, 0x101} {
		summary := d.GetIterationsSummary(pid)
		if len(summary) != 1 || summary[0].PacketCount != 3 {
			t.Errorf("pid %#x summary = %+v, want one iteration with packet_count=3", pid, summary)
		}
	}
}

func TestDemuxerScenarioGarbagePrefixThenValidPackets(t *testing.T) {
	garbage := make([]byte, 200)
	for i := range garbage {
		garbage[i] = 0x46
	}
	cfg := defaultGeneratorConfig()
	cfg.pid = 0x100
	cfg.setPUSI = true
	stream := append(garbage, generateSequence(10, cfg)...)

	d := NewDemuxer()
	d.Feed(stream)

	if !d.IsSynchronized() {
		t.Fatal("expected synchronization past the garbage prefix")
	}
	if len(d.GetIterationsSummary(0x100)) == 0 {
		t.Fatal("expected at least one iteration for 0x100")
	}
}

func TestDemuxerScenarioSystemPIDFiltered(t *testing.T) {
	cfg := defaultGeneratorConfig()
	cfg.pid = PIDPAT
	cfg.setPUSI = true
	stream := generateSequence(5, cfg)

	d := NewDemuxer()
	d.Feed(stream)

	if pids := d.GetDiscoveredPIDs(); len(pids) != 0 {
		t.Errorf("discovered PIDs = %v, want none (system PID filtered)", pids)
	}
}

func TestDemuxerScenarioTwoPacketsNeverSynchronizes(t *testing.T) {
	cfg := defaultGeneratorConfig()
	stream := generateSequence(2, cfg)

	d := NewDemuxer()
	d.Feed(stream)

	if d.IsSynchronized() {
		t.Fatal("expected no synchronization with only 2 packets (3-of-n rule)")
	}
}

func TestDemuxerScenarioNoValidPacketsNeverSynchronizes(t *testing.T) {
	var stream []byte
	for i := 0; i < 10; i++ {
		chunk := make([]byte, PacketSize)
		chunk[0] = SyncByte
		chunk[3] = 0x00 // adaptation_field_control == RESERVED, always rejected
		stream = append(stream, chunk...)
	}

	d := NewDemuxer()
	d.Feed(stream)

	if d.IsSynchronized() {
		t.Fatal("expected no synchronization when no packet ever parses")
	}
}

func TestDemuxerScenarioPATPMTDrivesPrograms(t *testing.T) {
	d := NewDemuxer()

	// Three repeats of the PAT, as a real stream retransmits PSI
	// periodically, gives the synchronizer a consistent 3-of-n chain
	// to acquire on before any elementary stream packet arrives.
	const pmtPID = 0x20
	pat := buildPAT(1, 1, pmtPID)
	var patPackets []byte
	for cc := byte(0); cc < 3; cc++ {
		patPackets = append(patPackets, wrapPSIAsPacket(PIDPAT, cc, pat)...)
	}
	d.Feed(patPackets)
	if !d.IsSynchronized() {
		t.Fatal("expected synchronization on the repeated PAT packets")
	}

	pmt := buildPMTTwoStreams(1, 0x100, StreamTypeH264Video, 0x100, StreamTypeAACAudio, 0x101)
	d.Feed(wrapPSIAsPacket(pmtPID, 0, pmt))

	cfgVideo := defaultGeneratorConfig()
	cfgVideo.pid = 0x100
	cfgVideo.setPUSI = true
	cfgAudio := defaultGeneratorConfig()
	cfgAudio.pid = 0x101
	cfgAudio.setPUSI = true

	d.Feed(generateSequence(5, cfgVideo))
	d.Feed(generateSequence(5, cfgAudio))

	programs := d.GetPrograms()
	if len(programs) != 1 {
		t.Fatalf("program count = %d, want 1", len(programs))
	}
	if programs[0].ProgramNumber != 1 {
		t.Errorf("program_number = %d, want 1", programs[0].ProgramNumber)
	}

	has100, has101 := false, false
	for _, pid := range programs[0].StreamPIDs {
		if pid == 0x100 {
			has100 = true
		}
		if pid == 0x101 {
			has101 = true
		}
	}
	if !has100 || !has101 {
		t.Errorf("stream_pids = %v, want to contain 0x100 and 0x101", programs[0].StreamPIDs)
	}
}

func TestDemuxerScenarioDiscontinuityIndicatorFlagsIteration(t *testing.T) {
	cfg := defaultGeneratorConfig()
	cfg.pid = 0x100
	cfg.setPUSI = true

	var stream []byte
	for i := 0; i < 3; i++ {
		c := cfg
		c.startingCC = byte(i)
		if i > 0 {
			c.setPUSI = false
		}
		stream = append(stream, generatePacket(c)...)
	}

	jump := cfg
	jump.startingCC = 10
	jump.includeAdaptation = true
	jump.setPUSI = false
	jumpFrame := generatePacket(jump)
	jumpFrame[5] |= 0x80 // discontinuity_indicator
	stream = append(stream, jumpFrame...)

	for i := 11; i < 13; i++ {
		c := cfg
		c.startingCC = byte(i)
		c.setPUSI = false
		stream = append(stream, generatePacket(c)...)
	}

	d := NewDemuxer()
	d.Feed(stream)

	if !d.IsSynchronized() {
		t.Fatal("expected sync to hold across the discontinuity")
	}

	summary := d.GetIterationsSummary(0x100)
	if len(summary) != 1 {
		t.Fatalf("iteration count = %d, want 1 (no PUSI seen after the first packet)", len(summary))
	}
	if !summary[0].HasDiscontinuity {
		t.Error("expected the iteration spanning the CC jump to be flagged has_discontinuity")
	}
}

func TestDemuxerSetProgramsTableFiltersUnlistedPIDs(t *testing.T) {
	d := NewDemuxer()
	d.SetProgramsTable(ProgramTable{Programs: map[uint16][]uint16{1: {0x100}}})

	cfgListed := defaultGeneratorConfig()
	cfgListed.pid = 0x100
	cfgListed.setPUSI = true
	cfgUnlisted := defaultGeneratorConfig()
	cfgUnlisted.pid = 0x101
	cfgUnlisted.setPUSI = true

	d.Feed(generateSequence(5, cfgListed))
	d.Feed(generateSequence(5, cfgUnlisted))

	pids := d.GetDiscoveredPIDs()
	if len(pids) != 1 || pids[0] != 0x100 {
		t.Fatalf("discovered PIDs = %v, want [0x100] (0x101 not in the installed table)", pids)
	}
}

func TestDemuxerSetProgramsTableRoundTripEquivalentToFreshStart(t *testing.T) {
	table := ProgramTable{Programs: map[uint16][]uint16{1: {0x100, 0x101}}}

	cfgA := defaultGeneratorConfig()
	cfgA.pid = 0x100
	cfgA.setPUSI = true
	cfgB := defaultGeneratorConfig()
	cfgB.pid = 0x101
	cfgB.setPUSI = true
	stream := append(generateSequence(5, cfgA), generateSequence(3, cfgB)...)

	fresh := NewDemuxer()
	fresh.SetProgramsTable(table)
	fresh.Feed(stream)

	dirty := NewDemuxer()
	dirty.SetProgramsTable(ProgramTable{Programs: map[uint16][]uint16{2: {0x102}}})
	dirty.Feed(generateSequence(4, defaultGeneratorConfig()))
	dirty.SetProgramsTable(table)
	dirty.ClearAll()
	dirty.Feed(stream)

	freshPIDs, dirtyPIDs := fresh.GetDiscoveredPIDs(), dirty.GetDiscoveredPIDs()
	if len(freshPIDs) != len(dirtyPIDs) {
		t.Fatalf("discovered PIDs = %v, want same count as fresh start %v", dirtyPIDs, freshPIDs)
	}
	for _, pid := range freshPIDs {
		freshSummary := fresh.GetIterationsSummary(pid)
		dirtySummary := dirty.GetIterationsSummary(pid)
		if len(freshSummary) != len(dirtySummary) {
			t.Fatalf("pid %#x iteration count = %d, want %d (same as fresh start)", pid, len(dirtySummary), len(freshSummary))
		}
		for i := range freshSummary {
			if freshSummary[i].PacketCount != dirtySummary[i].PacketCount {
				t.Errorf("pid %#x iteration %d packet_count = %d, want %d", pid, i, dirtySummary[i].PacketCount, freshSummary[i].PacketCount)
			}
		}
	}
}

// wrapPSIAsPacket wraps a complete PSI section (small enough to fit
// in one packet) as a single TS packet payload with a pointer field
// of 0 and PUSI set.
func wrapPSIAsPacket(pid uint16, cc byte, section []byte) []byte {
	pkt := make([]byte, PacketSize)
	pkt[0] = SyncByte
	pkt[1] = 0x40 | byte((pid>>8)&0x1F)
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | (cc & 0x0F) // payload only

	pkt[4] = 0x00 // pointer_field
	copy(pkt[5:], section)
	for i := 5 + len(section); i < PacketSize; i++ {
		pkt[i] = 0xFF
	}
	return pkt
}

// buildPMTTwoStreams constructs a PMT section listing two elementary
// streams, used only where a scenario needs more than buildPMT's
// single-stream shape.
func buildPMTTwoStreams(programNumber, pcrPID uint16, t1 StreamType, pid1 uint16, t2 StreamType, pid2 uint16) []byte {
	body := []byte{
		byte(programNumber >> 8), byte(programNumber),
		0xC1,
		0x00,
		0x00,
		byte(0xE0 | (pcrPID>>8)&0x1F), byte(pcrPID),
		0xF0, 0x00,
		byte(t1), byte(0xE0 | (pid1>>8)&0x1F), byte(pid1), 0xF0, 0x00,
		byte(t2), byte(0xE0 | (pid2>>8)&0x1F), byte(pid2), 0xF0, 0x00,
	}
	sectionLength := len(body) + 4

	section := []byte{TableIDPMT, byte(0x80 | (sectionLength>>8)&0x0F), byte(sectionLength)}
	section = append(section, body...)

	crc := CalculateCRC32(section)
	section = append(section, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))

	return section
}
