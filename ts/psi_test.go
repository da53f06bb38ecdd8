package ts

import "testing"

// buildPAT constructs a well-formed PAT section with one program
// entry and a valid trailing CRC-32.
func buildPAT(transportStreamID uint16, programNumber, pmtPID uint16) []byte {
	body := []byte{
		byte(transportStreamID >> 8), byte(transportStreamID),
		0xC1, // version 0, current_next_indicator=1, reserved bits set
		0x00, // section_number
		0x00, // last_section_number
		byte(programNumber >> 8), byte(programNumber),
		byte(0xE0 | (pmtPID>>8)&0x1F), byte(pmtPID),
	}
	sectionLength := len(body) + 4 // +4 for CRC

	section := []byte{TableIDPAT, byte(0x80 | (sectionLength>>8)&0x0F), byte(sectionLength)}
	section = append(section, body...)

	crc := CalculateCRC32(section)
	section = append(section,
		byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))

	return section
}

// buildPMT constructs a well-formed PMT section with one elementary
// stream entry and a valid trailing CRC-32.
func buildPMT(programNumber, pcrPID uint16, streamType StreamType, elementaryPID uint16) []byte {
	body := []byte{
		byte(programNumber >> 8), byte(programNumber),
		0xC1,
		0x00,
		0x00,
		byte(0xE0 | (pcrPID>>8)&0x1F), byte(pcrPID),
		0xF0, 0x00, // program_info_length = 0
		byte(streamType),
		byte(0xE0 | (elementaryPID>>8)&0x1F), byte(elementaryPID),
		0xF0, 0x00, // es_info_length = 0
	}
	sectionLength := len(body) + 4

	section := []byte{TableIDPMT, byte(0x80 | (sectionLength>>8)&0x0F), byte(sectionLength)}
	section = append(section, body...)

	crc := CalculateCRC32(section)
	section = append(section,
		byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))

	return section
}

func TestVerifyCRC32RoundTrip(t *testing.T) {
	data := []byte{0x00, 0xB0, 0x0D, 0x00, 0x01, 0xC1, 0x00, 0x00, 0x00, 0x01, 0xE1, 0x00}
	crc := CalculateCRC32(data)
	section := append(append([]byte{}, data...), byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))

	if !VerifyCRC32(section) {
		t.Fatal("expected a freshly computed CRC to verify")
	}

	section[len(section)-1] ^= 0xFF
	if VerifyCRC32(section) {
		t.Fatal("expected a corrupted CRC to fail verification")
	}
}

func TestParsePATRoundTrip(t *testing.T) {
	section := buildPAT(1, 1, 0x100)

	pat, ok := ParsePAT(section)
	if !ok {
		t.Fatal("expected successful PAT parse")
	}
	if pat.TransportStreamID != 1 {
		t.Errorf("transport_stream_id = %d, want 1", pat.TransportStreamID)
	}
	if pat.PMTPID(1) != 0x100 {
		t.Errorf("PMTPID(1) = %#x, want %#x", pat.PMTPID(1), 0x100)
	}
}

func TestParsePATRejectsBadCRC(t *testing.T) {
	section := buildPAT(1, 1, 0x100)
	section[len(section)-1] ^= 0xFF

	if _, ok := ParsePAT(section); ok {
		t.Fatal("expected PAT parse to fail on bad CRC")
	}
}

func TestParsePMTRoundTrip(t *testing.T) {
	section := buildPMT(1, 0x100, StreamTypeH264Video, 0x100)

	pmt, ok := ParsePMT(section)
	if !ok {
		t.Fatal("expected successful PMT parse")
	}
	if pmt.ProgramNumber != 1 {
		t.Errorf("program_number = %d, want 1", pmt.ProgramNumber)
	}
	if pmt.PCRPID != 0x100 {
		t.Errorf("pcr_pid = %#x, want %#x", pmt.PCRPID, 0x100)
	}
	pids := pmt.PIDsByType(StreamTypeH264Video)
	if len(pids) != 1 || pids[0] != 0x100 {
		t.Errorf("PIDsByType(H264) = %v, want [0x100]", pids)
	}
}

func TestPSIAccumulatorReassemblesAcrossPackets(t *testing.T) {
	section := buildPAT(1, 1, 0x100)

	acc := newPSIAccumulator()
	// Packet 1: PUSI set, pointer_field=0, first half of the section.
	first := append([]byte{0x00}, section[:6]...)
	if acc.addData(first, true) {
		t.Fatal("should not be complete after only part of the section")
	}

	// Packet 2: remainder.
	second := section[6:]
	if !acc.addData(second, false) {
		t.Fatal("expected completeness once the full section has been fed")
	}

	got, ok := acc.section()
	if !ok {
		t.Fatal("expected a completed section to be available")
	}
	if len(got) != len(section) {
		t.Fatalf("section length = %d, want %d", len(got), len(section))
	}
}

func TestPSIAccumulatorDiscardsPriorDataOnNewPUSI(t *testing.T) {
	acc := newPSIAccumulator()
	acc.addData([]byte{0x00, 0xAA, 0xBB}, true)

	section := buildPAT(2, 1, 0x200)
	first := append([]byte{0x00}, section...)
	if !acc.addData(first, true) {
		t.Fatal("expected the new PUSI to start and complete a fresh section")
	}

	got, _ := acc.section()
	pat, ok := ParsePAT(got)
	if !ok {
		t.Fatal("expected the reassembled section to parse as a valid PAT")
	}
	if pat.TransportStreamID != 2 {
		t.Errorf("transport_stream_id = %d, want 2 (stale buffered bytes should have been discarded)", pat.TransportStreamID)
	}
}
