package ts

// PES stream IDs (ISO/IEC 13818-1 Table 2-22).
const (
	StreamIDProgramStreamMap    = 0xBC
	StreamIDPrivateStream1      = 0xBD
	StreamIDPaddingStream       = 0xBE
	StreamIDPrivateStream2      = 0xBF
	StreamIDAudioStreamMin      = 0xC0
	StreamIDAudioStreamMax      = 0xDF
	StreamIDVideoStreamMin      = 0xE0
	StreamIDVideoStreamMax      = 0xEF
	StreamIDECM                 = 0xF0
	StreamIDEMM                 = 0xF1
	StreamIDDSMCC               = 0xF2
	StreamID13522                = 0xF3
	StreamIDH222A                = 0xF4
	StreamIDH222B                = 0xF5
	StreamIDH222C                = 0xF6
	StreamIDH222D                = 0xF7
	StreamIDH222E                = 0xF8
	StreamIDAncillary            = 0xF9
	StreamIDProgramStreamDirectory = 0xFF
)

const timestampMax = int64(1) << 33

// Timestamp is a 33-bit, 90 kHz PTS or DTS value.
type Timestamp struct {
	Value uint64
}

// Seconds returns the timestamp converted to seconds.
func (t Timestamp) Seconds() float64 { return float64(t.Value) / 90000.0 }

// Milliseconds returns the timestamp converted to milliseconds.
func (t Timestamp) Milliseconds() float64 { return float64(t.Value) / 90.0 }

// IsValid reports whether the value fits in 33 bits.
func (t Timestamp) IsValid() bool { return t.Value < (1 << 33) }

// timestampDifference returns t2-t1 in 90 kHz ticks, wrap-aware modulo 2^33.
func timestampDifference(t1, t2 Timestamp) int64 {
	diff := int64(t2.Value) - int64(t1.Value)
	half := timestampMax / 2
	if diff > half {
		diff -= timestampMax
	} else if diff < -half {
		diff += timestampMax
	}
	return diff
}

func timestampDifferenceMs(t1, t2 Timestamp) float64 {
	return float64(timestampDifference(t1, t2)) / 90.0
}

// PESHeader is a parsed PES packet header.
type PESHeader struct {
	StreamID      uint8
	PacketLength  uint16 // 0 means unbounded

	HasOptionalFields bool

	ScramblingControl      uint8
	Priority               bool
	DataAlignmentIndicator bool
	Copyright              bool
	OriginalOrCopy         bool

	PTSDTSFlags uint8
	HasPTS      bool
	HasDTS      bool

	ESCRFlag              bool
	ESRateFlag            bool
	DSMTrickModeFlag      bool
	AdditionalCopyInfoFlag bool
	CRCFlag               bool
	ExtensionFlag         bool

	HeaderDataLength uint8

	PTS    Timestamp
	HasPTSValue bool
	DTS    Timestamp
	HasDTSValue bool
}

// IsVideoStream reports whether StreamID falls in the video range.
func (h PESHeader) IsVideoStream() bool {
	return h.StreamID >= StreamIDVideoStreamMin && h.StreamID <= StreamIDVideoStreamMax
}

// IsAudioStream reports whether StreamID falls in the audio range.
func (h PESHeader) IsAudioStream() bool {
	return h.StreamID >= StreamIDAudioStreamMin && h.StreamID <= StreamIDAudioStreamMax
}

// HeaderSize returns the total PES header size in bytes: 6 for
// streams without optional fields, 9+header_data_length otherwise.
func (h PESHeader) HeaderSize() int {
	if !h.HasOptionalFields {
		return 6
	}
	return 9 + int(h.HeaderDataLength)
}

// streamHasNoOptionalFields reports whether streamID is one of the
// stream IDs that carry no optional PES header fields per ISO/IEC
// 13818-1.
func streamHasNoOptionalFields(streamID uint8) bool {
	switch streamID {
	case StreamIDProgramStreamMap, StreamIDPrivateStream2, StreamIDECM, StreamIDEMM,
		StreamIDProgramStreamDirectory, StreamIDDSMCC, StreamIDH222E:
		return true
	}
	return false
}

// VerifyPESStartCode reports whether data begins with the 0x000001
// PES start code prefix.
func VerifyPESStartCode(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

// extractTimestamp decodes a 5-byte PTS or DTS field.
func extractTimestamp(b []byte) Timestamp {
	var ts uint64
	ts |= uint64(b[0]&0x0E) >> 1 << 30
	ts |= uint64(b[1]) << 22
	ts |= uint64(b[2]&0xFE) >> 1 << 15
	ts |= uint64(b[3]) << 7
	ts |= uint64(b[4]&0xFE) >> 1
	return Timestamp{Value: ts}
}

// ParsePESHeader parses the PES header at the start of data.
func ParsePESHeader(data []byte) (PESHeader, bool) {
	var h PESHeader
	if len(data) < 6 {
		return h, false
	}
	if !VerifyPESStartCode(data) {
		return h, false
	}

	h.StreamID = data[3]
	h.PacketLength = uint16(data[4])<<8 | uint16(data[5])

	h.HasOptionalFields = !streamHasNoOptionalFields(h.StreamID)
	if !h.HasOptionalFields {
		return h, true
	}

	if len(data) < 9 {
		return h, false
	}

	flags1 := data[6]
	h.ScramblingControl = (flags1 >> 4) & 0x03
	h.Priority = flags1&0x08 != 0
	h.DataAlignmentIndicator = flags1&0x04 != 0
	h.Copyright = flags1&0x02 != 0
	h.OriginalOrCopy = flags1&0x01 != 0

	flags2 := data[7]
	h.PTSDTSFlags = (flags2 >> 6) & 0x03
	h.HasPTS = h.PTSDTSFlags == 0x02 || h.PTSDTSFlags == 0x03
	h.HasDTS = h.PTSDTSFlags == 0x03

	h.ESCRFlag = flags2&0x20 != 0
	h.ESRateFlag = flags2&0x10 != 0
	h.DSMTrickModeFlag = flags2&0x08 != 0
	h.AdditionalCopyInfoFlag = flags2&0x04 != 0
	h.CRCFlag = flags2&0x02 != 0
	h.ExtensionFlag = flags2&0x01 != 0

	h.HeaderDataLength = data[8]

	totalHeaderSize := 9 + int(h.HeaderDataLength)
	if len(data) < totalHeaderSize {
		return h, false
	}

	pos := 9
	if h.HasPTS {
		if pos+5 > len(data) {
			return h, false
		}
		h.PTS = extractTimestamp(data[pos : pos+5])
		h.HasPTSValue = true
		pos += 5
	}
	if h.HasDTS {
		if pos+5 > len(data) {
			return h, false
		}
		h.DTS = extractTimestamp(data[pos : pos+5])
		h.HasDTSValue = true
		pos += 5
	}

	return h, true
}

// PESPacket is a fully reassembled PES packet.
type PESPacket struct {
	Header  PESHeader
	Payload []byte
}

// ParsePESPacket parses a complete PES packet, including its payload.
func ParsePESPacket(data []byte) (PESPacket, bool) {
	var pkt PESPacket
	header, ok := ParsePESHeader(data)
	if !ok {
		return pkt, false
	}
	pkt.Header = header

	headerSize := header.HeaderSize()
	if headerSize > len(data) {
		return pkt, false
	}

	pkt.Payload = data[headerSize:]
	return pkt, true
}

// pesAccumulator reassembles one PES packet from successive packet
// payloads on one PID. For unbounded packets (pes_packet_length==0,
// typical for video) it reports completeness as soon as the header
// is fully present; the caller is expected to extract the packet
// when the next payload-unit-start packet arrives, since addData
// silently discards the buffer on the next PUSI without that call.
type pesAccumulator struct {
	buffer   []byte
	synced   bool
	complete bool
}

func newPESAccumulator() *pesAccumulator {
	return &pesAccumulator{}
}

func (a *pesAccumulator) addData(data []byte, payloadUnitStart bool) bool {
	if len(data) == 0 {
		return false
	}

	if payloadUnitStart {
		a.reset()
		a.synced = true
	}

	if !a.synced {
		return false
	}

	a.buffer = append(a.buffer, data...)
	return a.parseAndCheckComplete()
}

func (a *pesAccumulator) parseAndCheckComplete() bool {
	if len(a.buffer) < 6 {
		return false
	}

	if !VerifyPESStartCode(a.buffer) {
		a.reset()
		return false
	}

	pesPacketLength := uint16(a.buffer[4])<<8 | uint16(a.buffer[5])

	if pesPacketLength == 0 {
		header, ok := ParsePESHeader(a.buffer)
		if ok && len(a.buffer) >= header.HeaderSize() {
			a.complete = true
			return true
		}
		return false
	}

	expectedLength := 6 + int(pesPacketLength)
	if len(a.buffer) >= expectedLength {
		a.complete = true
		return true
	}

	return false
}

// packet returns the completed PES packet and resets the
// accumulator, or ok=false if not yet complete.
func (a *pesAccumulator) packet() (PESPacket, bool) {
	if !a.complete {
		return PESPacket{}, false
	}
	pkt, ok := ParsePESPacket(a.buffer)
	if ok {
		a.reset()
	}
	return pkt, ok
}

func (a *pesAccumulator) reset() {
	a.buffer = nil
	a.synced = false
	a.complete = false
}
