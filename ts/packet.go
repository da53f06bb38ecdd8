package ts

// ParsePacket parses exactly one 188-byte transport packet. It
// returns ok=false for anything the wire format rejects: a missing
// sync byte, the transport error indicator, a reserved adaptation
// control value, or an adaptation field that overruns the packet.
func ParsePacket(data []byte) (TSPacket, bool) {
	var pkt TSPacket
	if len(data) != PacketSize {
		return pkt, false
	}

	pkt.Header.SyncByte = data[0]
	if pkt.Header.SyncByte != SyncByte {
		return pkt, false
	}

	hdr := newBitReader(data[1:4])
	pkt.Header.TransportErrorIndicator = hdr.readBit(1) != 0
	pkt.Header.PayloadUnitStart = hdr.readBit(1) != 0
	pkt.Header.TransportPriority = hdr.readBit(1) != 0
	pidHigh := uint16(hdr.readBit(5))
	pidLow := uint16(hdr.readBit(8))
	pkt.Header.PID = pidHigh<<8 | pidLow

	pkt.Header.ScramblingControl = uint8(hdr.readBit(2))
	pkt.Header.AdaptationControl = AdaptationFieldControl(hdr.readBit(2))
	pkt.Header.ContinuityCounter = uint8(hdr.readBit(4))

	if pkt.Header.TransportErrorIndicator {
		return pkt, false
	}
	if pkt.Header.AdaptationControl == AdaptationReserved {
		return pkt, false
	}

	offset := 4

	switch pkt.Header.AdaptationControl {
	case AdaptationAdaptationOnly, AdaptationAdaptationPayload:
		af, n, ok := parseAdaptationField(data, offset)
		if !ok {
			return pkt, false
		}
		pkt.Adaptation = af
		offset += n
	}

	switch pkt.Header.AdaptationControl {
	case AdaptationPayloadOnly, AdaptationAdaptationPayload:
		if offset > PacketSize {
			return pkt, false
		}
		pkt.HasPayload = true
		pkt.Payload = data[offset:PacketSize]
	}

	return pkt, true
}

// parseAdaptationField parses the adaptation field starting at
// offset (the length byte). It returns the field and the number of
// bytes consumed (1 + adaptation_field_length), including the length
// byte itself.
func parseAdaptationField(data []byte, offset int) (*TSAdaptationField, int, bool) {
	if offset >= PacketSize {
		return nil, 0, false
	}

	af := &TSAdaptationField{}
	af.Length = data[offset]
	consumed := 1 + int(af.Length)

	if offset+consumed > PacketSize {
		return nil, 0, false
	}
	if af.Length == 0 {
		return af, consumed, true
	}

	end := offset + consumed
	pos := offset + 1

	flagsReader := newBitReader(data[pos : pos+1])
	pos++
	af.DiscontinuityIndicator = flagsReader.readBit(1) != 0
	af.RandomAccessIndicator = flagsReader.readBit(1) != 0
	af.ESPriorityIndicator = flagsReader.readBit(1) != 0
	af.PCRFlag = flagsReader.readBit(1) != 0
	af.OPCRFlag = flagsReader.readBit(1) != 0
	af.SplicingPointFlag = flagsReader.readBit(1) != 0
	af.TransportPrivateDataFlag = flagsReader.readBit(1) != 0
	af.AdaptationExtensionFlag = flagsReader.readBit(1) != 0

	if af.PCRFlag {
		if pos+6 > end {
			return nil, 0, false
		}
		af.PCRBase, af.PCRExt = decodePCR(data[pos : pos+6])
		af.PCRValid = af.PCRBase < (1<<33) && af.PCRExt < 300
		pos += 6
	}

	if af.OPCRFlag {
		if pos+6 > end {
			return nil, 0, false
		}
		af.OPCRBase, af.OPCRExt = decodePCR(data[pos : pos+6])
		af.OPCRValid = af.OPCRBase < (1<<33) && af.OPCRExt < 300
		pos += 6
	}

	if af.SplicingPointFlag {
		if pos+1 > end {
			return nil, 0, false
		}
		pos++
	}

	if af.TransportPrivateDataFlag {
		if pos+1 > end {
			return nil, 0, false
		}
		af.PrivateData = nil // set below once length is known
		privLen := int(data[pos])
		pos++
		if pos+privLen > end {
			return nil, 0, false
		}
		af.PrivateData = data[pos : pos+privLen]
		pos += privLen
	}

	// adaptation_field_extension, and any reserved stuffing bytes,
	// are skipped: nothing past private data is exposed by this codec.

	return af, consumed, true
}

// decodePCR decodes the 6-byte PCR (or OPCR) field per ISO/IEC
// 13818-1: 33-bit base, 6 reserved bits, 9-bit extension.
func decodePCR(b []byte) (base uint64, ext uint16) {
	base = uint64(b[0])<<25 | uint64(b[1])<<17 | uint64(b[2])<<9 | uint64(b[3])<<1 | uint64(b[4]>>7)&1
	ext = uint16(b[4]&0x01)<<8 | uint16(b[5])
	return base, ext
}
