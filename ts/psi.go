package ts

// Table IDs for the PSI tables this package understands.
const (
	TableIDPAT = 0x00
	TableIDCAT = 0x01
	TableIDPMT = 0x02
	TableIDNIT = 0x40
)

// StreamType identifies the coding of a PMT elementary stream.
type StreamType uint8

const (
	StreamTypeReserved              StreamType = 0x00
	StreamTypeMPEG1Video            StreamType = 0x01
	StreamTypeMPEG2Video            StreamType = 0x02
	StreamTypeMPEG1Audio            StreamType = 0x03
	StreamTypeMPEG2Audio            StreamType = 0x04
	StreamTypePrivateSections       StreamType = 0x05
	StreamTypePrivateData           StreamType = 0x06
	StreamTypeMHEG                  StreamType = 0x07
	StreamTypeDSMCC                 StreamType = 0x08
	StreamTypeH222_1                StreamType = 0x09
	StreamTypeMPEG2MultiProto       StreamType = 0x0A
	StreamTypeMPEG2DSMCCUN          StreamType = 0x0B
	StreamTypeMPEG2DSMCCStream      StreamType = 0x0C
	StreamTypeMPEG2DSMCCSections    StreamType = 0x0D
	StreamTypeMPEG2Aux              StreamType = 0x0E
	StreamTypeAACAudio              StreamType = 0x0F
	StreamTypeMPEG4Visual           StreamType = 0x10
	StreamTypeMPEG4AudioLATM        StreamType = 0x11
	StreamTypeMPEG4FlexMuxPES       StreamType = 0x12
	StreamTypeMPEG4FlexMuxSections  StreamType = 0x13
	StreamTypeSyncDownload          StreamType = 0x14
	StreamTypeMetadataPES           StreamType = 0x15
	StreamTypeMetadataSections      StreamType = 0x16
	StreamTypeMetadataDataCarousel  StreamType = 0x17
	StreamTypeMetadataObjCarousel   StreamType = 0x18
	StreamTypeMetadataSyncDownload  StreamType = 0x19
	StreamTypeMPEG2IPMP             StreamType = 0x1A
	StreamTypeH264Video             StreamType = 0x1B
	StreamTypeMPEG4AudioRaw         StreamType = 0x1C
	StreamTypeMPEG4Text             StreamType = 0x1D
	StreamTypeAuxVideo              StreamType = 0x1E
	StreamTypeH264SVCVideo          StreamType = 0x1F
	StreamTypeH264MVCVideo          StreamType = 0x20
	StreamTypeJPEG2000Video         StreamType = 0x21
	StreamTypeMPEG2_3DVideo         StreamType = 0x22
	StreamTypeH265Video             StreamType = 0x24
)

// String returns a short human-readable name for the common stream
// types; every other value returns "Unknown".
func (t StreamType) String() string {
	switch t {
	case StreamTypeMPEG1Video:
		return "MPEG-1 Video"
	case StreamTypeMPEG2Video:
		return "MPEG-2 Video"
	case StreamTypeMPEG1Audio:
		return "MPEG-1 Audio"
	case StreamTypeMPEG2Audio:
		return "MPEG-2 Audio"
	case StreamTypePrivateData:
		return "Private Data"
	case StreamTypeAACAudio:
		return "AAC Audio"
	case StreamTypeMPEG4Visual:
		return "MPEG-4 Visual"
	case StreamTypeH264Video:
		return "H.264/AVC Video"
	case StreamTypeH265Video:
		return "H.265/HEVC Video"
	default:
		return "Unknown"
	}
}

// PSISectionHeader is the generic long-form PSI section header shared
// by PAT and PMT.
type PSISectionHeader struct {
	TableID                 uint8
	SectionSyntaxIndicator  bool
	SectionLength           uint16
	TableIDExtension        uint16
	VersionNumber           uint8
	CurrentNextIndicator    bool
	SectionNumber           uint8
	LastSectionNumber       uint8
}

// parseSectionHeader parses the PSI section header and returns the
// number of bytes consumed: 8 for the long form, 3 for the short form
// (no table_id_extension/version/section fields), or 0 if data is too
// short for the form its section_syntax_indicator announces.
func parseSectionHeader(data []byte) (PSISectionHeader, int) {
	var h PSISectionHeader
	if len(data) < 3 {
		return h, 0
	}

	h.TableID = data[0]
	h.SectionSyntaxIndicator = data[1]&0x80 != 0
	h.SectionLength = uint16(data[1]&0x0F)<<8 | uint16(data[2])

	if !h.SectionSyntaxIndicator {
		return h, 3
	}

	if len(data) < 8 {
		return h, 0
	}

	h.TableIDExtension = uint16(data[3])<<8 | uint16(data[4])
	h.VersionNumber = (data[5] >> 1) & 0x1F
	h.CurrentNextIndicator = data[5]&0x01 != 0
	h.SectionNumber = data[6]
	h.LastSectionNumber = data[7]

	return h, 8
}

// PATEntry maps a program number to its PMT PID (program_number 0
// names the NIT PID instead of a program).
type PATEntry struct {
	ProgramNumber uint16
	PID           uint16
}

// PAT is a parsed Program Association Table section.
type PAT struct {
	Header             PSISectionHeader
	TransportStreamID  uint16
	Programs           []PATEntry
	CRC32              uint32
}

// PMTPID returns the PMT PID for programNumber, or 0 if absent. The
// NIT entry (program_number 0) never matches.
func (p PAT) PMTPID(programNumber uint16) uint16 {
	for _, e := range p.Programs {
		if e.ProgramNumber == programNumber && e.ProgramNumber != 0 {
			return e.PID
		}
	}
	return 0
}

// ProgramNumbers returns every program number in the PAT, excluding
// the NIT entry.
func (p PAT) ProgramNumbers() []uint16 {
	result := make([]uint16, 0, len(p.Programs))
	for _, e := range p.Programs {
		if e.ProgramNumber != 0 {
			result = append(result, e.ProgramNumber)
		}
	}
	return result
}

// ParsePAT parses a complete PAT section, including CRC verification.
func ParsePAT(data []byte) (PAT, bool) {
	var pat PAT
	if len(data) < 8 {
		return pat, false
	}

	header, headerSize := parseSectionHeader(data)
	if headerSize == 0 {
		return pat, false
	}
	pat.Header = header

	if header.TableID != TableIDPAT {
		return pat, false
	}

	totalLength := 3 + int(header.SectionLength)
	if totalLength > len(data) {
		return pat, false
	}
	if !VerifyCRC32(data[:totalLength]) {
		return pat, false
	}

	pat.TransportStreamID = header.TableIDExtension

	entriesEnd := totalLength - 4
	offset := headerSize
	for offset+4 <= entriesEnd {
		programNumber := uint16(data[offset])<<8 | uint16(data[offset+1])
		pid := uint16(data[offset+2]&0x1F)<<8 | uint16(data[offset+3])
		pat.Programs = append(pat.Programs, PATEntry{ProgramNumber: programNumber, PID: pid})
		offset += 4
	}

	pat.CRC32 = uint32(data[entriesEnd])<<24 | uint32(data[entriesEnd+1])<<16 |
		uint32(data[entriesEnd+2])<<8 | uint32(data[entriesEnd+3])

	return pat, true
}

// PMTStreamInfo is one elementary stream entry in a PMT.
type PMTStreamInfo struct {
	StreamType    StreamType
	ElementaryPID uint16
	Descriptors   []byte
}

// PMT is a parsed Program Map Table section.
type PMT struct {
	Header              PSISectionHeader
	ProgramNumber       uint16
	PCRPID              uint16
	ProgramDescriptors  []byte
	Streams             []PMTStreamInfo
	CRC32               uint32
}

// PIDsByType returns the elementary PIDs carrying streamType.
func (p PMT) PIDsByType(streamType StreamType) []uint16 {
	var result []uint16
	for _, s := range p.Streams {
		if s.StreamType == streamType {
			result = append(result, s.ElementaryPID)
		}
	}
	return result
}

// AllPIDs returns every elementary PID listed in the PMT.
func (p PMT) AllPIDs() []uint16 {
	result := make([]uint16, 0, len(p.Streams))
	for _, s := range p.Streams {
		result = append(result, s.ElementaryPID)
	}
	return result
}

// StreamInfo returns the stream entry for pid, if present.
func (p PMT) StreamInfo(pid uint16) (PMTStreamInfo, bool) {
	for _, s := range p.Streams {
		if s.ElementaryPID == pid {
			return s, true
		}
	}
	return PMTStreamInfo{}, false
}

// ParsePMT parses a complete PMT section, including CRC verification.
func ParsePMT(data []byte) (PMT, bool) {
	var pmt PMT
	if len(data) < 12 {
		return pmt, false
	}

	header, headerSize := parseSectionHeader(data)
	if headerSize == 0 {
		return pmt, false
	}
	pmt.Header = header

	if header.TableID != TableIDPMT {
		return pmt, false
	}

	totalLength := 3 + int(header.SectionLength)
	if totalLength > len(data) {
		return pmt, false
	}
	if !VerifyCRC32(data[:totalLength]) {
		return pmt, false
	}

	pmt.ProgramNumber = header.TableIDExtension

	offset := headerSize
	pmt.PCRPID = uint16(data[offset]&0x1F)<<8 | uint16(data[offset+1])
	offset += 2

	programInfoLength := int(uint16(data[offset]&0x0F)<<8 | uint16(data[offset+1]))
	offset += 2

	if programInfoLength > 0 {
		if offset+programInfoLength > len(data) {
			return pmt, false
		}
		pmt.ProgramDescriptors = data[offset : offset+programInfoLength]
		offset += programInfoLength
	}

	streamsEnd := totalLength - 4
	for offset+5 <= streamsEnd {
		var s PMTStreamInfo
		s.StreamType = StreamType(data[offset])
		offset++

		s.ElementaryPID = uint16(data[offset]&0x1F)<<8 | uint16(data[offset+1])
		offset += 2

		esInfoLength := int(uint16(data[offset]&0x0F)<<8 | uint16(data[offset+1]))
		offset += 2

		if esInfoLength > 0 {
			if offset+esInfoLength > streamsEnd {
				return pmt, false
			}
			s.Descriptors = data[offset : offset+esInfoLength]
			offset += esInfoLength
		}

		pmt.Streams = append(pmt.Streams, s)
	}

	pmt.CRC32 = uint32(data[streamsEnd])<<24 | uint32(data[streamsEnd+1])<<16 |
		uint32(data[streamsEnd+2])<<8 | uint32(data[streamsEnd+3])

	return pmt, true
}

// crc32Table is the MPEG-2 PSI CRC-32 table: polynomial 0x04C11DB7,
// MSB-first, no input/output reflection.
var crc32Table = [256]uint32{
	0x00000000, 0x04c11db7, 0x09823b6e, 0x0d4326d9, 0x130476dc, 0x17c56b6b,
	0x1a864db2, 0x1e475005, 0x2608edb8, 0x22c9f00f, 0x2f8ad6d6, 0x2b4bcb61,
	0x350c9b64, 0x31cd86d3, 0x3c8ea00a, 0x384fbdbd, 0x4c11db70, 0x48d0c6c7,
	0x4593e01e, 0x4152fda9, 0x5f15adac, 0x5bd4b01b, 0x569796c2, 0x52568b75,
	0x6a1936c8, 0x6ed82b7f, 0x639b0da6, 0x675a1011, 0x791d4014, 0x7ddc5da3,
	0x709f7b7a, 0x745e66cd, 0x9823b6e0, 0x9ce2ab57, 0x91a18d8e, 0x95609039,
	0x8b27c03c, 0x8fe6dd8b, 0x82a5fb52, 0x8664e6e5, 0xbe2b5b58, 0xbaea46ef,
	0xb7a96036, 0xb3687d81, 0xad2f2d84, 0xa9ee3033, 0xa4ad16ea, 0xa06c0b5d,
	0xd4326d90, 0xd0f37027, 0xddb056fe, 0xd9714b49, 0xc7361b4c, 0xc3f706fb,
	0xceb42022, 0xca753d95, 0xf23a8028, 0xf6fb9d9f, 0xfbb8bb46, 0xff79a6f1,
	0xe13ef6f4, 0xe5ffeb43, 0xe8bccd9a, 0xec7dd02d, 0x34867077, 0x30476dc0,
	0x3d044b19, 0x39c556ae, 0x278206ab, 0x23431b1c, 0x2e003dc5, 0x2ac12072,
	0x128e9dcf, 0x164f8078, 0x1b0ca6a1, 0x1fcdbb16, 0x018aeb13, 0x054bf6a4,
	0x0808d07d, 0x0cc9cdca, 0x7897ab07, 0x7c56b6b0, 0x71159069, 0x75d48dde,
	0x6b93dddb, 0x6f52c06c, 0x6211e6b5, 0x66d0fb02, 0x5e9f46bf, 0x5a5e5b08,
	0x571d7dd1, 0x53dc6066, 0x4d9b3063, 0x495a2dd4, 0x44190b0d, 0x40d816ba,
	0xaca5c697, 0xa864db20, 0xa527fdf9, 0xa1e6e04e, 0xbfa1b04b, 0xbb60adfc,
	0xb6238b25, 0xb2e29692, 0x8aad2b2f, 0x8e6c3698, 0x832f1041, 0x87ee0df6,
	0x99a95df3, 0x9d684044, 0x902b669d, 0x94ea7b2a, 0xe0b41de7, 0xe4750050,
	0xe9362689, 0xedf73b3e, 0xf3b06b3b, 0xf771768c, 0xfa325055, 0xfef34de2,
	0xc6bcf05f, 0xc27dede8, 0xcf3ecb31, 0xcbffd686, 0xd5b88683, 0xd1799b34,
	0xdc3abded, 0xd8fba05a, 0x690ce0ee, 0x6dcdfd59, 0x608edb80, 0x644fc637,
	0x7a089632, 0x7ec98b85, 0x738aad5c, 0x774bb0eb, 0x4f040d56, 0x4bc510e1,
	0x46863638, 0x42472b8f, 0x5c007b8a, 0x58c1663d, 0x558240e4, 0x51435d53,
	0x251d3b9e, 0x21dc2629, 0x2c9f00f0, 0x285e1d47, 0x36194d42, 0x32d850f5,
	0x3f9b762c, 0x3b5a6b9b, 0x0315d626, 0x07d4cb91, 0x0a97ed48, 0x0e56f0ff,
	0x1011a0fa, 0x14d0bd4d, 0x19939b94, 0x1d528623, 0xf12f560e, 0xf5ee4bb9,
	0xf8ad6d60, 0xfc6c70d7, 0xe22b20d2, 0xe6ea3d65, 0xeba91bbc, 0xef68060b,
	0xd727bbb6, 0xd3e6a601, 0xdea580d8, 0xda649d6f, 0xc423cd6a, 0xc0e2d0dd,
	0xcda1f604, 0xc960ebb3, 0xbd3e8d7e, 0xb9ff90c9, 0xb4bcb610, 0xb07daba7,
	0xae3afba2, 0xaafbe615, 0xa7b8c0cc, 0xa379dd7b, 0x9b3660c6, 0x9ff77d71,
	0x92b45ba8, 0x9675461f, 0x8832161a, 0x8cf30bad, 0x81b02d74, 0x857130c3,
	0x5d8a9099, 0x594b8d2e, 0x5408abf7, 0x50c9b640, 0x4e8ee645, 0x4a4ffbf2,
	0x470cdd2b, 0x43cdc09c, 0x7b827d21, 0x7f436096, 0x7200464f, 0x76c15bf8,
	0x68860bfd, 0x6c47164a, 0x61043093, 0x65c52d24, 0x119b4be9, 0x155a565e,
	0x18197087, 0x1cd86d30, 0x029f3d35, 0x065e2082, 0x0b1d065b, 0x0fdc1bec,
	0x3793a651, 0x3352bbe6, 0x3e119d3f, 0x3ad08088, 0x2497d08d, 0x2056cd3a,
	0x2d15ebe3, 0x29d4f654, 0xc5a92679, 0xc1683bce, 0xcc2b1d17, 0xc8ea00a0,
	0xd6ad50a5, 0xd26c4d12, 0xdf2f6bcb, 0xdbee767c, 0xe3a1cbc1, 0xe760d676,
	0xea23f0af, 0xeee2ed18, 0xf0a5bd1d, 0xf464a0aa, 0xf9278673, 0xfde69bc4,
	0x89b8fd09, 0x8d79e0be, 0x803ac667, 0x84fbdbd0, 0x9abc8bd5, 0x9e7d9662,
	0x933eb0bb, 0x97ffad0c, 0xafb010b1, 0xab710d06, 0xa6322bdf, 0xa2f33668,
	0xbcb4666d, 0xb8757bda, 0xb5365d03, 0xb1f740b4,
}

// CalculateCRC32 computes the PSI CRC-32 over data.
func CalculateCRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crc32Table[((crc>>24)^uint32(b))&0xFF]
	}
	return crc
}

// VerifyCRC32 checks the trailing 4-byte CRC-32 of a PSI section
// against the CRC computed over the preceding bytes.
func VerifyCRC32(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	n := len(data)
	expected := uint32(data[n-4])<<24 | uint32(data[n-3])<<16 | uint32(data[n-2])<<8 | uint32(data[n-1])
	return CalculateCRC32(data[:n-4]) == expected
}

// psiAccumulator reassembles a PSI section from successive packet
// payloads on one PID, consuming the pointer field on the
// payload-unit-start packet.
type psiAccumulator struct {
	buffer         []byte
	expectedLength int
	complete       bool
	synced         bool
}

func newPSIAccumulator() *psiAccumulator {
	return &psiAccumulator{}
}

// addData feeds one packet's payload into the accumulator. It
// returns true once a complete section is available via section.
func (a *psiAccumulator) addData(data []byte, payloadUnitStart bool) bool {
	if payloadUnitStart {
		a.reset()

		if len(data) == 0 {
			a.synced = true
			return false
		}
		pointer := int(data[0])
		data = data[1:]

		if pointer >= len(data) {
			return false
		}
		data = data[pointer:]

		a.synced = true
	}

	if !a.synced {
		return false
	}

	a.buffer = append(a.buffer, data...)

	if a.expectedLength == 0 && len(a.buffer) >= 3 {
		sectionLength := uint16(a.buffer[1]&0x0F)<<8 | uint16(a.buffer[2])
		a.expectedLength = 3 + int(sectionLength)
	}

	if a.expectedLength > 0 && len(a.buffer) >= a.expectedLength {
		a.complete = true
		return true
	}

	return false
}

// section returns the completed section and resets the accumulator
// for the next one. It returns ok=false if no section is complete.
func (a *psiAccumulator) section() ([]byte, bool) {
	if !a.complete {
		return nil, false
	}
	section := make([]byte, a.expectedLength)
	copy(section, a.buffer[:a.expectedLength])
	a.reset()
	return section, true
}

func (a *psiAccumulator) reset() {
	a.buffer = nil
	a.expectedLength = 0
	a.complete = false
	a.synced = false
}
