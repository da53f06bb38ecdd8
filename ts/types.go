// Package ts implements a resynchronizing demultiplexer for MPEG-2
// Transport Streams (ISO/IEC 13818-1). It accepts arbitrary byte
// chunks, recovers packet framing in the presence of noise, and
// groups each PID's packets into ordered iterations of normal and
// private payload.
package ts

// Wire-format constants any implementation of this protocol must honor.
const (
	PacketSize = 188
	SyncByte   = 0x47

	// MaxBufferSize bounds the sliding byte buffer the Demuxer keeps
	// while hunting for sync. It is diagnostic-only: iterations are
	// assembled as bytes flow in, not sliced out of this buffer, so
	// trimming it never truncates output.
	MaxBufferSize = PacketSize * 100
)

// System PIDs are never routed to the iteration assembler.
const (
	PIDPAT  uint16 = 0x0000
	PIDCAT  uint16 = 0x0001
	PIDTSDT uint16 = 0x0002
	PIDNull uint16 = 0x1FFF
)

func isSystemPID(pid uint16) bool {
	return pid == PIDPAT || pid == PIDCAT || pid == PIDTSDT || pid == PIDNull
}

func isProgramStream(pid uint16) bool {
	return !isSystemPID(pid)
}

// AdaptationFieldControl is the 2-bit adaptation_field_control value.
type AdaptationFieldControl uint8

const (
	AdaptationReserved           AdaptationFieldControl = 0x00
	AdaptationPayloadOnly        AdaptationFieldControl = 0x01
	AdaptationAdaptationOnly     AdaptationFieldControl = 0x02
	AdaptationAdaptationPayload  AdaptationFieldControl = 0x03
)

// PayloadType distinguishes normal elementary-stream bytes from the
// adaptation field's transport_private_data bytes.
type PayloadType uint8

const (
	PayloadNormal PayloadType = iota
	PayloadPrivate
)

func (t PayloadType) String() string {
	if t == PayloadPrivate {
		return "PRIVATE"
	}
	return "NORMAL"
}

// TSPacketHeader is the parsed 4-byte transport packet header.
type TSPacketHeader struct {
	SyncByte                 byte
	TransportErrorIndicator  bool
	PayloadUnitStart         bool
	TransportPriority        bool
	PID                      uint16
	ScramblingControl        uint8
	AdaptationControl        AdaptationFieldControl
	ContinuityCounter        uint8
}

// TSAdaptationField is the parsed adaptation field, when present.
type TSAdaptationField struct {
	Length                    uint8
	DiscontinuityIndicator    bool
	RandomAccessIndicator     bool
	ESPriorityIndicator       bool
	PCRFlag                   bool
	OPCRFlag                  bool
	SplicingPointFlag         bool
	TransportPrivateDataFlag  bool
	AdaptationExtensionFlag   bool

	PCRBase      uint64 // 33-bit, 90 kHz
	PCRExt       uint16 // 9-bit, 27 MHz remainder
	PCRValid     bool
	OPCRBase     uint64
	OPCRExt      uint16
	OPCRValid    bool

	PrivateData []byte // borrows from the packet's 188-byte frame
}

// TSPacket is the fully parsed view over one 188-byte frame.
type TSPacket struct {
	Header         TSPacketHeader
	Adaptation     *TSAdaptationField
	Payload        []byte // borrows from the packet's 188-byte frame
	HasPayload     bool
}

func (p *TSPacket) hasAdaptation() bool { return p.Adaptation != nil }

// PayloadSegment is a (offset, length) window into an iteration's byte
// arena, tagged normal or private. Segments never hold absolute
// pointers so arena growth never invalidates them.
type PayloadSegment struct {
	Type   PayloadType
	Offset int
	Length int
}

// IterationData is one grouped unit of a PID's packets, delimited by
// the payload-unit-start flag.
type IterationData struct {
	Payloads []PayloadSegment
	Arena    []byte

	DiscontinuityDetected  bool
	PayloadUnitStartSeen   bool

	FirstCC     uint8
	LastCC      uint8
	PacketCount int
}

// PayloadBuffer is a read-only view returned by Demuxer query methods.
// It aliases storage owned by the Demuxer and is valid only until the
// next mutating call on that Demuxer.
type PayloadBuffer struct {
	Data []byte
	Type PayloadType
}

// IterationInfo summarizes one finalized iteration.
type IterationInfo struct {
	IterationID        uint64
	PayloadNormalSize  int
	PayloadPrivateSize int
	HasDiscontinuity   bool
	CCStart            uint8
	CCEnd              uint8
	PacketCount        int
}

// ProgramInfo summarizes one program, either from a parsed PMT or, in
// the absence of PSI, a single discovered PID treated as its own
// program.
type ProgramInfo struct {
	ProgramNumber     uint16
	StreamPIDs        []uint16
	TotalPayloadSize  int
	IterationCount    int
	HasDiscontinuity  bool
}

// ProgramTable is an optional PID allowlist: program number to the
// PIDs that belong to it (PMT PID's elementary streams). The Demuxer
// uses it only to filter PIDs; GetPrograms does not read it.
type ProgramTable struct {
	Programs map[uint16][]uint16
}
