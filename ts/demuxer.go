package ts

// Demuxer is the top-level state machine: it owns the sliding byte
// buffer, the synchronizer, per-PID in-progress iterations, finalized
// storage, the PSI accumulators/parsed tables, and the PCR manager.
// A single goroutine must own a Demuxer; it does no internal locking.
type Demuxer struct {
	buffer *byteBuffer
	sync   *synchronizer

	storage      *streamStorage
	current      map[uint16]*IterationData
	currentID    map[uint16]uint64
	lastCC       map[uint16]uint8

	programsTableSet  bool
	knownProgramPIDs  map[uint16]bool

	patAccumulator  *psiAccumulator
	pmtAccumulators map[uint16]*psiAccumulator
	parsedPAT       *PAT
	parsedPMTs      map[uint16]PMT // by program_number

	pcrManager *PCRManager

	totalPacketsProcessed uint64

	logger Logger
}

// NewDemuxer returns a Demuxer ready to accept fed bytes.
func NewDemuxer() *Demuxer {
	return &Demuxer{
		buffer:          newByteBuffer(),
		sync:            newSynchronizer(),
		storage:         newStreamStorage(),
		current:         make(map[uint16]*IterationData),
		currentID:       make(map[uint16]uint64),
		lastCC:          make(map[uint16]uint8),
		pmtAccumulators: make(map[uint16]*psiAccumulator),
		parsedPMTs:      make(map[uint16]PMT),
		pcrManager:      newPCRManager(),
		logger:          noopLogger{},
	}
}

// SetLogger installs the sink used for opt-in diagnostic tracing
// (resync events, PSI CRC/parse drops, PCR discontinuities). Passing nil
// restores the no-op default.
func (d *Demuxer) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	d.logger = l
}

// Feed appends data to the internal buffer and processes every
// complete packet it can extract. Empty input is a no-op. Input larger
// than the buffer's free space is appended and processed in pieces, so
// no byte is trimmed from the buffer before it has been processed.
func (d *Demuxer) Feed(data []byte) {
	for len(data) > 0 {
		n := MaxBufferSize - d.buffer.len()
		if n < PacketSize {
			n = PacketSize
		}
		if n > len(data) {
			n = len(data)
		}
		d.buffer.append(data[:n])
		d.processBuffer()
		data = data[n:]
	}
}

func (d *Demuxer) processBuffer() {
	if !d.sync.acquired {
		if !d.sync.acquire(d.buffer.bytes()) {
			return
		}
	}

	for d.sync.offset+PacketSize <= d.buffer.len() {
		buf := d.buffer.bytes()
		frame := buf[d.sync.offset : d.sync.offset+PacketSize]

		if frame[0] != SyncByte {
			d.logger.Debugf("ts: lost sync at buffer offset %d: missing sync byte", d.sync.offset)
			d.sync.lost()
			return
		}

		pkt, ok := ParsePacket(frame)
		if !ok {
			d.logger.Debugf("ts: lost sync at buffer offset %d: packet failed to parse", d.sync.offset)
			d.sync.lost()
			return
		}

		d.processPSIPacket(pkt)
		d.processPCR(pkt)
		d.addPacketToStorage(pkt)

		d.sync.offset += PacketSize
		d.totalPacketsProcessed++
	}

	if d.sync.offset > 0 {
		d.buffer.trimFront(d.sync.offset)
		d.sync.offset = 0
	}
}

// addPacketToStorage is the IterationAssembler: it filters system and
// unlisted PIDs, opens/finalizes iterations on PUSI, appends private
// and normal payload segments to the iteration arena, and tracks
// continuity and discontinuity.
func (d *Demuxer) addPacketToStorage(pkt TSPacket) {
	pid := pkt.Header.PID

	if isSystemPID(pid) {
		return
	}
	if d.programsTableSet && !d.knownProgramPIDs[pid] {
		return
	}

	if d.current[pid] == nil {
		d.startIteration(pid, pkt)
	} else if pkt.Header.PayloadUnitStart {
		d.finalizeIteration(pid)
		d.startIteration(pid, pkt)
	}

	iter := d.current[pid]
	iter.LastCC = pkt.Header.ContinuityCounter
	iter.PacketCount++

	if lastCC, ok := d.lastCC[pid]; ok {
		expected := (lastCC + 1) % 16
		if pkt.Header.ContinuityCounter != expected {
			if pkt.Adaptation != nil && pkt.Adaptation.DiscontinuityIndicator {
				iter.DiscontinuityDetected = true
			}
		}
	}
	d.lastCC[pid] = pkt.Header.ContinuityCounter

	if pkt.Adaptation != nil && len(pkt.Adaptation.PrivateData) > 0 {
		d.appendSegment(iter, PayloadPrivate, pkt.Adaptation.PrivateData)
	}

	if pkt.HasPayload && len(pkt.Payload) > 0 {
		d.appendSegment(iter, PayloadNormal, pkt.Payload)
	}
}

func (d *Demuxer) startIteration(pid uint16, pkt TSPacket) {
	d.currentID[pid] = d.storage.generateIterationID()
	d.current[pid] = &IterationData{
		FirstCC:              pkt.Header.ContinuityCounter,
		PayloadUnitStartSeen: pkt.Header.PayloadUnitStart,
	}
}

func (d *Demuxer) appendSegment(iter *IterationData, typ PayloadType, data []byte) {
	offset := len(iter.Arena)
	iter.Arena = append(iter.Arena, data...)
	iter.Payloads = append(iter.Payloads, PayloadSegment{Type: typ, Offset: offset, Length: len(data)})
}

func (d *Demuxer) finalizeIteration(pid uint16) {
	iter, ok := d.current[pid]
	if !ok {
		return
	}
	stream := d.storage.getOrCreateStream(pid)
	stream.addIteration(d.currentID[pid], *iter)

	delete(d.current, pid)
	delete(d.currentID, pid)
}

func (d *Demuxer) finalizeAllIterations() {
	pids := make([]uint16, 0, len(d.current))
	for pid := range d.current {
		pids = append(pids, pid)
	}
	for _, pid := range pids {
		d.finalizeIteration(pid)
	}
}

// processPSIPacket feeds PAT/PMT accumulators and promotes completed
// sections into parsedPAT/parsedPMTs.
func (d *Demuxer) processPSIPacket(pkt TSPacket) {
	pid := pkt.Header.PID

	if pid == PIDPAT && pkt.HasPayload {
		if d.patAccumulator == nil {
			d.patAccumulator = newPSIAccumulator()
		}
		if d.patAccumulator.addData(pkt.Payload, pkt.Header.PayloadUnitStart) {
			if section, ok := d.patAccumulator.section(); ok {
				if pat, ok := ParsePAT(section); ok {
					d.parsedPAT = &pat
					for _, entry := range pat.Programs {
						if entry.ProgramNumber != 0 {
							if _, exists := d.pmtAccumulators[entry.PID]; !exists {
								d.pmtAccumulators[entry.PID] = newPSIAccumulator()
							}
						}
					}
				} else {
					d.logger.Debugf("ts: PAT section discarded: CRC mismatch or malformed")
				}
			}
		}
		return
	}

	if acc, ok := d.pmtAccumulators[pid]; ok && pkt.HasPayload {
		if acc.addData(pkt.Payload, pkt.Header.PayloadUnitStart) {
			if section, ok := acc.section(); ok {
				if pmt, ok := ParsePMT(section); ok {
					d.parsedPMTs[pmt.ProgramNumber] = pmt
				} else {
					d.logger.Debugf("ts: PMT section on pid 0x%04x discarded: CRC mismatch or malformed", pid)
				}
			}
		}
	}
}

func (d *Demuxer) processPCR(pkt TSPacket) {
	if pkt.Adaptation == nil || !pkt.Adaptation.PCRFlag {
		return
	}
	pcr := PCR{Base: pkt.Adaptation.PCRBase, Extension: pkt.Adaptation.PCRExt}
	if !pcr.IsValid() {
		return
	}
	pid := pkt.Header.PID
	wasDiscontinuous := false
	if t := d.pcrManager.Tracker(pid); t != nil {
		wasDiscontinuous = t.Stats().DiscontinuityDetected
	}
	d.pcrManager.Add(pid, pcr, d.totalPacketsProcessed, pkt.Header.ContinuityCounter)
	if t := d.pcrManager.Tracker(pid); t != nil && t.Stats().DiscontinuityDetected && !wasDiscontinuous {
		d.logger.Debugf("ts: PCR discontinuity detected on pid 0x%04x", pid)
	}
}

// GetPrograms flushes pending iterations, then reports one
// ProgramInfo per parsed PMT (or, lacking any PSI, one per discovered
// program-stream PID).
func (d *Demuxer) GetPrograms() []ProgramInfo {
	d.finalizeAllIterations()

	var programs []ProgramInfo

	if len(d.parsedPMTs) > 0 {
		for progNum, pmt := range d.parsedPMTs {
			info := ProgramInfo{ProgramNumber: progNum}
			for _, s := range pmt.Streams {
				info.StreamPIDs = append(info.StreamPIDs, s.ElementaryPID)

				if stream, ok := d.storage.getStream(s.ElementaryPID); ok {
					info.IterationCount += len(stream.iterations)
					if stream.hasDiscontinuity {
						info.HasDiscontinuity = true
					}
					for _, e := range stream.iterations {
						for _, seg := range e.data.Payloads {
							info.TotalPayloadSize += seg.Length
						}
					}
				}
			}
			programs = append(programs, info)
		}
		return programs
	}

	for pid, stream := range d.storage.streams {
		if !isProgramStream(pid) {
			continue
		}
		info := ProgramInfo{StreamPIDs: []uint16{pid}}
		info.IterationCount = len(stream.iterations)
		info.HasDiscontinuity = stream.hasDiscontinuity
		for _, e := range stream.iterations {
			for _, seg := range e.data.Payloads {
				info.TotalPayloadSize += seg.Length
			}
		}
		programs = append(programs, info)
	}

	return programs
}

// GetDiscoveredPIDs flushes pending iterations, then returns every
// PID with stream state.
func (d *Demuxer) GetDiscoveredPIDs() []uint16 {
	d.finalizeAllIterations()
	return d.storage.discoveredPIDs()
}

// GetIterationsSummary flushes pending iterations, then returns a
// summary of every finalized iteration for pid, in arrival order.
func (d *Demuxer) GetIterationsSummary(pid uint16) []IterationInfo {
	d.finalizeAllIterations()

	stream, ok := d.storage.getStream(pid)
	if !ok {
		return nil
	}

	result := make([]IterationInfo, 0, len(stream.iterations))
	for _, e := range stream.iterations {
		info := IterationInfo{
			IterationID:      e.id,
			HasDiscontinuity: e.data.DiscontinuityDetected,
			CCStart:          e.data.FirstCC,
			CCEnd:            e.data.LastCC,
			PacketCount:      e.data.PacketCount,
		}
		for _, seg := range e.data.Payloads {
			if seg.Type == PayloadNormal {
				info.PayloadNormalSize += seg.Length
			} else {
				info.PayloadPrivateSize += seg.Length
			}
		}
		result = append(result, info)
	}
	return result
}

// GetPayload returns the first payload segment of the requested type
// within iteration iterID of pid, or a zero-value buffer if either is
// unknown. The returned slice aliases storage and is valid only until
// the next mutating call.
func (d *Demuxer) GetPayload(pid uint16, iterID uint64, typ PayloadType) PayloadBuffer {
	stream, ok := d.storage.getStream(pid)
	if !ok {
		return PayloadBuffer{}
	}
	iter, ok := stream.getIteration(iterID)
	if !ok {
		return PayloadBuffer{}
	}
	for _, seg := range iter.Payloads {
		if seg.Type == typ {
			return PayloadBuffer{Data: iter.Arena[seg.Offset : seg.Offset+seg.Length], Type: typ}
		}
	}
	return PayloadBuffer{}
}

// GetAllPayloads returns every payload segment of iterID for pid, in
// arrival order.
func (d *Demuxer) GetAllPayloads(pid uint16, iterID uint64) []PayloadBuffer {
	stream, ok := d.storage.getStream(pid)
	if !ok {
		return nil
	}
	iter, ok := stream.getIteration(iterID)
	if !ok {
		return nil
	}
	result := make([]PayloadBuffer, 0, len(iter.Payloads))
	for _, seg := range iter.Payloads {
		result = append(result, PayloadBuffer{Data: iter.Arena[seg.Offset : seg.Offset+seg.Length], Type: seg.Type})
	}
	return result
}

// ClearIteration removes one finalized iteration from storage.
func (d *Demuxer) ClearIteration(pid uint16, iterID uint64) {
	stream := d.storage.getOrCreateStream(pid)
	stream.removeIteration(iterID)
}

// ClearStream drops every finalized iteration for pid.
func (d *Demuxer) ClearStream(pid uint16) {
	d.storage.clearStream(pid)
}

// ClearAll finalizes pending iterations, then drops all storage,
// unsynchronizes, and empties the sliding buffer.
func (d *Demuxer) ClearAll() {
	d.finalizeAllIterations()

	d.storage.clear()
	d.buffer.clear()
	d.sync.lost()
	d.current = make(map[uint16]*IterationData)
	d.currentID = make(map[uint16]uint64)
	d.lastCC = make(map[uint16]uint8)
}

// SetProgramsTable installs an optional PID allowlist; unknown PIDs
// are dropped at assembly time from then on. Installing a table
// invalidates existing storage.
func (d *Demuxer) SetProgramsTable(table ProgramTable) {
	d.programsTableSet = true
	d.knownProgramPIDs = make(map[uint16]bool)
	for _, pids := range table.Programs {
		for _, pid := range pids {
			d.knownProgramPIDs[pid] = true
		}
	}
	d.storage.clear()
}

// IsSynchronized reports whether the synchronizer currently holds a
// valid sync point.
func (d *Demuxer) IsSynchronized() bool { return d.sync.acquired }

// GetBufferOccupancy returns the current size of the sliding buffer.
func (d *Demuxer) GetBufferOccupancy() int { return d.buffer.len() }

// GetPacketCount returns the number of whole packets currently
// sitting in the sliding buffer.
func (d *Demuxer) GetPacketCount() int { return d.buffer.len() / PacketSize }

// GetPCRStats returns PCR statistics for pid, or ok=false if no PCR
// has been observed on it.
func (d *Demuxer) GetPCRStats(pid uint16) (PCRStats, bool) {
	t := d.pcrManager.Tracker(pid)
	if t == nil {
		return PCRStats{}, false
	}
	return t.Stats(), true
}

// GetAllPCRStats returns PCR statistics for every tracked PID.
func (d *Demuxer) GetAllPCRStats() []PCRStats { return d.pcrManager.AllStats() }

// GetPIDsWithPCR returns every PID that carries at least one PCR sample.
func (d *Demuxer) GetPIDsWithPCR() []uint16 { return d.pcrManager.PIDsWithPCR() }

// GetLastPCR returns the most recently observed PCR for pid, or
// ok=false if none has been seen.
func (d *Demuxer) GetLastPCR(pid uint16) (PCR, bool) {
	t := d.pcrManager.Tracker(pid)
	if t == nil {
		return PCR{}, false
	}
	return t.LastPCR()
}
