package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/leonlinc/mpegtsdemux/ts"
)

func extract(inputFileName, outDir string) error {
	handle, err := pcap.OpenOffline(inputFileName)
	if err != nil {
		return fmt.Errorf("open %s: %w", inputFileName, err)
	}
	defer handle.Close()

	d := ts.NewDemuxer()
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range source.Packets() {
		appLayer := packet.ApplicationLayer()
		if appLayer == nil {
			continue
		}
		d.Feed(rtpPayload(appLayer.Payload()))
	}

	streamNames := labelStreams(d)

	for _, pid := range d.GetDiscoveredPIDs() {
		name := streamNames[pid]
		if name == "" {
			name = fmt.Sprintf("pid_0x%04x", pid)
		}
		outPath := filepath.Join(outDir, name+".es")

		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}

		for _, info := range d.GetIterationsSummary(pid) {
			for _, buf := range d.GetAllPayloads(pid, info.IterationID) {
				if buf.Type != ts.PayloadNormal {
					continue
				}
				if _, err := f.Write(buf.Data); err != nil {
					f.Close()
					return fmt.Errorf("write %s: %w", outPath, err)
				}
			}
		}
		f.Close()
	}

	return nil
}

// labelStreams names every elementary-stream PID by program number and
// PID, when PAT/PMT parsing found one.
func labelStreams(d *ts.Demuxer) map[uint16]string {
	names := make(map[uint16]string)
	for _, p := range d.GetPrograms() {
		for _, pid := range p.StreamPIDs {
			names[pid] = fmt.Sprintf("program%d_pid0x%04x", p.ProgramNumber, pid)
		}
	}
	return names
}

// rtpPayload strips the RTP header when the application payload isn't
// a bare 1316-byte UDP datagram of TS packets (7*188).
func rtpPayload(payload []byte) []byte {
	if len(payload) == 1316 {
		return payload
	}
	if len(payload) < 12 {
		return payload
	}
	offset := 12
	hasExtension := payload[0]&0x10 != 0
	if hasExtension && offset+4 <= len(payload) {
		extWords := int(binary.BigEndian.Uint16(payload[offset+2:]))
		offset += 4 + 4*extWords
	}
	if offset > len(payload) {
		return payload
	}
	return payload[offset:]
}
