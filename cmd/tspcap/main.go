// Command tspcap replays a pcap capture of a UDP/RTP-carried transport
// stream, reassembles the TS payload, and either writes it to a .ts
// file or feeds it straight into a ts.Demuxer for a summary report.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/leonlinc/mpegtsdemux/ts"
)

func main() {
	demux := flag.Bool("demux", false, "feed the reassembled stream into a ts.Demuxer and print a summary instead of writing a .ts file")
	out := flag.String("out", "", "output .ts file (defaults to <input>.ts); ignored with -demux")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-demux] [-out file.ts] capture.pcap\n", os.Args[0])
		os.Exit(2)
	}
	input := flag.Arg(0)

	handle, err := pcap.OpenOffline(input)
	if err != nil {
		log.Fatalf("tspcap: open %s: %v", input, err)
	}
	defer handle.Close()

	var d *ts.Demuxer
	var f *os.File
	if *demux {
		d = ts.NewDemuxer()
	} else {
		outputName := *out
		if outputName == "" {
			outputName = input + ".ts"
		}
		f, err = os.Create(outputName)
		if err != nil {
			log.Fatalf("tspcap: create %s: %v", outputName, err)
		}
		defer f.Close()
	}

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range source.Packets() {
		appLayer := packet.ApplicationLayer()
		if appLayer == nil {
			continue
		}
		payload := rtpPayload(appLayer.Payload())

		if d != nil {
			d.Feed(payload)
		} else if _, err := f.Write(payload); err != nil {
			log.Fatalf("tspcap: write: %v", err)
		}
	}

	if d != nil {
		report(d)
	}
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
	// RTP fixed header is 12 bytes; CSRC list ignored, extension header
	// (if present) is 4 bytes plus 4 bytes per extension word.
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

func report(d *ts.Demuxer) {
	fmt.Printf("synchronized: %v\n", d.IsSynchronized())
	fmt.Printf("buffer occupancy: %d bytes\n", d.GetBufferOccupancy())

	pids := d.GetDiscoveredPIDs()
	fmt.Printf("%d discovered PID(s)\n", len(pids))

	for _, pid := range d.GetPIDsWithPCR() {
		stats, ok := d.GetPCRStats(pid)
		if !ok {
			continue
		}
		fmt.Printf("  pid 0x%04x pcr: count=%d avg_interval_ms=%.2f max_jitter_ms=%.2f discontinuity=%v\n",
			pid, stats.PCRCount, stats.AverageIntervalMs, stats.MaxJitterMs, stats.DiscontinuityDetected)
	}
}
