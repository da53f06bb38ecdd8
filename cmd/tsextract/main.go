// Command tsextract replays a pcap capture through a ts.Demuxer and
// writes one elementary-stream file per PID, using PAT/PMT program
// info (when present) to name files by program number and PID.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	outDir := flag.String("outdir", ".", "directory to write per-PID elementary stream files into")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-outdir dir] capture.pcap\n", os.Args[0])
		os.Exit(2)
	}

	if err := extract(flag.Arg(0), *outDir); err != nil {
		log.Fatalf("tsextract: %v", err)
	}
}
