package main

import (
	"NetVerdict/internal/extract"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
)

func main() {
	limit := flag.Int("n", 20, "Number of flows to print")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/pcapana/main.go [-n 20] <path_to_pcap_file>")
		os.Exit(1)
	}

	ex := &extract.PacketExtractor{}
	flows, err := ex.Extract(context.Background(), flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	sort.SliceStable(flows, func(i, j int) bool { return flows[i].TotalPackets() > flows[j].TotalPackets() })

	for i, f := range flows {
		if i >= *limit {
			break
		}
		fmt.Printf("[%s] %s:%d -> %s:%d proto=%s dur=%.3fs fwd=%d/%dB bwd=%d/%dB\n",
			f.Timestamp.Format("15:04:05.000"),
			f.SrcIP, f.SrcPort, f.DstIP, f.DstPort, f.ProtocolName(), f.Duration,
			f.FwdPackets, f.FwdBytes, f.BwdPackets, f.BwdBytes,
		)
	}
	fmt.Printf("%d flows extracted\n", len(flows))
}
