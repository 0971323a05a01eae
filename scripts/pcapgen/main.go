package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// generator writes synthetic traffic with a moving clock.
type generator struct {
	w   *pcapgo.Writer
	now time.Time
	n   int
}

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	sessions := flag.Int("sessions", 50, "Number of benign web sessions")
	floodPackets := flag.Int("flood", 2000, "Number of SYN flood packets")
	scanPorts := flag.Int("scan", 200, "Number of ports probed by the scanner")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}
	g := &generator{w: pcapWriter, now: time.Now().Add(-time.Hour)}
	server := net.IP{10, 0, 0, 80}

	// Benign request/response sessions.
	for i := 0; i < *sessions; i++ {
		client := net.IP{192, 168, 1, byte(10 + i%200)}
		sport := layers.TCPPort(40000 + i)
		g.tcp(client, server, sport, 443, true, false, 0)
		g.tcp(server, client, 443, sport, true, true, 0)
		for j := 0; j < 5; j++ {
			g.tcp(client, server, sport, 443, false, true, 300+rand.Intn(200))
			g.tcp(server, client, 443, sport, false, true, 1000+rand.Intn(400))
			g.advance(50 * time.Millisecond)
		}
		g.advance(time.Second)
	}

	// SYN flood: one source port per packet, microseconds apart.
	attacker := net.IP{172, 16, 0, 66}
	for i := 0; i < *floodPackets; i++ {
		g.tcp(attacker, server, layers.TCPPort(1024+rand.Intn(60000)), 80, true, false, 0)
		g.advance(10 * time.Microsecond)
	}

	// Port scan: a single SYN per destination port.
	scanner := net.IP{172, 16, 0, 99}
	for p := 1; p <= *scanPorts; p++ {
		g.tcp(scanner, server, 55555, layers.TCPPort(p), true, false, 0)
		g.advance(2 * time.Millisecond)
	}

	log.Printf("Successfully generated %d packets into %s.", g.n, *outputFile)
}

func (g *generator) advance(d time.Duration) {
	g.now = g.now.Add(d)
}

func (g *generator) tcp(src, dst net.IP, sport, dport layers.TCPPort, syn, ack bool, payloadSize int) {
	ethLayer := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ipLayer := &layers.IPv4{
		SrcIP:    src,
		DstIP:    dst,
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
	}
	tcpLayer := &layers.TCP{
		SrcPort: sport,
		DstPort: dport,
		Seq:     rand.Uint32(),
		SYN:     syn,
		ACK:     ack,
		PSH:     payloadSize > 0,
		Window:  14600,
	}
	tcpLayer.SetNetworkLayerForChecksum(ipLayer)

	payload := make([]byte, payloadSize)
	rand.Read(payload)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, tcpLayer, gopacket.Payload(payload)); err != nil {
		log.Fatalf("Failed to serialize layers: %v", err)
	}
	ci := gopacket.CaptureInfo{Timestamp: g.now, CaptureLength: len(buf.Bytes()), Length: len(buf.Bytes())}
	if err := g.w.WritePacket(ci, buf.Bytes()); err != nil {
		log.Fatalf("Failed to write packet: %v", err)
	}
	g.n++
	g.advance(time.Millisecond)
}
