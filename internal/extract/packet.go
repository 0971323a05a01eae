package extract

import (
	"errors"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var errNotIP = errors.New("not an IP packet")

// tcpFlags counts the flags CICFlowMeter reports.
type tcpFlags struct {
	FIN, SYN, RST, PSH, ACK, URG bool
}

// packetInfo is the part of a packet the flow table needs.
type packetInfo struct {
	Timestamp time.Time
	SrcIP     net.IP
	DstIP     net.IP
	SrcPort   uint16
	DstPort   uint16
	Protocol  uint8
	Length    int
	Flags     tcpFlags
}

// parsePacket decodes the network and transport layers of one frame.
func parsePacket(data []byte, first gopacket.Decoder, ts time.Time) (*packetInfo, error) {
	packet := gopacket.NewPacket(data, first, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	info := &packetInfo{Timestamp: ts, Length: len(data)}

	switch {
	case packet.Layer(layers.LayerTypeIPv4) != nil:
		ip := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		info.SrcIP, info.DstIP, info.Protocol = ip.SrcIP, ip.DstIP, uint8(ip.Protocol)
	case packet.Layer(layers.LayerTypeIPv6) != nil:
		ip := packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
		info.SrcIP, info.DstIP, info.Protocol = ip.SrcIP, ip.DstIP, uint8(ip.NextHeader)
	default:
		return nil, errNotIP
	}

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		info.SrcPort, info.DstPort = uint16(tcp.SrcPort), uint16(tcp.DstPort)
		info.Flags = tcpFlags{FIN: tcp.FIN, SYN: tcp.SYN, RST: tcp.RST, PSH: tcp.PSH, ACK: tcp.ACK, URG: tcp.URG}
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		info.SrcPort, info.DstPort = uint16(udp.SrcPort), uint16(udp.DstPort)
	}
	return info, nil
}
