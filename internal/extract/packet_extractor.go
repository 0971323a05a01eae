package extract

import (
	"NetVerdict/internal/model"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/zap"
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// PacketExtractor aggregates packets into bidirectional flows in process,
// for hosts without CICFlowMeter. It reads pcap and pcapng files.
type PacketExtractor struct {
	FlowTimeout time.Duration
	Logger      *zap.Logger
}

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

func openCapture(r io.Reader) (packetSource, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}
	if bytes.Equal(magic, pcapngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// Extract reads every packet of the capture and returns the resulting flows.
func (e *PacketExtractor) Extract(ctx context.Context, pcapPath string) ([]model.RawFlowRecord, error) {
	f, err := os.Open(pcapPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()
	return e.ExtractFrom(ctx, f)
}

// ExtractFrom is Extract over an already open capture stream.
func (e *PacketExtractor) ExtractFrom(ctx context.Context, r io.Reader) ([]model.RawFlowRecord, error) {
	src, err := openCapture(r)
	if err != nil {
		return nil, err
	}
	table := newFlowTable(e.FlowTimeout)
	decoder := src.LinkType()

	var packets, skipped int
	for {
		if packets%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read packet %d: %w", packets+1, err)
		}
		packets++
		info, err := parsePacket(data, decoder, ci.Timestamp)
		if err != nil {
			skipped++
			continue
		}
		info.Length = ci.Length
		table.add(info)
	}

	flows := table.flush()
	if e.Logger != nil {
		e.Logger.Info("flows extracted",
			zap.Int("packets", packets),
			zap.Int("skipped", skipped),
			zap.Int("flows", len(flows)),
		)
	}
	return flows, nil
}
