package extract

import (
	"NetVerdict/internal/model"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// DefaultFlowTimeout splits a conversation after this much idle time.
const DefaultFlowTimeout = 120 * time.Second

// flowKey is direction-independent: the lower endpoint comes first.
type flowKey struct {
	a, b     string
	aPort    uint16
	bPort    uint16
	protocol uint8
}

func keyOf(p *packetInfo) flowKey {
	src, dst := p.SrcIP.String(), p.DstIP.String()
	if src > dst || (src == dst && p.SrcPort > p.DstPort) {
		return flowKey{a: dst, b: src, aPort: p.DstPort, bPort: p.SrcPort, protocol: p.Protocol}
	}
	return flowKey{a: src, b: dst, aPort: p.SrcPort, bPort: p.DstPort, protocol: p.Protocol}
}

type lengthStats struct {
	n        uint64
	total    uint64
	min, max int
}

func (s *lengthStats) add(l int) {
	if s.n == 0 || l < s.min {
		s.min = l
	}
	if l > s.max {
		s.max = l
	}
	s.n++
	s.total += uint64(l)
}

func (s *lengthStats) mean() float64 {
	if s.n == 0 {
		return 0
	}
	return float64(s.total) / float64(s.n)
}

// flowState accumulates one bidirectional flow. The first packet's sender
// is the forward direction.
type flowState struct {
	srcIP, dstIP     string
	srcPort, dstPort uint16
	protocol         uint8
	first, last      time.Time

	fwd, bwd lengthStats
	all      lengthStats
	flags    struct{ fin, syn, rst, psh, ack, urg int }

	iatSum         float64
	iatMin, iatMax float64
	iatN           int
}

func newFlowState(p *packetInfo) *flowState {
	return &flowState{
		srcIP: p.SrcIP.String(), dstIP: p.DstIP.String(),
		srcPort: p.SrcPort, dstPort: p.DstPort,
		protocol: p.Protocol,
		first:    p.Timestamp, last: p.Timestamp,
	}
}

func (f *flowState) add(p *packetInfo) {
	if f.all.n > 0 {
		iat := float64(p.Timestamp.Sub(f.last).Microseconds())
		if f.iatN == 0 || iat < f.iatMin {
			f.iatMin = iat
		}
		f.iatMax = math.Max(f.iatMax, iat)
		f.iatSum += iat
		f.iatN++
	}
	if p.Timestamp.After(f.last) {
		f.last = p.Timestamp
	}

	if p.SrcIP.String() == f.srcIP && p.SrcPort == f.srcPort {
		f.fwd.add(p.Length)
	} else {
		f.bwd.add(p.Length)
	}
	f.all.add(p.Length)

	if p.Flags.FIN {
		f.flags.fin++
	}
	if p.Flags.SYN {
		f.flags.syn++
	}
	if p.Flags.RST {
		f.flags.rst++
	}
	if p.Flags.PSH {
		f.flags.psh++
	}
	if p.Flags.ACK {
		f.flags.ack++
	}
	if p.Flags.URG {
		f.flags.urg++
	}
}

// record converts the flow into a RawFlowRecord with CICFlowMeter column names.
// Rates are left undefined for zero-duration flows, as CICFlowMeter does.
func (f *flowState) record() model.RawFlowRecord {
	dur := f.last.Sub(f.first)
	proto := strconv.Itoa(int(f.protocol))
	r := model.RawFlowRecord{
		ID:          fmt.Sprintf("%s-%s-%d-%d-%s", f.srcIP, f.dstIP, f.srcPort, f.dstPort, proto),
		Timestamp:   f.first,
		SrcIP:       f.srcIP,
		DstIP:       f.dstIP,
		SrcPort:     f.srcPort,
		DstPort:     f.dstPort,
		Protocol:    proto,
		Duration:    dur.Seconds(),
		HasDuration: true,
		FwdPackets:  f.fwd.n,
		BwdPackets:  f.bwd.n,
		FwdBytes:    f.fwd.total,
		BwdBytes:    f.bwd.total,
	}

	fields := map[string]float64{
		"Flow Duration":               float64(dur.Microseconds()),
		"Total Fwd Packets":           float64(f.fwd.n),
		"Total Backward Packets":      float64(f.bwd.n),
		"Total Length of Fwd Packets": float64(f.fwd.total),
		"Total Length of Bwd Packets": float64(f.bwd.total),
		"Fwd Packet Length Max":       float64(f.fwd.max),
		"Fwd Packet Length Min":       float64(f.fwd.min),
		"Fwd Packet Length Mean":      f.fwd.mean(),
		"Bwd Packet Length Max":       float64(f.bwd.max),
		"Bwd Packet Length Min":       float64(f.bwd.min),
		"Bwd Packet Length Mean":      f.bwd.mean(),
		"Min Packet Length":           float64(f.all.min),
		"Max Packet Length":           float64(f.all.max),
		"Packet Length Mean":          f.all.mean(),
		"Average Packet Size":         f.all.mean(),
		"FIN Flag Count":              float64(f.flags.fin),
		"SYN Flag Count":              float64(f.flags.syn),
		"RST Flag Count":              float64(f.flags.rst),
		"PSH Flag Count":              float64(f.flags.psh),
		"ACK Flag Count":              float64(f.flags.ack),
		"URG Flag Count":              float64(f.flags.urg),
	}
	if f.iatN > 0 {
		fields["Flow IAT Mean"] = f.iatSum / float64(f.iatN)
		fields["Flow IAT Min"] = f.iatMin
		fields["Flow IAT Max"] = f.iatMax
	}
	if f.bwd.n > 0 {
		fields["Down/Up Ratio"] = math.Floor(float64(f.bwd.n) / float64(max(f.fwd.n, 1)))
	}

	if secs := dur.Seconds(); secs > 0 {
		rates := model.DerivedRates(&r)
		r.BytesPerSec = &rates.BytesPerSec
		r.PacketsPerSec = &rates.PacketsPerSec
		fields["Flow Bytes/s"] = rates.BytesPerSec
		fields["Flow Packets/s"] = rates.PacketsPerSec
		fields["Fwd Packets/s"] = rates.FwdPacketsPerSec
		fields["Bwd Packets/s"] = rates.BwdPacketsPerSec
	}
	r.Fields = fields
	return r
}

// flowTable groups packets into flows, splitting on idle timeout.
type flowTable struct {
	timeout time.Duration
	active  map[flowKey]*flowState
	done    []*flowState
}

func newFlowTable(timeout time.Duration) *flowTable {
	if timeout <= 0 {
		timeout = DefaultFlowTimeout
	}
	return &flowTable{timeout: timeout, active: make(map[flowKey]*flowState)}
}

func (t *flowTable) add(p *packetInfo) {
	k := keyOf(p)
	f, ok := t.active[k]
	if ok && p.Timestamp.Sub(f.last) > t.timeout {
		t.done = append(t.done, f)
		ok = false
	}
	if !ok {
		f = newFlowState(p)
		t.active[k] = f
	}
	f.add(p)
}

// flush returns every flow ordered by start time.
func (t *flowTable) flush() []model.RawFlowRecord {
	all := append([]*flowState(nil), t.done...)
	for _, f := range t.active {
		all = append(all, f)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].first.Equal(all[j].first) {
			return all[i].srcPort < all[j].srcPort
		}
		return all[i].first.Before(all[j].first)
	})
	out := make([]model.RawFlowRecord, len(all))
	for i, f := range all {
		out[i] = f.record()
	}
	t.active = make(map[flowKey]*flowState)
	t.done = nil
	return out
}
