package probe

import (
	"NetVerdict/internal/model"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// FlowBatch is one message on the flow subject.
type FlowBatch struct {
	ID     string
	SentAt time.Time
	Flows  []model.RawFlowRecord
}

// Marshal encodes the batch as a protobuf Struct.
func (b *FlowBatch) Marshal() ([]byte, error) {
	flows := make([]any, len(b.Flows))
	for i := range b.Flows {
		flows[i] = flowToMap(&b.Flows[i])
	}
	s, err := structpb.NewStruct(map[string]any{
		"batch_id": b.ID,
		"sent_at":  b.SentAt.UTC().Format(time.RFC3339Nano),
		"flows":    flows,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build flow batch message: %w", err)
	}
	return proto.Marshal(s)
}

// UnmarshalFlowBatch decodes a message produced by FlowBatch.Marshal.
func UnmarshalFlowBatch(data []byte) (FlowBatch, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return FlowBatch{}, fmt.Errorf("failed to unmarshal flow batch: %w", err)
	}
	m := s.AsMap()
	b := FlowBatch{ID: str(m["batch_id"])}
	if ts := str(m["sent_at"]); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return FlowBatch{}, fmt.Errorf("invalid sent_at %q: %w", ts, err)
		}
		b.SentAt = t
	}
	list, _ := m["flows"].([]any)
	b.Flows = make([]model.RawFlowRecord, 0, len(list))
	for i, item := range list {
		fm, ok := item.(map[string]any)
		if !ok {
			return FlowBatch{}, fmt.Errorf("flow %d is not an object", i)
		}
		b.Flows = append(b.Flows, flowFromMap(fm))
	}
	return b, nil
}

func flowToMap(r *model.RawFlowRecord) map[string]any {
	m := map[string]any{
		"id":          r.ID,
		"src_ip":      r.SrcIP,
		"dst_ip":      r.DstIP,
		"src_port":    float64(r.SrcPort),
		"dst_port":    float64(r.DstPort),
		"protocol":    r.Protocol,
		"fwd_packets": float64(r.FwdPackets),
		"bwd_packets": float64(r.BwdPackets),
		"fwd_bytes":   float64(r.FwdBytes),
		"bwd_bytes":   float64(r.BwdBytes),
	}
	if !r.Timestamp.IsZero() {
		m["timestamp"] = r.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if r.HasDuration {
		m["duration"] = r.Duration
	}
	if r.BytesPerSec != nil {
		m["bytes_per_sec"] = *r.BytesPerSec
	}
	if r.PacketsPerSec != nil {
		m["packets_per_sec"] = *r.PacketsPerSec
	}
	if len(r.Fields) > 0 {
		fields := make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = v
		}
		m["fields"] = fields
	}
	if r.Vector != nil {
		vec := make([]any, len(r.Vector))
		for i, v := range r.Vector {
			vec[i] = v
		}
		m["vector"] = vec
	}
	return m
}

func flowFromMap(m map[string]any) model.RawFlowRecord {
	r := model.RawFlowRecord{
		ID:         str(m["id"]),
		SrcIP:      str(m["src_ip"]),
		DstIP:      str(m["dst_ip"]),
		SrcPort:    port(m["src_port"]),
		DstPort:    port(m["dst_port"]),
		Protocol:   str(m["protocol"]),
		FwdPackets: uint64(num(m["fwd_packets"])),
		BwdPackets: uint64(num(m["bwd_packets"])),
		FwdBytes:   uint64(num(m["fwd_bytes"])),
		BwdBytes:   uint64(num(m["bwd_bytes"])),
	}
	if ts := str(m["timestamp"]); ts != "" {
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	}
	if v, ok := m["duration"].(float64); ok {
		r.Duration, r.HasDuration = v, true
	}
	if v, ok := m["bytes_per_sec"].(float64); ok {
		r.BytesPerSec = &v
	}
	if v, ok := m["packets_per_sec"].(float64); ok {
		r.PacketsPerSec = &v
	}
	if fields, ok := m["fields"].(map[string]any); ok {
		r.Fields = make(map[string]float64, len(fields))
		for k, v := range fields {
			if f, ok := v.(float64); ok {
				r.Fields[k] = f
			}
		}
	}
	if vec, ok := m["vector"].([]any); ok {
		r.Vector = make([]float64, len(vec))
		for i, v := range vec {
			r.Vector[i], _ = v.(float64)
		}
	}
	return r
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// port drops values outside the uint16 range instead of wrapping them.
func port(v any) uint16 {
	f := num(v)
	if f > math.MaxUint16 {
		return 0
	}
	return uint16(f)
}

func num(v any) float64 {
	f, _ := v.(float64)
	if f < 0 {
		return 0
	}
	return f
}
