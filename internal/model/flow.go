package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// protocolNames maps IANA protocol numbers to the names flow exports use.
var protocolNames = map[string]string{
	"1":   "ICMP",
	"6":   "TCP",
	"17":  "UDP",
	"47":  "GRE",
	"50":  "ESP",
	"51":  "AH",
	"89":  "OSPF",
	"132": "SCTP",
}

// RawFlowRecord is one observed network flow as produced by the upstream extractor.
// It is never mutated once built; every stage derives new values from it.
type RawFlowRecord struct {
	ID        string
	Timestamp time.Time

	SrcIP    string
	DstIP    string
	SrcPort  uint16 // 0 when the protocol has no ports
	DstPort  uint16
	Protocol string // numeric ("6") or symbolic ("TCP")

	// Duration is in seconds. HasDuration is false when the export had no duration column.
	Duration    float64
	HasDuration bool

	FwdPackets uint64
	BwdPackets uint64
	FwdBytes   uint64
	BwdBytes   uint64

	// Rates as reported upstream; nil when the export did not carry them.
	BytesPerSec   *float64
	PacketsPerSec *float64

	// Fields holds every additional numeric column, keyed by its trimmed column name.
	Fields map[string]float64

	// Vector, when set, is a raw feature vector already in training schema order.
	Vector []float64
}

// ProtocolName returns the symbolic protocol name, e.g. "TCP" for "6".
// Unknown protocols are returned upper-cased as given.
func (r *RawFlowRecord) ProtocolName() string {
	p := strings.ToUpper(strings.TrimSpace(r.Protocol))
	if p == "" {
		return "UNKNOWN"
	}
	if name, ok := protocolNames[p]; ok {
		return name
	}
	// "6.0" shows up in exports that went through a float column.
	if f, err := strconv.ParseFloat(p, 64); err == nil && f == math.Trunc(f) {
		if name, ok := protocolNames[strconv.Itoa(int(f))]; ok {
			return name
		}
	}
	return p
}

// TotalPackets returns forward plus backward packets.
func (r *RawFlowRecord) TotalPackets() uint64 {
	return r.FwdPackets + r.BwdPackets
}

// TotalBytes returns forward plus backward bytes.
func (r *RawFlowRecord) TotalBytes() uint64 {
	return r.FwdBytes + r.BwdBytes
}

// Field returns an additional numeric column by name.
func (r *RawFlowRecord) Field(name string) (float64, bool) {
	if r.Fields == nil {
		return 0, false
	}
	v, ok := r.Fields[name]
	return v, ok
}

// Rates holds per-second rates derived from counts and duration.
type Rates struct {
	BytesPerSec      float64
	PacketsPerSec    float64
	FwdPacketsPerSec float64
	BwdPacketsPerSec float64
}

// DerivedRates computes rates from the flow counters. Flows without a positive
// duration get zero rates instead of infinities.
func DerivedRates(r *RawFlowRecord) Rates {
	if !r.HasDuration || r.Duration <= 0 {
		return Rates{}
	}
	d := r.Duration
	return Rates{
		BytesPerSec:      float64(r.TotalBytes()) / d,
		PacketsPerSec:    float64(r.TotalPackets()) / d,
		FwdPacketsPerSec: float64(r.FwdPackets) / d,
		BwdPacketsPerSec: float64(r.BwdPackets) / d,
	}
}

// FeatureVector is the fixed-order numeric input for both scorers.
type FeatureVector struct {
	Values []float64
	// Missing lists schema features that were absent and defaulted.
	Missing []string
}

// Len returns the vector dimensionality.
func (v FeatureVector) Len() int {
	return len(v.Values)
}

// Degraded reports whether any feature was defaulted.
func (v FeatureVector) Degraded() bool {
	return len(v.Missing) > 0
}
