package decision

import (
	"NetVerdict/internal/model"
	"fmt"
	"math"
	"strings"
)

var (
	normal        = model.ThreatInfo{ThreatType: "Normal", Description: "Normal traffic; no threat indicators."}
	denialService = model.ThreatInfo{
		ThreatType:  "Denial of Service",
		CVERefs:     []string{"CVE-2020-5902", "CVE-2018-1050"},
		Description: "DDoS/DoS pattern; may relate to known amplification or service abuse.",
	}
	bruteForce = model.ThreatInfo{
		ThreatType:  "Brute Force",
		CVERefs:     []string{"CVE-2019-11510", "CVE-2017-5638"},
		Description: "Brute-force or credential abuse pattern.",
	}
)

// catalog maps classification labels to operator-facing threat context.
var catalog = map[string]model.ThreatInfo{
	"BENIGN": normal,
	"Benign": normal,
	"DDoS":   denialService,
	"DoS":    {ThreatType: "Denial of Service", CVERefs: []string{"CVE-2020-5902", "CVE-2018-1050"}, Description: "Denial-of-service pattern."},
	"Bot": {
		ThreatType:  "Botnet / Malware",
		CVERefs:     []string{"CVE-2016-10709", "CVE-2023-44487"},
		Description: "Bot-like or automated malicious behavior.",
	},
	"Anomaly": {
		ThreatType:  "Unclassified Anomaly",
		Description: "Behavioral anomaly; no specific CVE (zero-day or unknown pattern).",
	},
	"PortScan": {
		ThreatType:  "Reconnaissance",
		Description: "Port scan / reconnaissance (no single CVE; activity-based).",
	},
	"Brute Force": bruteForce,
	"BruteForce":  bruteForce,
	"Web Attack": {
		ThreatType:  "Web Application Attack",
		CVERefs:     []string{"CVE-2017-5638", "CVE-2018-11776"},
		Description: "Web application attack (e.g. RCE, injection).",
	},
	"Infiltration": {
		ThreatType:  "Infiltration",
		CVERefs:     []string{"CVE-2017-0144"},
		Description: "Infiltration / lateral movement pattern.",
	},
	"Heartbleed": {
		ThreatType:  "Heartbleed (TLS)",
		CVERefs:     []string{"CVE-2014-0160"},
		Description: "OpenSSL Heartbleed; TLS heartbeat read overrun.",
	},
	"DoS GoldenEye":    {ThreatType: "Denial of Service", CVERefs: []string{"CVE-2020-5902"}, Description: "DoS GoldenEye / HTTP flood pattern."},
	"DoS Hulk":         {ThreatType: "Denial of Service", CVERefs: []string{"CVE-2020-5902"}, Description: "DoS Hulk / HTTP flood pattern."},
	"DoS SlowHTTPTest": {ThreatType: "Denial of Service", CVERefs: []string{"CVE-2018-1050"}, Description: "Slow HTTP DoS pattern."},
	"FTP-Patator":      {ThreatType: "Brute Force", CVERefs: []string{"CVE-2019-11510"}, Description: "FTP brute-force pattern."},
	"SSH-Patator":      {ThreatType: "Brute Force", CVERefs: []string{"CVE-2019-11510"}, Description: "SSH brute-force pattern."},
}

// Threat returns the catalog entry for label. Unknown labels get a generic
// entry naming the label.
func Threat(label string) model.ThreatInfo {
	key := strings.TrimSpace(label)
	info, ok := catalog[key]
	if !ok {
		info, ok = catalog[strings.ToUpper(key)]
	}
	if !ok {
		if key == "" {
			key = "Unknown"
		}
		return model.ThreatInfo{
			ThreatType:  key,
			Description: fmt.Sprintf("Classified as '%s'; no CVE mapping (behavioral or custom label).", key),
		}
	}
	info.CVERefs = append([]string(nil), info.CVERefs...)
	return info
}

var (
	bruteForcePorts = map[uint16]bool{21: true, 22: true, 23: true, 3389: true, 445: true}
	commonPorts     = map[uint16]bool{21: true, 22: true, 23: true, 80: true, 443: true, 3389: true, 445: true}
)

// InferThreat guesses the attack family of a flow the anomaly detector
// flagged, from its shape and the anomaly score. It only annotates a flow;
// the verdict label stays "Anomaly".
func InferThreat(r *model.RawFlowRecord, score float64) string {
	duration := r.Duration
	if !r.HasDuration {
		duration = 0
	}
	rates := model.DerivedRates(r)
	pktsPerSec, bytesPerSec := rates.PacketsPerSec, rates.BytesPerSec
	if r.PacketsPerSec != nil && finite(*r.PacketsPerSec) {
		pktsPerSec = *r.PacketsPerSec
	}
	if r.BytesPerSec != nil && finite(*r.BytesPerSec) {
		bytesPerSec = *r.BytesPerSec
	}
	pkts := r.TotalPackets()
	bytes := float64(r.TotalBytes())
	proto := r.ProtocolName()
	tcpish := proto == "TCP" || proto == "UNKNOWN"
	syn, _ := r.Field("SYN Flag Count")
	port := r.DstPort

	switch {
	case pkts >= 1 && pkts <= 6 && (syn >= 1 || duration < 3):
		return "PortScan"
	case tcpish && bruteForcePorts[port] && pkts >= 2 && pkts <= 300 && duration < 180:
		return "Brute Force"
	case pktsPerSec > 1500 || bytesPerSec > 1e6,
		pkts > 500 && duration >= 0 && duration < 15,
		bytes > 5e6 && duration < 60,
		score > 0.85 && (pktsPerSec > 200 || pkts > 100):
		return "DDoS"
	case tcpish && (port == 80 || port == 443) && bytes > 20000 && pkts >= 4:
		return "Web Attack"
	case port == 443 && pkts >= 2 && pkts <= 25 && bytes/float64(pkts) >= 50 && bytes/float64(pkts) <= 300:
		return "Heartbleed"
	case pktsPerSec > 200 && pkts >= 8,
		proto == "UDP" && pkts > 20 && score > 0.4,
		score > 0.65 && pkts >= 15:
		return "Bot"
	case port > 0 && !commonPorts[port] && pkts >= 4 && bytes > 500:
		return "Infiltration"
	case score > 0.8:
		return "DDoS"
	case score > 0.45:
		return "Bot"
	case pkts >= 1 && pkts <= 8:
		return "PortScan"
	}
	return "Anomaly"
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
