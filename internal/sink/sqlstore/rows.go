package sqlstore

import (
	"NetVerdict/internal/model"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const flowColumns = `analysis_id, flow_seq, id, source, timestamp, src_ip, dst_ip, src_port, dst_port, protocol,
	duration, total_fwd_packets, total_bwd_packets, total_length_fwd, total_length_bwd,
	flow_bytes_per_sec, flow_packets_per_sec, classification, threat_type, cve_refs,
	suspected_threat, classification_reason, confidence, anomaly_score, risk_score, risk_level, is_anomaly`

// FlowRow is one stored flow verdict. Flow ids may repeat within a batch;
// FlowSeq is the position among the batch's verdicts.
type FlowRow struct {
	AnalysisID           string          `db:"analysis_id" json:"analysis_id"`
	FlowSeq              int             `db:"flow_seq" json:"flow_seq"`
	ID                   string          `db:"id" json:"id"`
	Source               sql.NullString  `db:"source" json:"-"`
	Timestamp            time.Time       `db:"timestamp" json:"timestamp"`
	SrcIP                string          `db:"src_ip" json:"src_ip"`
	DstIP                string          `db:"dst_ip" json:"dst_ip"`
	SrcPort              int64           `db:"src_port" json:"src_port"`
	DstPort              int64           `db:"dst_port" json:"dst_port"`
	Protocol             string          `db:"protocol" json:"protocol"`
	Duration             sql.NullFloat64 `db:"duration" json:"-"`
	TotalFwdPackets      int64           `db:"total_fwd_packets" json:"total_fwd_packets"`
	TotalBwdPackets      int64           `db:"total_bwd_packets" json:"total_bwd_packets"`
	TotalLengthFwd       int64           `db:"total_length_fwd" json:"total_length_fwd"`
	TotalLengthBwd       int64           `db:"total_length_bwd" json:"total_length_bwd"`
	FlowBytesPerSec      sql.NullFloat64 `db:"flow_bytes_per_sec" json:"-"`
	FlowPacketsPerSec    sql.NullFloat64 `db:"flow_packets_per_sec" json:"-"`
	Classification       string          `db:"classification" json:"classification"`
	ThreatType           string          `db:"threat_type" json:"threat_type"`
	CVERefs              string          `db:"cve_refs" json:"cve_refs"`
	SuspectedThreat      string          `db:"suspected_threat" json:"suspected_threat,omitempty"`
	ClassificationReason string          `db:"classification_reason" json:"classification_reason"`
	Confidence           float64         `db:"confidence" json:"confidence"`
	AnomalyScore         float64         `db:"anomaly_score" json:"anomaly_score"`
	RiskScore            float64         `db:"risk_score" json:"risk_score"`
	RiskLevel            string          `db:"risk_level" json:"risk_level"`
	IsAnomaly            bool            `db:"is_anomaly" json:"is_anomaly"`
}

func newFlowRow(result *model.BatchResult, seq int) FlowRow {
	f := &result.Flows[seq]
	r := &f.Record
	ts := r.Timestamp
	if ts.IsZero() {
		ts = result.StartedAt
	}
	row := FlowRow{
		AnalysisID:           result.ID,
		FlowSeq:              seq,
		ID:                   r.ID,
		Source:               sql.NullString{String: result.Source, Valid: result.Source != ""},
		Timestamp:            ts.UTC(),
		SrcIP:                r.SrcIP,
		DstIP:                r.DstIP,
		SrcPort:              int64(r.SrcPort),
		DstPort:              int64(r.DstPort),
		Protocol:             r.ProtocolName(),
		Duration:             sql.NullFloat64{Float64: r.Duration, Valid: r.HasDuration},
		TotalFwdPackets:      int64(r.FwdPackets),
		TotalBwdPackets:      int64(r.BwdPackets),
		TotalLengthFwd:       int64(r.FwdBytes),
		TotalLengthBwd:       int64(r.BwdBytes),
		Classification:       f.Verdict.FinalClassification,
		ThreatType:           f.Threat.ThreatType,
		CVERefs:              strings.Join(f.Threat.CVERefs, ", "),
		SuspectedThreat:      f.SuspectedThreat,
		ClassificationReason: f.Verdict.Reason,
		Confidence:           f.Verdict.Confidence,
		AnomalyScore:         f.Verdict.AnomalyScore,
		RiskScore:            f.Verdict.RiskScore,
		RiskLevel:            string(f.Verdict.RiskLevel),
		IsAnomaly:            f.Verdict.IsAnomaly,
	}
	if r.HasDuration && r.Duration > 0 {
		rates := model.DerivedRates(r)
		row.FlowBytesPerSec = sql.NullFloat64{Float64: rates.BytesPerSec, Valid: true}
		row.FlowPacketsPerSec = sql.NullFloat64{Float64: rates.PacketsPerSec, Valid: true}
	}
	if r.BytesPerSec != nil {
		row.FlowBytesPerSec = sql.NullFloat64{Float64: *r.BytesPerSec, Valid: true}
	}
	if r.PacketsPerSec != nil {
		row.FlowPacketsPerSec = sql.NullFloat64{Float64: *r.PacketsPerSec, Valid: true}
	}
	return row
}

type summaryRow struct {
	AnalysisID         string         `db:"analysis_id"`
	Source             sql.NullString `db:"source"`
	StartedAt          time.Time      `db:"started_at"`
	FinishedAt         time.Time      `db:"finished_at"`
	Succeeded          int            `db:"succeeded"`
	Failed             int            `db:"failed"`
	AnomalyCount       int            `db:"anomaly_count"`
	AnomalyRate        float64        `db:"anomaly_rate"`
	AvgRiskScore       float64        `db:"avg_risk_score"`
	AvgConfidence      float64        `db:"avg_confidence"`
	AttackDistribution sql.NullString `db:"attack_distribution"`
	RiskDistribution   sql.NullString `db:"risk_distribution"`
}

func newSummaryRow(result *model.BatchResult) (summaryRow, error) {
	s := result.Summary
	attacks, err := json.Marshal(s.ByClassification)
	if err != nil {
		return summaryRow{}, fmt.Errorf("failed to encode attack distribution: %w", err)
	}
	risks, err := json.Marshal(s.ByRiskLevel)
	if err != nil {
		return summaryRow{}, fmt.Errorf("failed to encode risk distribution: %w", err)
	}
	return summaryRow{
		AnalysisID:         result.ID,
		Source:             sql.NullString{String: result.Source, Valid: result.Source != ""},
		StartedAt:          result.StartedAt.UTC(),
		FinishedAt:         result.FinishedAt.UTC(),
		Succeeded:          result.Succeeded(),
		Failed:             result.Failed(),
		AnomalyCount:       s.AnomalyCount,
		AnomalyRate:        s.AnomalyRate(),
		AvgRiskScore:       s.AvgRiskScore(),
		AvgConfidence:      s.AvgConfidence(),
		AttackDistribution: sql.NullString{String: string(attacks), Valid: true},
		RiskDistribution:   sql.NullString{String: string(risks), Valid: true},
	}, nil
}

type failureRow struct {
	AnalysisID string `db:"analysis_id"`
	FlowIndex  int    `db:"flow_index"`
	RecordID   string `db:"record_id"`
	Kind       string `db:"kind"`
	Reason     string `db:"reason"`
}
