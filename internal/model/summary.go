package model

import (
	"time"
)

// BatchSummary aggregates the verdicts of a batch. Add and Merge are
// order-independent, so shards may be folded separately and combined.
type BatchSummary struct {
	TotalFlows       int               `json:"total_flows"`
	ByClassification map[string]int    `json:"by_classification"`
	ByRiskLevel      map[RiskLevel]int `json:"by_risk_level"`
	ByProtocol       map[string]int    `json:"by_protocol"`
	RiskScoreSum     float64           `json:"risk_score_sum"`
	ConfidenceSum    float64           `json:"confidence_sum"`
	AnomalyCount     int               `json:"anomaly_count"`
}

// NewBatchSummary returns an empty summary with all risk levels present.
func NewBatchSummary() BatchSummary {
	s := BatchSummary{
		ByClassification: make(map[string]int),
		ByRiskLevel:      make(map[RiskLevel]int, len(RiskLevels)),
		ByProtocol:       make(map[string]int),
	}
	for _, lvl := range RiskLevels {
		s.ByRiskLevel[lvl] = 0
	}
	return s
}

// Add folds one enriched flow into the summary.
func (s *BatchSummary) Add(f EnrichedFlow) {
	s.ensureMaps()
	s.TotalFlows++
	s.ByClassification[f.Verdict.FinalClassification]++
	s.ByRiskLevel[f.Verdict.RiskLevel]++
	s.ByProtocol[f.Record.ProtocolName()]++
	s.RiskScoreSum += f.Verdict.RiskScore
	s.ConfidenceSum += f.Verdict.Confidence
	if f.Verdict.IsAnomaly {
		s.AnomalyCount++
	}
}

// Merge folds another summary into s.
func (s *BatchSummary) Merge(o BatchSummary) {
	s.ensureMaps()
	s.TotalFlows += o.TotalFlows
	for k, v := range o.ByClassification {
		s.ByClassification[k] += v
	}
	for k, v := range o.ByRiskLevel {
		s.ByRiskLevel[k] += v
	}
	for k, v := range o.ByProtocol {
		s.ByProtocol[k] += v
	}
	s.RiskScoreSum += o.RiskScoreSum
	s.ConfidenceSum += o.ConfidenceSum
	s.AnomalyCount += o.AnomalyCount
}

// AvgRiskScore returns the mean risk score, 0 for an empty summary.
func (s BatchSummary) AvgRiskScore() float64 {
	if s.TotalFlows == 0 {
		return 0
	}
	return s.RiskScoreSum / float64(s.TotalFlows)
}

// AvgConfidence returns the mean verdict confidence, 0 for an empty summary.
func (s BatchSummary) AvgConfidence() float64 {
	if s.TotalFlows == 0 {
		return 0
	}
	return s.ConfidenceSum / float64(s.TotalFlows)
}

// AnomalyRate returns the percentage of flows flagged as anomalous.
func (s BatchSummary) AnomalyRate() float64 {
	if s.TotalFlows == 0 {
		return 0
	}
	return 100 * float64(s.AnomalyCount) / float64(s.TotalFlows)
}

func (s *BatchSummary) ensureMaps() {
	if s.ByClassification == nil {
		s.ByClassification = make(map[string]int)
	}
	if s.ByRiskLevel == nil {
		s.ByRiskLevel = make(map[RiskLevel]int, len(RiskLevels))
	}
	if s.ByProtocol == nil {
		s.ByProtocol = make(map[string]int)
	}
}

// BatchResult is everything the orchestrator emits for one batch.
type BatchResult struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Flows      []EnrichedFlow `json:"flows"`
	Summary    BatchSummary   `json:"summary"`
	Failures   []FlowFailure  `json:"failures"`
}

// Succeeded returns the number of flows that produced a verdict.
func (r *BatchResult) Succeeded() int {
	return len(r.Flows)
}

// Failed returns the number of flows excluded from the summary.
func (r *BatchResult) Failed() int {
	return len(r.Failures)
}

// Report is the flattened, JSON-friendly view of a batch outcome.
type Report struct {
	ID                 string            `json:"id"`
	Source             string            `json:"source"`
	SucceededCount     int               `json:"succeeded_count"`
	FailedCount        int               `json:"failed_count"`
	TotalFlows         int               `json:"total_flows"`
	AttackDistribution map[string]int    `json:"attack_distribution"`
	RiskDistribution   map[RiskLevel]int `json:"risk_distribution"`
	ProtocolCounts     map[string]int    `json:"protocol_distribution"`
	AnomalyCount       int               `json:"anomaly_count"`
	AnomalyRate        float64           `json:"anomaly_rate"`
	AvgRiskScore       float64           `json:"avg_risk_score"`
	AvgConfidence      float64           `json:"avg_confidence"`
	Failures           []FlowFailure     `json:"failures"`
}

// Report builds the flattened view of the result.
func (r *BatchResult) Report() Report {
	return Report{
		ID:                 r.ID,
		Source:             r.Source,
		SucceededCount:     r.Succeeded(),
		FailedCount:        r.Failed(),
		TotalFlows:         r.Succeeded() + r.Failed(),
		AttackDistribution: r.Summary.ByClassification,
		RiskDistribution:   r.Summary.ByRiskLevel,
		ProtocolCounts:     r.Summary.ByProtocol,
		AnomalyCount:       r.Summary.AnomalyCount,
		AnomalyRate:        r.Summary.AnomalyRate(),
		AvgRiskScore:       r.Summary.AvgRiskScore(),
		AvgConfidence:      r.Summary.AvgConfidence(),
		Failures:           r.Failures,
	}
}
